package pool

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const defaultAcquireTimeout = 50 * time.Millisecond

type testConnection struct{}

func newTestConnection() (any, error) {
	return &testConnection{}, nil
}

func newTestConnectionWithErr() (any, error) {
	return nil, http.ErrHandlerTimeout
}

func closeTestConnection(any) {
	// Do nothing
}

func TestPool(t *testing.T) {
	assert.Panics(t, func() {
		_ = New(context.TODO(), 0, 0, defaultAcquireTimeout, newTestConnection, closeTestConnection)
	}, "was expected panic")

	defer func() {
		if pErr := recover(); pErr != nil {
			t.Fatalf("pool have panic - %v", pErr)
		}
	}()

	p := New(context.TODO(), 0, 2, defaultAcquireTimeout, newTestConnection, closeTestConnection)
	defer p.Destroy()

	_, ok := p.Pop()
	assert.False(t, ok, "Pop return ok != false for empty pool")

	assert.Equalf(t, 0, p.Len(), "Expected pool length to be 0, got %d", p.Len())

	conn, err := p.Get()
	assert.Nilf(t, err, "Get from empty pool have error - %v", err)

	assert.Equalf(t, 0, p.Len(), "Expected pool length to be 0 after getting a connection, got %d", p.Len())

	p.Put(conn)
	assert.Equalf(t, 1, p.Len(), "Expected pool length to be 1 after putting back a connection, got %d", p.Len())

	_, ok = p.Pop()
	assert.True(t, ok, "Pop return ok != true for non-empty pool")

	conn, err = p.Get()
	assert.Nilf(t, err, "Get from pool have error - %v", err)

	assert.Equalf(t, 0, p.Len(), "Expected pool length to be 0 after getting a connection from the pool, got %d", p.Len())

	p.Put(conn)
	p.Destroy()
	assert.Equalf(t, 0, p.Len(), "Expected pool length to be 0 after destroying the pool, got %d", p.Len())

	_, err = p.Get()
	assert.ErrorIsf(t, err, ErrClosedPool, "Expected to get an error when getting from a destroyed pool, got %v", err)

	p.Put(conn)
	assert.ErrorIsf(t, err, ErrClosedPool, "Expected the destroyed pool's Get error to stay ErrClosedPool after Put, got %v", err)
}

func TestPoolWarmUp(t *testing.T) {
	var dials int32
	newCounting := func() (any, error) {
		atomic.AddInt32(&dials, 1)
		return &testConnection{}, nil
	}

	p := New(context.TODO(), 3, 5, defaultAcquireTimeout, newCounting, closeTestConnection)
	defer p.Destroy()

	assert.Equal(t, 3, p.Len(), "min connections are dialed eagerly")
	assert.Equal(t, int32(3), atomic.LoadInt32(&dials))

	// warmed-up connections are served before dialing new ones
	_, err := p.Get()
	assert.Nil(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&dials), "Get must pop an idle conn first")
}

func TestPoolWarmUpClampedToMax(t *testing.T) {
	p := New(context.TODO(), 10, 2, defaultAcquireTimeout, newTestConnection, closeTestConnection)
	defer p.Destroy()

	assert.Equal(t, 2, p.Len(), "min is clamped to max")
}

func TestPoolWarmUpDialFailure(t *testing.T) {
	p := New(context.TODO(), 3, 5, defaultAcquireTimeout, newTestConnectionWithErr, closeTestConnection)
	defer p.Destroy()

	assert.Equal(t, 0, p.Len(), "failed warm-up dials leave the pool empty")

	_, err := p.Get()
	assert.ErrorIs(t, err, http.ErrHandlerTimeout, "the dial error surfaces on Get")
}

func TestPoolExhaustion(t *testing.T) {
	p := New(context.TODO(), 0, 1, defaultAcquireTimeout, newTestConnection, closeTestConnection)
	defer p.Destroy()

	conn, err := p.Get()
	assert.Nil(t, err)

	start := time.Now()
	_, err = p.Get()
	assert.ErrorIs(t, err, ErrAcquireTimeout, "a full pool must time out the acquire")
	assert.GreaterOrEqual(t, time.Since(start), defaultAcquireTimeout)

	p.Put(conn)
	conn, err = p.Get()
	assert.Nil(t, err, "a released conn unblocks the pool")
	p.Put(conn)
}

func TestPoolNilNewFunc(t *testing.T) {
	p := New(context.TODO(), 0, 1, defaultAcquireTimeout, nil, closeTestConnection)
	defer p.Destroy()

	_, err := p.Get()
	assert.ErrorIs(t, err, ErrNewFuncNil)
}

func TestPoolConcurrency(t *testing.T) {
	p := New(context.TODO(), 0, 10, defaultAcquireTimeout, newTestConnection, closeTestConnection)
	defer p.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := p.Get()
			if err != nil {
				// contention may legitimately time out the acquire
				assert.ErrorIs(t, err, ErrAcquireTimeout)
				return
			}
			time.Sleep(time.Millisecond)
			p.Put(conn)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.Len(), 10, "the pool never holds more than maxCap")
}

func TestPoolDestroyIdempotent(t *testing.T) {
	p := New(context.TODO(), 0, 2, defaultAcquireTimeout, newTestConnection, closeTestConnection)
	p.Destroy()
	p.Destroy()

	_, ok := p.Pop()
	assert.False(t, ok, "Pop on a destroyed pool")
}
