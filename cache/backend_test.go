package cache

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"

	"github.com/cachewire/memcached/memcached"
)

// stubItem is one entry in the in-memory backend.
type stubItem struct {
	flags uint32
	data  []byte
	cas   uint64
	exp   uint32
}

// memBackend is an in-memory memcached.Memcached covering the semantics the
// facade relies on, plus capture of the expiration values it sends.
type memBackend struct {
	mu      sync.Mutex
	items   map[string]stubItem
	nextCas uint64

	lastExp uint32
}

var _ memcached.Memcached = (*memBackend)(nil)

func newMemBackend() *memBackend {
	return &memBackend{items: make(map[string]stubItem)}
}

func successResp(it stubItem) *memcached.Response {
	extras := make([]byte, 4)
	binary.BigEndian.PutUint32(extras, it.flags)
	return &memcached.Response{
		Status: memcached.SUCCESS,
		Cas:    it.cas,
		Extras: extras,
		Body:   it.data,
	}
}

func failResp(status memcached.Status) (*memcached.Response, error) {
	resp := &memcached.Response{Status: status}
	return resp, fmt.Errorf("stub failure. %w", resp)
}

func (m *memBackend) Store(mode memcached.StoreMode, key string, exp uint32, body []byte) (*memcached.Response, error) {
	return m.StoreWithMeta(mode, key, 0, exp, 0, body)
}

func (m *memBackend) StoreWithMeta(mode memcached.StoreMode, key string, flags, exp uint32, cas uint64, body []byte) (*memcached.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastExp = exp

	it, exists := m.items[key]
	switch {
	case cas != 0 && !exists:
		return failResp(memcached.KEY_ENOENT)
	case cas != 0 && it.cas != cas:
		return failResp(memcached.KEY_EEXISTS)
	case mode == memcached.Add && exists:
		return failResp(memcached.KEY_EEXISTS)
	case mode == memcached.Replace && !exists:
		return failResp(memcached.KEY_ENOENT)
	}

	m.nextCas++
	m.items[key] = stubItem{flags: flags, data: body, cas: m.nextCas, exp: exp}
	return &memcached.Response{Status: memcached.SUCCESS, Cas: m.nextCas}, nil
}

func (m *memBackend) Get(key string) (*memcached.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !ok {
		return failResp(memcached.KEY_ENOENT)
	}
	return successResp(it), nil
}

func (m *memBackend) Delete(key string) (*memcached.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[key]; !ok {
		return failResp(memcached.KEY_ENOENT)
	}
	delete(m.items, key)
	return &memcached.Response{Status: memcached.SUCCESS}, nil
}

func (m *memBackend) Delta(mode memcached.DeltaMode, key string, delta, initial uint64, exp uint32) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var value uint64
	it, exists := m.items[key]
	if exists {
		parsed, err := strconv.ParseUint(string(it.data), 10, 64)
		if err != nil {
			_, fErr := failResp(memcached.DELTA_BADVAL)
			return 0, fErr
		}
		if mode == memcached.Increment {
			value = parsed + delta
		} else if delta > parsed {
			value = 0
		} else {
			value = parsed - delta
		}
	} else {
		if exp == CounterNoCreate {
			_, fErr := failResp(memcached.KEY_ENOENT)
			return 0, fErr
		}
		value = initial
	}

	m.nextCas++
	m.items[key] = stubItem{data: []byte(strconv.FormatUint(value, 10)), cas: m.nextCas, exp: exp}
	return value, nil
}

func (m *memBackend) Append(mode memcached.AppendMode, key string, data []byte) (*memcached.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !ok {
		return failResp(memcached.NOT_STORED)
	}

	if mode == memcached.Append {
		it.data = append(it.data, data...)
	} else {
		it.data = append(append([]byte(nil), data...), it.data...)
	}
	m.nextCas++
	it.cas = m.nextCas
	m.items[key] = it
	return &memcached.Response{Status: memcached.SUCCESS, Cas: it.cas}, nil
}

func (m *memBackend) FlushAll(exp uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastExp = exp
	m.items = make(map[string]stubItem)
	return nil
}

func (m *memBackend) MultiDelete(keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func (m *memBackend) MultiStore(mode memcached.StoreMode, items map[string][]byte, exp uint32) error {
	for key, body := range items {
		if _, err := m.Store(mode, key, exp, body); err != nil {
			return err
		}
	}
	return nil
}

func (m *memBackend) MultiGet(keys []string) (map[string][]byte, error) {
	resps, err := m.MultiGetResponses(keys)
	if err != nil {
		return nil, err
	}
	ret := make(map[string][]byte, len(resps))
	for key, resp := range resps {
		ret[key] = resp.Body
	}
	return ret, nil
}

func (m *memBackend) MultiGetResponses(keys []string) (map[string]*memcached.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ret := make(map[string]*memcached.Response)
	for _, key := range keys {
		if it, ok := m.items[key]; ok {
			ret[key] = successResp(it)
		}
	}
	return ret, nil
}

func (m *memBackend) Version() (map[string]string, error) {
	return map[string]string{"stub:11211": "1.6.22"}, nil
}

func (m *memBackend) Stats(arg string) (map[string]map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]map[string]string{
		"stub:11211": {"curr_items": strconv.Itoa(len(m.items))},
	}, nil
}

func (m *memBackend) CloseAllConns() {}

func (m *memBackend) CloseAvailableConnsInAllShardPools(int) int { return 0 }
