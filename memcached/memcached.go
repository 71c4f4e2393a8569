package memcached

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/exp/maps"

	"github.com/cachewire/memcached/consistenthash"
	"github.com/cachewire/memcached/keytransform"
	"github.com/cachewire/memcached/logger"
	"github.com/cachewire/memcached/pool"
	"github.com/cachewire/memcached/utils"
)

const (
	// DefaultConnectTimeout is the default TCP connect timeout.
	DefaultConnectTimeout = 500 * time.Millisecond

	// DefaultReceiveTimeout is the default deadline for reading one response.
	DefaultReceiveTimeout = 500 * time.Millisecond

	// DefaultMaxIdleConns is the default maximum number of connections
	// kept for any single address.
	DefaultMaxIdleConns = 100

	// DefaultNodeHealthCheckPeriod is the default time period between
	// dead-node probes.
	DefaultNodeHealthCheckPeriod = 15 * time.Second
	// DefaultRebuildingNodePeriod is the default time period for rebuilds of the
	// node ring using freshly discovered nodes.
	DefaultRebuildingNodePeriod = 15 * time.Second

	// DefaultRetryCountForConn is a default number of connection retries before
	// a node is declared dead.
	DefaultRetryCountForConn = uint8(3)

	// DefaultOfNumberConnsToDestroyPerRBPeriod is number of connections in pool
	// whose needed close in every rebuild node cycle
	DefaultOfNumberConnsToDestroyPerRBPeriod = 1

	// DefaultSocketPoolingTimeout Amount of time to acquire socket from pool
	DefaultSocketPoolingTimeout = 50 * time.Millisecond
)

var _ Memcached = (*Client)(nil)

type (
	Memcached interface {
		Store(storeMode StoreMode, key string, exp uint32, body []byte) (*Response, error)
		StoreWithMeta(storeMode StoreMode, key string, flags, exp uint32, cas uint64, body []byte) (*Response, error)
		Get(key string) (*Response, error)
		Delete(key string) (*Response, error)
		Delta(deltaMode DeltaMode, key string, delta, initial uint64, exp uint32) (newValue uint64, err error)
		Append(appendMode AppendMode, key string, data []byte) (*Response, error)
		FlushAll(exp uint32) error
		MultiDelete(keys []string) error
		MultiStore(storeMode StoreMode, items map[string][]byte, exp uint32) error
		MultiGet(keys []string) (map[string][]byte, error)
		MultiGetResponses(keys []string) (map[string]*Response, error)
		Version() (map[string]string, error)
		Stats(arg string) (map[string]map[string]string, error)

		CloseAllConns()
		CloseAvailableConnsInAllShardPools(numOfClose int) int
	}

	// Client is a memcached client.
	// It is safe for unlocked use by multiple concurrent goroutines.
	Client struct {
		ctx context.Context
		nw  *network
		cfg *config

		// opaque - a unique identifier for the request, used to associate the
		// request with its corresponding response.
		opaque *uint32

		// fct builds the wire operations; BinaryFactory unless overridden.
		fct OperationFactory

		// kt maps caller keys onto protocol keys before validation.
		kt keytransform.Transformer

		// hr - node locator (ketama ring unless overridden).
		hr consistenthash.ConsistentHash

		// connTimeout bounds the TCP connect; DefaultConnectTimeout if zero.
		connTimeout time.Duration
		// recvTimeout bounds every response read; DefaultReceiveTimeout if
		// zero. A read that misses the deadline poisons its socket.
		recvTimeout time.Duration
		// queueTimeout bounds waiting for a pooled socket;
		// DefaultSocketPoolingTimeout if zero.
		queueTimeout time.Duration

		// minIdleConns is the number of connections dialed eagerly per address.
		minIdleConns int
		// maxIdleConns specifies the maximum number of connections maintained
		// per address. If less than one, DefaultMaxIdleConns will be used.
		//
		// Consider your expected traffic rates and latency carefully. This
		// should be set to a number higher than your peak parallel requests.
		maxIdleConns int

		// disableMemcachedDiagnostic - is flag for turn off write metrics from lib.
		disableMemcachedDiagnostic bool
		// disableNodeProvider - is flag for turn off rebuild and health check nodes.
		disableNodeProvider bool
		// disableRefreshConns - is flag for turn off to refresh conns in the pool.
		disableRefreshConns bool
		// nodeHCPeriod - period for execute nodes health checker
		// if zero, DefaultNodeHealthCheckPeriod is used.
		nodeHCPeriod time.Duration
		// nodeRBPeriod - period for execute rebuilding nodes
		// if zero, DefaultRebuildingNodePeriod is used.
		nodeRBPeriod time.Duration

		// fmu - mutex for freeConns
		fmu sync.RWMutex
		// freeConns hashmap with nodes and their open dial connections
		freeConns map[string]*pool.Pool
		// dmu - mutex for deadNodes
		dmu sync.RWMutex
		// deadNodes hashmap with nodes that observed an I/O failure or did
		// not respond to a health check
		deadNodes map[string]struct{}

		authEnable bool
		// authData ready body for authentication request
		authData []byte
	}

	network struct {
		dial        func(network string, address string) (net.Conn, error)
		dialTimeout func(network string, address string, timeout time.Duration) (net.Conn, error)
		lookupHost  func(host string) (addrs []string, err error)
	}

	config struct {
		// HeadlessServiceAddress Headless service to lookup all the memcached ip addresses.
		HeadlessServiceAddress string `envconfig:"MEMCACHED_HEADLESS_SERVICE_ADDRESS"`
		// Servers List of servers with hosted memcached
		Servers []string `envconfig:"MEMCACHED_SERVERS"`
		// MemcachedPort The optional port override for cases when memcached IP
		// addresses are obtained from headless service.
		MemcachedPort int `envconfig:"MEMCACHED_PORT" default:"11211"`

		// Socket pool shape and timeouts.
		MinPoolSize      int `envconfig:"MEMCACHED_MIN_POOL_SIZE"`
		MaxPoolSize      int `envconfig:"MEMCACHED_MAX_POOL_SIZE"`
		ConnectTimeoutMs int `envconfig:"MEMCACHED_CONNECT_TIMEOUT_MS"`
		ReceiveTimeoutMs int `envconfig:"MEMCACHED_RECEIVE_TIMEOUT_MS"`
		QueueTimeoutMs   int `envconfig:"MEMCACHED_QUEUE_TIMEOUT_MS"`
		DeadTimeoutSec   int `envconfig:"MEMCACHED_DEAD_TIMEOUT_SEC"`

		// Named providers, resolved through the package registries.
		KeyTransformer string `envconfig:"MEMCACHED_KEY_TRANSFORMER" default:"identity"`
		NodeLocator    string `envconfig:"MEMCACHED_NODE_LOCATOR" default:"ketama"`

		AuthUser     string `envconfig:"MEMCACHED_AUTH_USER"`
		AuthPassword string `envconfig:"MEMCACHED_AUTH_PASSWORD"`
	}

	conn struct {
		nc      net.Conn
		rc      io.ReadCloser
		addr    net.Addr
		c       *Client
		hdrBuf  []byte
		healthy bool
		wrtBuf  *bufio.Writer
		authed  bool
	}
)

// InitFromEnv returns a memcached client using the config.HeadlessServiceAddress
// or config.Servers with equal weight. A server listed multiple times is
// added to the ring once; repeated entries carry no extra weight.
func InitFromEnv(opts ...Option) (*Client, error) {
	var (
		op  = new(options)
		cfg = new(config)
	)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("%s: client init err: %s", libPrefix, err.Error())
	}

	op.cfg = cfg

	for _, opt := range opts {
		opt(op)
	}

	if op.Client.nw == nil {
		op.Client.nw = &network{
			dial:        net.Dial,
			dialTimeout: net.DialTimeout,
			lookupHost:  net.LookupHost,
		}
	}
	if op.Client.fct == nil {
		op.Client.fct = BinaryFactory{}
	}
	if op.Client.hr == nil {
		hr, err := consistenthash.New(cfg.NodeLocator)
		if err != nil {
			return nil, fmt.Errorf("%w, %s", ErrNotConfigured, err.Error())
		}
		op.Client.hr = hr
	}
	if op.Client.kt == nil {
		kt, err := keytransform.New(cfg.KeyTransformer)
		if err != nil {
			return nil, fmt.Errorf("%w, %s", ErrNotConfigured, err.Error())
		}
		op.Client.kt = kt
	}
	if op.Client.ctx == nil {
		op.Client.ctx = context.Background()
	}
	if op.Client.opaque == nil {
		op.Client.opaque = new(uint32)
	}
	if !op.Client.authEnable && cfg.AuthUser != "" {
		op.Client.authEnable = true
		op.Client.authData = prepareAuthData(cfg.AuthUser, cfg.AuthPassword)
	}
	applyConfigTimeouts(&op.Client, cfg)
	if op.disableLogger {
		logger.DisableLogger()
	}

	return newFromConfig(op)
}

// applyConfigTimeouts fills pool shape and timeouts from the environment for
// every knob not already set through an Option.
func applyConfigTimeouts(c *Client, cfg *config) {
	if c.minIdleConns == 0 && cfg.MinPoolSize > 0 {
		c.minIdleConns = cfg.MinPoolSize
	}
	if c.maxIdleConns == 0 && cfg.MaxPoolSize > 0 {
		c.maxIdleConns = cfg.MaxPoolSize
	}
	if c.connTimeout == 0 && cfg.ConnectTimeoutMs > 0 {
		c.connTimeout = time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond
	}
	if c.recvTimeout == 0 && cfg.ReceiveTimeoutMs > 0 {
		c.recvTimeout = time.Duration(cfg.ReceiveTimeoutMs) * time.Millisecond
	}
	if c.queueTimeout == 0 && cfg.QueueTimeoutMs > 0 {
		c.queueTimeout = time.Duration(cfg.QueueTimeoutMs) * time.Millisecond
	}
	if c.nodeHCPeriod == 0 && cfg.DeadTimeoutSec > 0 {
		c.nodeHCPeriod = time.Duration(cfg.DeadTimeoutSec) * time.Second
	}
}

func newForTests(servers ...string) (*Client, error) {
	hr := consistenthash.NewHashRing()
	for _, s := range servers {
		addr, err := utils.AddrRepr(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAddr, err.Error())
		}
		hr.Add(addr)
	}
	cm := &Client{
		ctx:                        context.Background(),
		opaque:                     new(uint32),
		fct:                        BinaryFactory{},
		kt:                         keytransform.Identity,
		hr:                         hr,
		deadNodes:                  make(map[string]struct{}),
		disableMemcachedDiagnostic: true,
		disableNodeProvider:        true,
		nw: &network{
			dial:        net.Dial,
			dialTimeout: net.DialTimeout,
			lookupHost:  net.LookupHost,
		},
	}

	return cm, nil
}

func newFromConfig(op *options) (*Client, error) {
	if op.cfg != nil && !(op.cfg.HeadlessServiceAddress != "" || len(op.cfg.Servers) != 0) {
		return nil, fmt.Errorf("%w, you must fill in either MEMCACHED_HEADLESS_SERVICE_ADDRESS or MEMCACHED_SERVERS", ErrNotConfigured)
	}
	nodes, err := getNodes(op.nw.lookupHost, op.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w, %s", ErrInvalidAddr, err.Error())
	}

	mc := &op.Client

	for _, n := range nodes {
		addr, err := utils.AddrRepr(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAddr, err.Error())
		}
		mc.hr.Add(addr)
	}

	if mc.deadNodes == nil {
		mc.deadNodes = make(map[string]struct{})
	}

	if !mc.disableNodeProvider {
		mc.initNodesProvider()
	}
	return mc, nil
}

// release returns this connection back to the client's free pool
func (cn *conn) release() {
	cn.c.putFreeConn(cn)
}

func (cn *conn) close() {
	if p, ok := cn.c.safeGetFreeConn(cn.addr); ok {
		p.Close(cn)
	} else {
		_ = cn.rc.Close()
	}
}

// condRelease releases this connection if the error pointed to by err
// is nil (not an error) or is only a protocol level error (e.g. a
// cache miss).  The purpose is to not recycle TCP connections that
// are bad.
func (cn *conn) condRelease(err *error) {
	if (*err == nil || resumableError(*err)) && cn.healthy {
		cn.release()
	} else {
		cn.close()
	}
}

// setReadDeadline arms the receive timeout before a response read. A read
// missing the deadline surfaces as a net timeout error, which is fatal and
// poisons the connection.
func (cn *conn) setReadDeadline(d time.Duration) {
	if cn.nc != nil && d > 0 {
		_ = cn.nc.SetReadDeadline(time.Now().Add(d))
	}
}

func (c *Client) getOpaque() uint32 {
	atomic.CompareAndSwapUint32(c.opaque, math.MaxUint32, uint32(0))
	return atomic.AddUint32(c.opaque, uint32(1))
}

// transformKey maps a caller key onto the protocol key.
func (c *Client) transformKey(key string) string {
	if c.kt == nil {
		return key
	}
	return c.kt(key)
}

func (c *Client) safeGetFreeConn(addr net.Addr) (*pool.Pool, bool) {
	c.fmu.RLock()
	defer c.fmu.RUnlock()
	connPool, ok := c.freeConns[addr.String()]
	return connPool, ok
}

func (c *Client) safeGetOrInitFreeConn(addr net.Addr) *pool.Pool {
	c.fmu.Lock()
	defer c.fmu.Unlock()

	connPool, ok := c.freeConns[addr.String()]
	if ok {
		return connPool
	}

	dialConn := func() (any, error) {
		nc, err := c.dial(addr)
		if err != nil {
			return nil, err
		}
		return &conn{
			nc:      nc,
			rc:      nc,
			addr:    addr,
			c:       c,
			hdrBuf:  make([]byte, HDR_LEN),
			wrtBuf:  bufio.NewWriter(nc),
			healthy: true,
		}, nil
	}

	closeConn := func(cn any) {
		_ = cn.(*conn).rc.Close()
	}

	newPool := pool.New(c.ctx, int32(c.getMinIdleConns()), int32(c.getMaxIdleConns()),
		c.getQueueTimeout(), dialConn, closeConn)

	if c.freeConns == nil {
		c.freeConns = make(map[string]*pool.Pool)
	}
	c.freeConns[addr.String()] = newPool

	return newPool
}

func (c *Client) freeConnsIsNil() bool {
	c.fmu.RLock()
	defer c.fmu.RUnlock()
	return c.freeConns == nil
}

func (c *Client) putFreeConn(cn *conn) {
	connPool, ok := c.safeGetFreeConn(cn.addr)
	if ok {
		connPool.Put(cn)
	} else {
		_ = cn.rc.Close()
	}
}

func (c *Client) getFreeConn(addr net.Addr) (*conn, error) {
	connPool := c.safeGetOrInitFreeConn(addr)

	connRaw, err := connPool.Get()
	if err != nil {
		// a failed dial means the node itself is unreachable; pool
		// exhaustion is local congestion and keeps the node alive
		if !errors.Is(err, pool.ErrAcquireTimeout) && !errors.Is(err, pool.ErrClosedPool) {
			c.suspectNode(addr)
		}
		return nil, fmt.Errorf("%s: Get from pool error - %w", libPrefix, err)
	}

	cn := connRaw.(*conn)

	if c.authEnable && !cn.authed {
		if aErr := c.authenticate(cn); aErr != nil {
			cn.close()
			return nil, fmt.Errorf("%w: %s", ErrAuthFail, aErr.Error())
		}
		cn.authed = true
	}

	return cn, nil
}

func (c *Client) removeFromFreeConns(addr net.Addr) {
	if c.freeConnsIsNil() {
		return
	}
	connPool, ok := c.safeGetFreeConn(addr)

	c.fmu.Lock()
	defer c.fmu.Unlock()
	if ok {
		connPool.Destroy()
	}
	delete(c.freeConns, addr.String())
}

func (c *Client) connectTimeout() time.Duration {
	if c.connTimeout != 0 {
		return c.connTimeout
	}
	return DefaultConnectTimeout
}

func (c *Client) receiveTimeout() time.Duration {
	if c.recvTimeout != 0 {
		return c.recvTimeout
	}
	return DefaultReceiveTimeout
}

func (c *Client) getQueueTimeout() time.Duration {
	if c.queueTimeout != 0 {
		return c.queueTimeout
	}
	return DefaultSocketPoolingTimeout
}

func (c *Client) getMinIdleConns() int {
	if c.minIdleConns > 0 {
		return c.minIdleConns
	}
	return 0
}

func (c *Client) getMaxIdleConns() int {
	if c.maxIdleConns > 0 {
		return c.maxIdleConns
	}
	return DefaultMaxIdleConns
}

func (c *Client) getHCPeriod() time.Duration {
	if c.nodeHCPeriod > 0 {
		return c.nodeHCPeriod
	}
	return DefaultNodeHealthCheckPeriod
}

func (c *Client) getRBPeriod() time.Duration {
	if c.nodeRBPeriod > 0 {
		return c.nodeRBPeriod
	}
	return DefaultRebuildingNodePeriod
}

// ConnectTimeoutError is the error type used when it takes
// too long to connect to the desired host. This level of
// detail can generally be ignored.
type ConnectTimeoutError struct {
	Addr net.Addr
}

func (cte *ConnectTimeoutError) Error() string {
	return "connect timeout to " + cte.Addr.String()
}

func (c *Client) dial(addr net.Addr) (net.Conn, error) {
	if c.connectTimeout() > 0 {
		nc, err := c.nw.dialTimeout(addr.Network(), addr.String(), c.connectTimeout())
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, &ConnectTimeoutError{addr}
			}
			return nil, err
		}
		return nc, nil
	}
	return c.nw.dial(addr.Network(), addr.String())
}

func (c *Client) getConnForNode(node any) (*conn, error) {
	addr, ok := node.(net.Addr)
	if !ok {
		return nil, ErrInvalidAddr
	}
	cn, err := c.getFreeConn(addr)
	if err != nil {
		return nil, err
	}

	return cn, nil
}

// pickNode validates the (already transformed) key and locates its node.
func (c *Client) pickNode(key string) (any, error) {
	if !legalKey(key) {
		return nil, ErrMalformedKey
	}
	node, find := c.hr.Get(key)
	if !find {
		return nil, ErrNoServers
	}
	return node, nil
}

// Store is a wrote the provided item with expiration.
func (c *Client) Store(storeMode StoreMode, key string, exp uint32, body []byte) (*Response, error) {
	return c.StoreWithMeta(storeMode, key, 0, exp, 0, body)
}

// StoreWithMeta writes the provided item carrying an item flags word and,
// when cas is nonzero, succeeds only if the stored item still has that cas
// value (KEY_EEXISTS otherwise, KEY_ENOENT when the item vanished).
func (c *Client) StoreWithMeta(storeMode StoreMode, key string, flags, exp uint32, cas uint64, body []byte) (_ *Response, err error) {
	timer := time.Now()
	defer c.writeMethodDiagnostics("Store", timer, &err)

	key = c.transformKey(key)

	node, err := c.pickNode(key)
	if err != nil {
		return nil, err
	}

	cn, err := c.getConnForNode(node)
	if err != nil {
		return nil, err
	}

	req := c.fct.Store(storeMode.Resolve(), key, flags, exp, cas, c.getOpaque(), body)
	return c.send(cn, req)
}

func (c *Client) send(cn *conn, req *Request) (resp *Response, err error) {
	defer cn.condRelease(&err)
	_, err = transmitRequest(cn.wrtBuf, req)
	if err != nil {
		cn.healthy = false
		c.suspectNode(cn.addr)
		return
	}

	if err = cn.wrtBuf.Flush(); err != nil {
		cn.healthy = false
		c.suspectNode(cn.addr)
		return nil, err
	}

	cn.setReadDeadline(c.receiveTimeout())

	resp, _, err = getResponse(cn.rc, cn.hdrBuf)
	cn.healthy = !isFatal(err)
	if !cn.healthy {
		c.suspectNode(cn.addr)
	}
	return resp, err
}

// Get is return an item for provided key.
func (c *Client) Get(key string) (_ *Response, err error) {
	timer := time.Now()
	defer c.writeMethodDiagnostics("Get", timer, &err)

	key = c.transformKey(key)

	node, err := c.pickNode(key)
	if err != nil {
		return nil, err
	}

	cn, err := c.getConnForNode(node)
	if err != nil {
		return nil, err
	}

	return c.send(cn, c.fct.Get(key, c.getOpaque()))
}

// Delete is a deletes the element with the provided key.
// If the element does not exist, an ErrCacheMiss error is returned.
func (c *Client) Delete(key string) (_ *Response, err error) {
	timer := time.Now()
	defer c.writeMethodDiagnostics("Delete", timer, &err)

	key = c.transformKey(key)

	node, err := c.pickNode(key)
	if err != nil {
		return nil, err
	}

	cn, err := c.getConnForNode(node)
	if err != nil {
		return nil, err
	}

	return c.send(cn, c.fct.Delete(DELETE, key, c.getOpaque()))
}

// Delta is an atomically increments/decrements value by delta. The return value is
// the new value after being incremented/decrements or an error. An exp of
// 0xffffffff fails with ErrCacheMiss instead of seeding initial.
func (c *Client) Delta(deltaMode DeltaMode, key string, delta, initial uint64, exp uint32) (newValue uint64, err error) {
	timer := time.Now()
	defer c.writeMethodDiagnostics("Delta", timer, &err)

	key = c.transformKey(key)

	node, err := c.pickNode(key)
	if err != nil {
		return 0, err
	}

	cn, err := c.getConnForNode(node)
	if err != nil {
		return 0, err
	}

	req := c.fct.Delta(deltaMode.Resolve(), key, delta, initial, exp, c.getOpaque())

	resp, err := c.send(cn, req)
	if err != nil {
		return 0, err
	}
	if len(resp.Body) < 8 {
		return 0, fmt.Errorf("%w. short delta response body", ErrServerError)
	}

	return binary.BigEndian.Uint64(resp.Body), nil
}

// Append is an appends/prepends the given item to the existing item, if a value already
// exists for its key. ErrNotStored is returned if that condition is not met.
func (c *Client) Append(appendMode AppendMode, key string, data []byte) (_ *Response, err error) {
	timer := time.Now()
	defer c.writeMethodDiagnostics("Append", timer, &err)

	key = c.transformKey(key)

	node, err := c.pickNode(key)
	if err != nil {
		return nil, err
	}

	cn, err := c.getConnForNode(node)
	if err != nil {
		return nil, err
	}

	return c.send(cn, c.fct.Concat(appendMode.Resolve(), key, c.getOpaque(), data))
}

// FlushAll is a deletes all items in the cache.
func (c *Client) FlushAll(exp uint32) (err error) {
	timerMethod := time.Now()
	defer c.writeMethodDiagnostics("FlushAll", timerMethod, &err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		multiErr error

		nodes = c.hr.GetAllNodes()
	)

	addToMultiErr := func(e error) {
		mu.Lock()
		defer mu.Unlock()
		multiErr = errors.Join(multiErr, e)
	}

	for _, node := range nodes {
		wg.Add(1)
		go func(node any) {
			defer wg.Done()

			var opErr error

			cn, nErr := c.getConnForNode(node)
			if nErr != nil {
				addToMultiErr(nErr)
				return
			}

			_, opErr = c.send(cn, c.fct.Flush(exp, c.getOpaque()))
			if opErr != nil {
				addToMultiErr(opErr)
			}
		}(node)
	}

	wg.Wait()

	return multiErr
}

// Version asks every live node for its server version. The returned map is
// keyed by node address.
func (c *Client) Version() (_ map[string]string, err error) {
	timerMethod := time.Now()
	defer c.writeMethodDiagnostics("Version", timerMethod, &err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex

		versions = make(map[string]string)
		multiErr error
	)

	for _, node := range c.hr.GetAllNodes() {
		wg.Add(1)
		go func(node any) {
			defer wg.Done()

			cn, nErr := c.getConnForNode(node)
			if nErr != nil {
				mu.Lock()
				multiErr = errors.Join(multiErr, nErr)
				mu.Unlock()
				return
			}

			resp, opErr := c.send(cn, c.fct.Version(c.getOpaque()))

			mu.Lock()
			defer mu.Unlock()
			if opErr != nil {
				multiErr = errors.Join(multiErr, opErr)
				return
			}
			versions[utils.Repr(node)] = string(resp.Body)
		}(node)
	}

	wg.Wait()

	return versions, multiErr
}

// Stats collects the statistics group named by arg (empty for the default
// group) from every live node. The returned map is keyed by node address,
// each value maps stat name to value.
func (c *Client) Stats(arg string) (_ map[string]map[string]string, err error) {
	timerMethod := time.Now()
	defer c.writeMethodDiagnostics("Stats", timerMethod, &err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex

		stats    = make(map[string]map[string]string)
		multiErr error
	)

	for _, node := range c.hr.GetAllNodes() {
		wg.Add(1)
		go func(node any) {
			defer wg.Done()

			var opErr error

			cn, nErr := c.getConnForNode(node)
			if nErr != nil {
				mu.Lock()
				multiErr = errors.Join(multiErr, nErr)
				mu.Unlock()
				return
			}
			defer cn.condRelease(&opErr)

			_, opErr = transmitRequest(cn.wrtBuf, c.fct.Stat(arg, c.getOpaque()))
			if opErr != nil {
				cn.healthy = false
				c.suspectNode(cn.addr)
				return
			}
			if opErr = cn.wrtBuf.Flush(); opErr != nil {
				cn.healthy = false
				c.suspectNode(cn.addr)
				return
			}

			nodeStats := make(map[string]string)
			for {
				cn.setReadDeadline(c.receiveTimeout())

				var resp *Response
				resp, _, opErr = getResponse(cn.rc, cn.hdrBuf)
				if opErr != nil {
					if isFatal(opErr) {
						cn.healthy = false
						c.suspectNode(cn.addr)
					}
					mu.Lock()
					multiErr = errors.Join(multiErr, opErr)
					mu.Unlock()
					return
				}

				// the stats stream ends with an empty key/value packet
				if len(resp.Key) == 0 && len(resp.Body) == 0 {
					break
				}
				nodeStats[string(resp.Key)] = string(resp.Body)
			}

			mu.Lock()
			stats[utils.Repr(node)] = nodeStats
			mu.Unlock()
		}(node)
	}

	wg.Wait()

	return stats, multiErr
}

// MultiGet is a batch version of Get. The returned map from keys to
// values may have fewer elements than the input slice, due to memcached
// cache misses or nodes that failed mid-pipeline; per-node failures are
// misses, never errors. Each key must be at most 250 bytes in length.
// If no error is returned, the returned map will also be non-nil.
func (c *Client) MultiGet(keys []string) (map[string][]byte, error) {
	resps, err := c.MultiGetResponses(keys)
	if err != nil {
		return nil, err
	}

	ret := make(map[string][]byte, len(resps))
	for key, resp := range resps {
		ret[key] = resp.Body
	}
	return ret, nil
}

// MultiGetResponses is MultiGet keeping the full response per key, so
// callers can reach the item flags and cas token.
func (c *Client) MultiGetResponses(keys []string) (_ map[string]*Response, err error) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex

		ret = make(map[string]*Response, len(keys))
	)
	if len(keys) == 0 {
		return ret, nil
	}

	timerMethod := time.Now()
	defer c.writeMethodDiagnostics("MultiGet", timerMethod, &err)

	if len(keys) == 1 {
		var res *Response
		res, err = c.Get(keys[0])
		if res != nil {
			if res.Status == SUCCESS {
				ret[keys[0]] = res
			} else if res.Status == KEY_ENOENT {
				// MultiGet never returns a ENOENT
				err = nil
			}
		}
		if !errors.Is(err, ErrMalformedKey) {
			// a failed node leaves the key absent, never an error
			err = nil
		}
		return ret, err
	}

	addToRet := func(key string, resp *Response) {
		mu.Lock()
		defer mu.Unlock()
		ret[key] = resp
	}

	nodes, err := c.nodesForKeys(keys)
	if err != nil {
		return ret, err
	}

	for node, ks := range nodes {
		wg.Add(1)
		go func(node any, keys []keyPair) {
			defer wg.Done()

			var cnErr error

			cn, nErr := c.getConnForNode(node)
			if nErr != nil {
				return
			}
			defer cn.condRelease(&cnErr)

			idToKey := make(map[uint32]string, len(keys))

			for _, kp := range keys {
				opaqueGet := c.getOpaque()
				req := c.fct.GetKQ(kp.wire, opaqueGet)

				_, cnErr = transmitRequest(cn.wrtBuf, req)
				if cnErr != nil {
					cn.healthy = false
					c.suspectNode(cn.addr)
					return
				}

				idToKey[opaqueGet] = kp.caller
			}

			opaqueNOOP := c.getOpaque()
			_, cnErr = transmitRequest(cn.wrtBuf, c.fct.Noop(opaqueNOOP))
			if cnErr != nil {
				cn.healthy = false
				c.suspectNode(cn.addr)
				return
			}

			if cnErr = cn.wrtBuf.Flush(); cnErr != nil {
				cn.healthy = false
				c.suspectNode(cn.addr)
				return
			}

			for {
				cn.setReadDeadline(c.receiveTimeout())

				var resp *Response
				resp, _, cnErr = getResponse(cn.rc, cn.hdrBuf)
				if isFatal(cnErr) {
					cn.healthy = false
					c.suspectNode(cn.addr)
					return
				}

				if resp.Opcode == NOOP && resp.Opaque == opaqueNOOP {
					break
				}

				if key, ok := idToKey[resp.Opaque]; ok && cnErr == nil {
					addToRet(key, resp)
				}
			}
		}(node, ks)
	}

	wg.Wait()

	return ret, nil
}

// MultiStore is a batch version of Store.
// Writes the provided items with expiration.
func (c *Client) MultiStore(storeMode StoreMode, items map[string][]byte, exp uint32) (err error) {
	if len(items) == 0 {
		return nil
	}

	timerMethod := time.Now()
	defer c.writeMethodDiagnostics("MultiStore", timerMethod, &err)

	var (
		wg       sync.WaitGroup
		muMErr   sync.Mutex
		multiErr error
	)

	addToMultiErr := func(e error) {
		muMErr.Lock()
		defer muMErr.Unlock()
		multiErr = errors.Join(multiErr, e)
	}

	quietCode := storeMode.Resolve().changeOnQuiet(SETQ)

	nodes, err := c.nodesForKeys(maps.Keys(items))
	if err != nil {
		return err
	}

	for node, ks := range nodes {
		wg.Add(1)
		go func(node any, keys []keyPair, exp uint32) {
			defer wg.Done()

			var cnErr error

			cn, nErr := c.getConnForNode(node)
			if nErr != nil {
				addToMultiErr(nErr)
				return
			}
			defer cn.condRelease(&cnErr)

			idToKey := make(map[uint32]string, len(keys))

			for _, kp := range keys {
				opaqueStore := c.getOpaque()
				req := c.fct.Store(quietCode, kp.wire, 0, exp, 0, opaqueStore, items[kp.caller])

				_, cnErr = transmitRequest(cn.wrtBuf, req)
				if cnErr != nil {
					cn.healthy = false
					c.suspectNode(cn.addr)
					return
				}

				idToKey[opaqueStore] = kp.caller
			}

			opaqueNOOP := c.getOpaque()
			_, cnErr = transmitRequest(cn.wrtBuf, c.fct.Noop(opaqueNOOP))
			if cnErr != nil {
				cn.healthy = false
				c.suspectNode(cn.addr)
				return
			}

			if cnErr = cn.wrtBuf.Flush(); cnErr != nil {
				cn.healthy = false
				c.suspectNode(cn.addr)
				return
			}

			for {
				cn.setReadDeadline(c.receiveTimeout())

				var resp *Response
				resp, _, cnErr = getResponse(cn.rc, cn.hdrBuf)
				if isFatal(cnErr) {
					cn.healthy = false
					c.suspectNode(cn.addr)
					return
				}

				if resp.Opcode == NOOP && resp.Opaque == opaqueNOOP {
					break
				}

				if key, ok := idToKey[resp.Opaque]; ok {
					if resp.Status != SUCCESS {
						addToMultiErr(fmt.Errorf("%w. Error for key - %s", cnErr, key))
					}
				}
			}
		}(node, ks, exp)
	}

	wg.Wait()

	return multiErr
}

// MultiDelete is a batch version of Delete.
// Deletes the items with the provided keys.
// If there is a key in the provided keys that is missing in the cache,
// the ErrCacheMiss error is ignored.
func (c *Client) MultiDelete(keys []string) (err error) {
	if len(keys) == 0 {
		return nil
	}

	timerMethod := time.Now()
	defer c.writeMethodDiagnostics("MultiDelete", timerMethod, &err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		multiErr error
	)

	addToMultiErr := func(e error) {
		mu.Lock()
		defer mu.Unlock()
		multiErr = errors.Join(multiErr, e)
	}

	nodes, err := c.nodesForKeys(keys)
	if err != nil {
		return err
	}

	for node, ks := range nodes {
		wg.Add(1)
		go func(node any, keys []keyPair) {
			defer wg.Done()

			var cnErr error

			cn, nErr := c.getConnForNode(node)
			if nErr != nil {
				addToMultiErr(nErr)
				return
			}
			defer cn.condRelease(&cnErr)

			idToKey := make(map[uint32]string, len(keys))

			for _, kp := range keys {
				opaqueDel := c.getOpaque()
				req := c.fct.Delete(DELETEQ, kp.wire, opaqueDel)

				_, cnErr = transmitRequest(cn.wrtBuf, req)
				if cnErr != nil {
					cn.healthy = false
					c.suspectNode(cn.addr)
					return
				}

				idToKey[opaqueDel] = kp.caller
			}

			opaqueNOOP := c.getOpaque()
			_, cnErr = transmitRequest(cn.wrtBuf, c.fct.Noop(opaqueNOOP))
			if cnErr != nil {
				cn.healthy = false
				c.suspectNode(cn.addr)
				return
			}

			if cnErr = cn.wrtBuf.Flush(); cnErr != nil {
				cn.healthy = false
				c.suspectNode(cn.addr)
				return
			}

			for {
				cn.setReadDeadline(c.receiveTimeout())

				var resp *Response
				resp, _, cnErr = getResponse(cn.rc, cn.hdrBuf)
				if isFatal(cnErr) {
					cn.healthy = false
					c.suspectNode(cn.addr)
					return
				}

				if resp.Opcode == NOOP && resp.Opaque == opaqueNOOP {
					break
				}

				if key, ok := idToKey[resp.Opaque]; ok {
					if resp.Status != SUCCESS && resp.Status != KEY_ENOENT {
						addToMultiErr(fmt.Errorf("%w. Error for key - %s", cnErr, key))
					}
				}
			}
		}(node, ks)
	}

	wg.Wait()

	return multiErr
}

// CloseAllConns is close all opened connection per shards.
// Once closed, resources should be released.
func (c *Client) CloseAllConns() {
	c.fmu.Lock()
	defer c.fmu.Unlock()

	for addr, connPool := range c.freeConns {
		connPool.Destroy()
		delete(c.freeConns, addr)
	}
}

// CloseAvailableConnsInAllShardPools - removes the specified number of connections from the pools of all shards.
func (c *Client) CloseAvailableConnsInAllShardPools(numOfClose int) int {
	var closed int

	c.fmu.Lock()
	defer c.fmu.Unlock()

	for _, p := range c.freeConns {
		for i := 0; i < numOfClose; i++ {
			if connRaw, ok := p.Pop(); ok {
				p.Close(connRaw)
				closed++
			}
		}
	}

	return closed
}

func (c *Client) writeMethodDiagnostics(methodName string, timer time.Time, err *error) {
	if methodName == "" || c.disableMemcachedDiagnostic {
		return
	}

	observeMethodDurationSeconds(methodName, time.Since(timer).Seconds(), *err == nil)
}

func legalKey(key string) bool {
	if len(key) == 0 || len(key) > 250 {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}

// keyPair keeps the caller's key next to its transformed wire form, so
// batch results come back keyed the way the caller asked.
type keyPair struct {
	caller string
	wire   string
}

// nodesForKeys transforms and validates every key, then partitions them by
// owning node.
func (c *Client) nodesForKeys(keys []string) (map[any][]keyPair, error) {
	resp := make(map[any][]keyPair, c.hr.GetNodesCount())

	for _, key := range keys {
		wire := c.transformKey(key)
		if !legalKey(wire) {
			return nil, fmt.Errorf("%w. Invalid key - %v", ErrMalformedKey, key)
		}
		if node, found := c.hr.Get(wire); found {
			resp[node] = append(resp[node], keyPair{caller: key, wire: wire})
		}
	}

	return resp, nil
}
