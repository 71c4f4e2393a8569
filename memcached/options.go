package memcached

import (
	"time"

	"github.com/cachewire/memcached/consistenthash"
	"github.com/cachewire/memcached/keytransform"
)

type options struct {
	Client
	disableLogger bool
}

type Option func(*options)

// WithMinIdleConns is sets the number of connections dialed eagerly per address.
// By default no connections are opened until the first operation.
func WithMinIdleConns(num int) Option {
	return func(o *options) {
		o.Client.minIdleConns = num
	}
}

// WithMaxIdleConns is sets a custom value of open connections per address.
// By default, DefaultMaxIdleConns will be used.
func WithMaxIdleConns(num int) Option {
	return func(o *options) {
		o.Client.maxIdleConns = num
	}
}

// WithConnectTimeout is sets a custom timeout for the TCP connect.
// By default, DefaultConnectTimeout will be used.
func WithConnectTimeout(tm time.Duration) Option {
	return func(o *options) {
		o.Client.connTimeout = tm
	}
}

// WithReceiveTimeout is sets a custom deadline for reading one response.
// A read that misses it poisons its socket. By default,
// DefaultReceiveTimeout will be used.
func WithReceiveTimeout(tm time.Duration) Option {
	return func(o *options) {
		o.Client.recvTimeout = tm
	}
}

// WithQueueTimeout is sets a custom amount of time to wait for a socket from
// a full pool. By default, DefaultSocketPoolingTimeout will be used.
func WithQueueTimeout(tm time.Duration) Option {
	return func(o *options) {
		o.Client.queueTimeout = tm
	}
}

// WithNodeLocator for setup a custom node locator, e.g.
// consistenthash.NewCustomHashRing or consistenthash.NewSingleNode.
func WithNodeLocator(hr consistenthash.ConsistentHash) Option {
	return func(o *options) {
		o.Client.hr = hr
	}
}

// WithKeyTransformer is sets the mapping from caller keys to protocol keys.
// By default keys pass through untouched.
func WithKeyTransformer(kt keytransform.Transformer) Option {
	return func(o *options) {
		o.Client.kt = kt
	}
}

// WithOperationFactory is sets the factory producing wire operations,
// e.g. a text-dialect factory. By default BinaryFactory is used.
func WithOperationFactory(fct OperationFactory) Option {
	return func(o *options) {
		o.Client.fct = fct
	}
}

// WithPeriodForNodeHealthCheck is sets a custom frequency for health checker
// of physical nodes (the dead-node revival period).
// By default, DefaultNodeHealthCheckPeriod will be used.
func WithPeriodForNodeHealthCheck(t time.Duration) Option {
	return func(o *options) {
		o.Client.nodeHCPeriod = t
	}
}

// WithPeriodForRebuildingNodes is sets a custom frequency for reconciling the
// ring with the configured or discovered nodes (dead-node probing runs on the
// health-check period). By default, DefaultRebuildingNodePeriod will be used.
func WithPeriodForRebuildingNodes(t time.Duration) Option {
	return func(o *options) {
		o.Client.nodeRBPeriod = t
	}
}

// WithDisableNodeProvider is disabled node health cheek and rebuild nodes for hash ring
func WithDisableNodeProvider() Option {
	return func(o *options) {
		o.Client.disableNodeProvider = true
	}
}

// WithDisableRefreshConnsInPool is disabled auto close some connections in pool in NodeProvider.
// This is done to refresh connections in the pool.
func WithDisableRefreshConnsInPool() Option {
	return func(o *options) {
		o.Client.disableRefreshConns = true
	}
}

// WithDisableMemcachedDiagnostic is disabled write library metrics.
//
//	memcached_client_method_duration_seconds
//	memcached_client_dead_nodes
func WithDisableMemcachedDiagnostic() Option {
	return func(o *options) {
		o.Client.disableMemcachedDiagnostic = true
	}
}

// WithDisableLogger is disabled internal library logs.
func WithDisableLogger() Option {
	return func(o *options) {
		o.disableLogger = true
	}
}

// WithAuthentication is turn on authenticate for memcached
func WithAuthentication(user, pass string) Option {
	return func(o *options) {
		o.Client.authEnable = true
		o.Client.authData = prepareAuthData(user, pass)
	}
}
