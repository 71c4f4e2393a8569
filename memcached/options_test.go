package memcached

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cachewire/memcached/consistenthash"
	"github.com/cachewire/memcached/keytransform"
	"github.com/cachewire/memcached/logger"
)

func TestWithOptions(t *testing.T) {
	t.Setenv("MEMCACHED_SERVERS", "localhost:11211")

	hMcl, err := InitFromEnv(WithDisableNodeProvider())
	assert.NoError(t, err)
	assert.NotNil(t, hMcl.hr, "InitFromEnv: node locator is nil")
	assert.NotNil(t, hMcl.kt, "InitFromEnv: key transformer is nil")
	assert.NotNil(t, hMcl.fct, "InitFromEnv: operation factory is nil")

	const (
		minIdleConns = 2
		maxIdleConns = 10
		disable      = true
		enable
		authUser = "admin"
		authPass = "password"
		timeout  = 5 * time.Second
		period   = time.Second
	)

	hr := consistenthash.NewCustomHashRing(160, nil)
	kt := keytransform.Lowercase
	mcl, _ := InitFromEnv(
		WithMinIdleConns(minIdleConns),
		WithMaxIdleConns(maxIdleConns),
		WithConnectTimeout(timeout),
		WithReceiveTimeout(timeout),
		WithQueueTimeout(timeout),
		WithNodeLocator(hr),
		WithKeyTransformer(kt),
		WithOperationFactory(BinaryFactory{}),
		WithPeriodForNodeHealthCheck(period),
		WithPeriodForRebuildingNodes(period),
		WithDisableNodeProvider(),
		WithDisableRefreshConnsInPool(),
		WithDisableMemcachedDiagnostic(),
		WithAuthentication(authUser, authPass),
		WithDisableLogger(),
	)
	t.Cleanup(func() {
		mcl.CloseAllConns()
	})

	assert.Equal(t, minIdleConns, mcl.minIdleConns, "WithMinIdleConns should set minIdleConns")
	assert.Equal(t, maxIdleConns, mcl.maxIdleConns, "WithMaxIdleConns should set maxIdleConns")
	assert.Equal(t, timeout, mcl.connTimeout, "WithConnectTimeout should set connTimeout")
	assert.Equal(t, timeout, mcl.recvTimeout, "WithReceiveTimeout should set recvTimeout")
	assert.Equal(t, timeout, mcl.queueTimeout, "WithQueueTimeout should set queueTimeout")
	assert.Equal(t, hr, mcl.hr, "WithNodeLocator should set hr")
	assert.Equal(t, period, mcl.nodeHCPeriod, "WithPeriodForNodeHealthCheck should set period")
	assert.Equal(t, period, mcl.nodeRBPeriod, "WithPeriodForRebuildingNodes should set period")
	assert.Equal(t, disable, mcl.disableNodeProvider, "WithDisableNodeProvider should set disable")
	assert.Equal(t, disable, mcl.disableRefreshConns, "WithDisableRefreshConnsInPool should set disable")
	assert.Equal(t, disable, mcl.disableMemcachedDiagnostic, "WithDisableMemcachedDiagnostic should set disable")
	assert.Equal(t, enable, mcl.authEnable, "WithAuthentication should set enable")
	assert.Equal(t, prepareAuthData(authUser, authPass), mcl.authData, "WithAuthentication should prepare the auth body")
	assert.Equal(t, disable, logger.LoggerIsDisable(), "WithDisableLogger should set disable")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MEMCACHED_SERVERS", "localhost:11211")
	t.Setenv("MEMCACHED_MIN_POOL_SIZE", "3")
	t.Setenv("MEMCACHED_MAX_POOL_SIZE", "30")
	t.Setenv("MEMCACHED_CONNECT_TIMEOUT_MS", "250")
	t.Setenv("MEMCACHED_RECEIVE_TIMEOUT_MS", "750")
	t.Setenv("MEMCACHED_QUEUE_TIMEOUT_MS", "80")
	t.Setenv("MEMCACHED_DEAD_TIMEOUT_SEC", "20")
	t.Setenv("MEMCACHED_KEY_TRANSFORMER", "lowercase")
	t.Setenv("MEMCACHED_NODE_LOCATOR", "single")

	mcl, err := InitFromEnv(WithDisableNodeProvider())
	assert.NoError(t, err)
	t.Cleanup(mcl.CloseAllConns)

	assert.Equal(t, 3, mcl.minIdleConns)
	assert.Equal(t, 30, mcl.maxIdleConns)
	assert.Equal(t, 250*time.Millisecond, mcl.connTimeout)
	assert.Equal(t, 750*time.Millisecond, mcl.recvTimeout)
	assert.Equal(t, 80*time.Millisecond, mcl.queueTimeout)
	assert.Equal(t, 20*time.Second, mcl.nodeHCPeriod)
	assert.IsType(t, &consistenthash.SingleNode{}, mcl.hr, "MEMCACHED_NODE_LOCATOR=single should pick the single-node locator")
	assert.Equal(t, "abc", mcl.kt("ABC"), "MEMCACHED_KEY_TRANSFORMER=lowercase should fold keys")
}

func TestConfigUnknownProviders(t *testing.T) {
	t.Setenv("MEMCACHED_SERVERS", "localhost:11211")
	t.Setenv("MEMCACHED_NODE_LOCATOR", "nosuchlocator")

	_, err := InitFromEnv(WithDisableNodeProvider())
	assert.ErrorIs(t, err, ErrNotConfigured, "an unknown locator name must fail init")

	t.Setenv("MEMCACHED_NODE_LOCATOR", "ketama")
	t.Setenv("MEMCACHED_KEY_TRANSFORMER", "nosuchtransformer")

	_, err = InitFromEnv(WithDisableNodeProvider())
	assert.ErrorIs(t, err, ErrNotConfigured, "an unknown transformer name must fail init")
}
