package memcached

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachewire/memcached/utils"
)

func Test_getNodes(t *testing.T) {
	type args struct {
		cfg  *config
		mock *network
	}
	tests := []struct {
		name    string
		args    args
		want    []string
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name: "Servers",
			args: args{
				mock: &network{lookupHost: func(host string) (addrs []string, err error) {
					return []string{"127.0.0.1:11211", "127.0.0.2:11211"}, nil
				}},
				cfg: &config{
					Servers: []string{"127.0.0.1:11211", "127.0.0.2:11211"},
				}},
			want: []string{"127.0.0.1:11211", "127.0.0.2:11211"},
			wantErr: func(t assert.TestingT, err error, i ...interface{}) bool {
				if err != nil {
					t.Errorf("getNodes have error - %v", err)
					return false
				}
				return true
			},
		},
		{
			name: "Headless",
			args: args{
				mock: &network{lookupHost: func(host string) (addrs []string, err error) {
					return []string{"93.184.216.34", "123.323.32.11"}, nil
				}},
				cfg: &config{
					HeadlessServiceAddress: "example.com",
					MemcachedPort:          11211,
				}},
			want: []string{"93.184.216.34:11211", "123.323.32.11:11211"},
			wantErr: func(t assert.TestingT, err error, i ...interface{}) bool {
				if err != nil {
					t.Errorf("getNodes have error - %v", err)
					return false
				}
				return true
			},
		},
		{
			name: "config nil",
			args: args{
				mock: &network{lookupHost: func(_ string) (_ []string, _ error) {
					return
				}},
				cfg: nil},
			want: []string{},
			wantErr: func(t assert.TestingT, err error, i ...interface{}) bool {
				if err != nil {
					t.Errorf("getNodes have error - %v", err)
					return false
				}
				return true
			},
		},
		{
			name: "error",
			args: args{
				mock: &network{lookupHost: func(host string) (addrs []string, err error) {
					return nil, &net.DNSError{
						Err:  "no such host",
						Name: "fakeaddress.r",
					}
				}},
				cfg: &config{HeadlessServiceAddress: "fakeaddress.r"}},
			want: nil,
			wantErr: func(t assert.TestingT, err error, i ...interface{}) bool {
				if err != nil {
					dnsError := new(net.DNSError)
					assert.ErrorAs(t, err, &dnsError, "Error should be as net.DNSError")
					return true
				}
				return false
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := getNodes(tt.args.mock.lookupHost, tt.args.cfg)
			tt.wantErr(t, err)
			assert.Equalf(t, tt.want, got, "getNodes returned unexpected nodes")
		})
	}
}

func TestSuspectNodeLeavesRing(t *testing.T) {
	mc, err := newForTests("127.0.0.1:11211", "127.0.0.2:11211")
	require.NoError(t, err)

	assert.Equal(t, 2, mc.hr.GetNodesCount())

	addr, err := utils.AddrRepr("127.0.0.1:11211")
	require.NoError(t, err)

	mc.suspectNode(addr)
	assert.Equal(t, 1, mc.hr.GetNodesCount(), "a suspected node must leave the locator")

	deadNodes := mc.safeGetDeadNodes()
	_, dead := deadNodes[addr.String()]
	assert.True(t, dead, "a suspected node must be tracked as dead")

	// suspecting the same node twice is a no-op
	mc.suspectNode(addr)
	assert.Equal(t, 1, mc.hr.GetNodesCount())
}

func TestRebuildNodesRestoresRevived(t *testing.T) {
	mc, err := newForTests("127.0.0.1:11211", "127.0.0.2:11211")
	require.NoError(t, err)
	mc.cfg = &config{Servers: []string{"127.0.0.1:11211", "127.0.0.2:11211"}}

	addr, err := utils.AddrRepr("127.0.0.1:11211")
	require.NoError(t, err)

	mc.suspectNode(addr)
	require.Equal(t, 1, mc.hr.GetNodesCount())

	// while the node is dead the rebuild must not re-add it
	mc.disableRefreshConns = true
	mc.rebuildNodes()
	assert.Equal(t, 1, mc.hr.GetNodesCount())

	// rebuild also restores nodes cleared of dead bookkeeping out of band,
	// as a reconciliation backstop behind the health checker
	mc.safeRemoveFromDeadNodes(addr.String())
	mc.rebuildNodes()
	assert.Equal(t, 2, mc.hr.GetNodesCount(), "a cleared node rejoins the ring on reconciliation")
}

func TestHealthCheckRevivesNodeImmediately(t *testing.T) {
	srv := newTestServer(t)
	t.Cleanup(srv.stop)

	mc, err := newForTests(srv.addr())
	require.NoError(t, err)
	mc.cfg = &config{Servers: []string{srv.addr()}}

	addr, err := utils.AddrRepr(srv.addr())
	require.NoError(t, err)

	mc.suspectNode(addr)
	require.Equal(t, 0, mc.hr.GetNodesCount())

	// the node answers its revival probe; one health-check pass must put it
	// back into the locator without waiting for a rebuild tick
	mc.checkNodesHealth()
	assert.Equal(t, 1, mc.hr.GetNodesCount(), "a revived node rejoins the ring immediately")
	assert.Empty(t, mc.safeGetDeadNodes(), "revival clears the dead bookkeeping")

	node, found := mc.hr.Get("anykey")
	require.True(t, found, "lookups see the revived node on the next call")
	assert.Equal(t, srv.addr(), utils.Repr(node))
}

func TestNodeIsDead(t *testing.T) {
	srv := newTestServer(t)
	t.Cleanup(srv.stop)

	mc, err := newForTests(srv.addr())
	require.NoError(t, err)

	assert.False(t, mc.nodeIsDead(srv.addr()), "a listening node is alive")

	srv.stop()
	assert.True(t, mc.nodeIsDead(srv.addr()), "a closed node is dead")
	assert.True(t, mc.nodeIsDead("notanaddress:badport:extra"), "an unparsable node is dead")
}
