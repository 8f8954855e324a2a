package dht

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	libp2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

const testPrefix = "/p2pnode-test"

func newLoopbackHost(t *testing.T) host.Host {
	t.Helper()
	h, err := libp2p.New(
		libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"),
		libp2p.DisableRelay(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func newTestService(t *testing.T, h host.Host) (*Service, *protocol.Source) {
	t.Helper()
	return newTimedService(t, h, 20*time.Second)
}

func newTimedService(t *testing.T, h host.Host, timeout time.Duration) (*Service, *protocol.Source) {
	t.Helper()
	cfg := config.DefaultDHTConfig()
	cfg.ProtocolPrefix = testPrefix

	src := protocol.NewSource(protocol.SourceDHT, 16)
	svc, err := New(h, src, Options{
		QueryTimeout: timeout,
		DialTimeout:  5 * time.Second,
		Records:      RecordsSupported(cfg.ProtocolPrefix),
	}, KadOptions(cfg)...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, src
}

func waitResult(t *testing.T, src *protocol.Source, id string) protocol.QueryResult {
	t.Helper()
	timeout := time.After(30 * time.Second)
	for {
		select {
		case ev := <-src.C():
			kev := ev.(*protocol.KadEvent)
			if kev.QueryID == id {
				return kev.Result
			}
		case <-timeout:
			t.Fatalf("timeout waiting for query %s", id)
			return nil
		}
	}
}

// newSilentPeer 接受 kad 流但从不应答的节点
func newSilentPeer(t *testing.T) host.Host {
	t.Helper()
	h := newLoopbackHost(t)
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	h.SetStreamHandler(libp2pprotocol.ID(testPrefix+"/kad/1.0.0"), func(s network.Stream) {
		<-stop
		s.Reset()
	})
	return h
}

// TestService_QueryTimeout 测试对端不应答时查询在时长内以超时结束
func TestService_QueryTimeout(t *testing.T) {
	const timeout = 300 * time.Millisecond
	const slack = 2 * time.Second

	silent := newSilentPeer(t)
	svc, src := newTimedService(t, newLoopbackHost(t), timeout)
	svc.AddAddress(silent.ID(), silent.Addrs()[0])
	require.Equal(t, 1, svc.RoutingTableSize())

	key := NewServiceKey("slow:v1")

	start := time.Now()
	found := waitResult(t, src, svc.GetProviders(key)).(*protocol.GetProvidersResult)
	assert.Less(t, time.Since(start), timeout+slack)
	assert.ErrorIs(t, found.Err, ErrQueryTimeout)
	assert.Nil(t, found.Ok)

	start = time.Now()
	prov := waitResult(t, src, svc.StartProviding(key)).(*protocol.StartProvidingResult)
	assert.Less(t, time.Since(start), timeout+slack)
	assert.ErrorIs(t, prov.Err, ErrQueryTimeout)
}

// TestService_BootstrapNoSeeds 测试没有种子时引导失败
func TestService_BootstrapNoSeeds(t *testing.T) {
	svc, src := newTestService(t, newLoopbackHost(t))

	res := waitResult(t, src, svc.Bootstrap()).(*protocol.BootstrapResult)
	assert.ErrorIs(t, res.Err, ErrNoPeers)
}

// TestService_GetProvidersEmpty 测试路由表为空时查询结束且无提供者
func TestService_GetProvidersEmpty(t *testing.T) {
	svc, src := newTestService(t, newLoopbackHost(t))

	res := waitResult(t, src, svc.GetProviders(NewServiceKey("nobody"))).(*protocol.GetProvidersResult)
	require.NoError(t, res.Err)
	assert.IsType(t, &protocol.FinishedWithNoAdditionalRecord{}, res.Ok)
}

// TestService_StartProvidingEmptyTable 测试路由表为空时宣告失败
func TestService_StartProvidingEmptyTable(t *testing.T) {
	svc, src := newTestService(t, newLoopbackHost(t))

	res := waitResult(t, src, svc.StartProviding(NewServiceKey("lonely"))).(*protocol.StartProvidingResult)
	assert.Error(t, res.Err)
	assert.Equal(t, "service:lonely", res.Key)
}

// TestService_ProvideAndFind 测试服务端宣告后客户端能找到
func TestService_ProvideAndFind(t *testing.T) {
	hs := newLoopbackHost(t)
	hc := newLoopbackHost(t)
	server, serverSrc := newTestService(t, hs)
	client, clientSrc := newTestService(t, hc)

	client.AddSeed(Seed{ID: hs.ID(), Addr: hs.Addrs()[0]})
	boot := waitResult(t, clientSrc, client.Bootstrap()).(*protocol.BootstrapResult)
	require.NoError(t, boot.Err)
	assert.GreaterOrEqual(t, boot.Peers, 1)

	require.Eventually(t, func() bool { return server.RoutingTableSize() > 0 }, 10*time.Second, 20*time.Millisecond)

	key := NewServiceKey("myapi:v1")
	prov := waitResult(t, serverSrc, server.StartProviding(key)).(*protocol.StartProvidingResult)
	require.NoError(t, prov.Err)

	found := waitResult(t, clientSrc, client.GetProviders(key)).(*protocol.GetProvidersResult)
	require.NoError(t, found.Err)
	ok, isFound := found.Ok.(*protocol.FoundProviders)
	require.True(t, isFound, "got %T", found.Ok)
	assert.Contains(t, ok.Providers, hs.ID())
	assert.NotContains(t, ok.Providers, hc.ID())
	assert.NotEmpty(t, hc.Peerstore().Addrs(hs.ID()))
}

// TestService_RecordsDisabled 测试公共前缀下记录读写被拒绝
func TestService_RecordsDisabled(t *testing.T) {
	h := newLoopbackHost(t)
	src := protocol.NewSource(protocol.SourceDHT, 4)
	svc, err := New(h, src, Options{Records: false}, KadOptions(config.DefaultDHTConfig())...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	rec := NewServiceRecord("myapi:v1", h.ID(), h.Addrs(), time.Now())
	put := waitResult(t, src, svc.PutRecord(rec)).(*protocol.PutRecordResult)
	assert.ErrorIs(t, put.Err, ErrRecordsDisabled)
	assert.False(t, svc.RecordsEnabled())
}

func TestRecordsSupported(t *testing.T) {
	assert.False(t, RecordsSupported("/ipfs"))
	assert.True(t, RecordsSupported(testPrefix))
}
