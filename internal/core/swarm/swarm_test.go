package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/identity"
	p2phost "github.com/dep2p/go-p2pnode/internal/core/host"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

func newHost(t *testing.T) host.Host {
	t.Helper()
	cfg := config.NewConfig()
	cfg.NAT.EnablePortMap = false
	cfg.NAT.EnableNATService = false

	id, err := identity.Generate()
	require.NoError(t, err)
	h, err := p2phost.New(cfg, p2phost.Params{PrivKey: id.PrivKey()})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func waitEvent[T protocol.Event](t *testing.T, src *protocol.Source) T {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-src.C():
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timeout waiting for %T", zero)
			return zero
		}
	}
}

// TestService_ListenEvents 测试每个监听地址产生一个事件
func TestService_ListenEvents(t *testing.T) {
	h := newHost(t)
	src := protocol.NewSource(protocol.SourceSwarm, 8)
	svc := New(h, src, 5*time.Second)
	defer svc.Stop()

	addrs, err := ParseListenAddrs([]string{"/ip4/127.0.0.1/tcp/0", "/ip4/127.0.0.1/udp/0/quic-v1"})
	require.NoError(t, err)
	require.NoError(t, svc.Start(addrs))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		ev := waitEvent[*protocol.ListenAddrEvent](t, src)
		if _, err := ev.Addr.ValueForProtocol(ma.P_TCP); err == nil {
			seen["tcp"] = true
		}
		if _, err := ev.Addr.ValueForProtocol(ma.P_QUIC_V1); err == nil {
			seen["quic"] = true
		}
	}
	assert.True(t, seen["tcp"])
	assert.True(t, seen["quic"])
}

// TestService_StartErrors 测试监听失败是致命错误
func TestService_StartErrors(t *testing.T) {
	h := newHost(t)
	svc := New(h, protocol.NewSource(protocol.SourceSwarm, 8), time.Second)
	defer svc.Stop()

	assert.ErrorIs(t, svc.Start(nil), ErrNoListenAddrs)

	// 主机未启用该传输
	bad := ma.StringCast("/ip4/127.0.0.1/udp/0/webrtc-direct")
	assert.Error(t, svc.Start([]ma.Multiaddr{bad}))

	_, err := ParseListenAddrs([]string{"garbage"})
	assert.Error(t, err)
}

// TestService_ConnectionEvents 测试连接建立与关闭事件
func TestService_ConnectionEvents(t *testing.T) {
	a := newHost(t)
	b := newHost(t)

	src := protocol.NewSource(protocol.SourceSwarm, 16)
	svc := New(a, src, 5*time.Second)
	defer svc.Stop()
	require.NoError(t, svc.Start([]ma.Multiaddr{ma.StringCast("/ip4/127.0.0.1/tcp/0")}))
	waitEvent[*protocol.ListenAddrEvent](t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Connect(ctx, peer.AddrInfo{ID: a.ID(), Addrs: a.Network().ListenAddresses()}))

	est := waitEvent[*protocol.ConnectionEstablishedEvent](t, src)
	assert.Equal(t, b.ID(), est.Peer)
	assert.Equal(t, network.DirInbound, est.Direction)
	assert.False(t, est.Relayed)
	assert.Equal(t, 1, est.NumEstablished)

	require.NoError(t, b.Network().ClosePeer(a.ID()))
	closed := waitEvent[*protocol.ConnectionClosedEvent](t, src)
	assert.Equal(t, b.ID(), closed.Peer)
	assert.Equal(t, 0, closed.Remaining)
}

// TestService_DialFailed 测试拨号失败事件
func TestService_DialFailed(t *testing.T) {
	a := newHost(t)
	b := newHost(t)

	src := protocol.NewSource(protocol.SourceSwarm, 8)
	svc := New(a, src, time.Second)
	defer svc.Stop()

	// b 未监听，且地址簿中没有它的地址
	svc.Dial(peer.AddrInfo{ID: b.ID()})
	ev := waitEvent[*protocol.DialFailedEvent](t, src)
	assert.Equal(t, b.ID(), ev.Peer)
	assert.Error(t, ev.Err)
}

func TestIsRelayed(t *testing.T) {
	assert.False(t, IsRelayed(nil))
	assert.False(t, IsRelayed(ma.StringCast("/ip4/1.2.3.4/tcp/1")))
	assert.True(t, IsRelayed(ma.StringCast("/ip4/1.2.3.4/tcp/1/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN/p2p-circuit")))
}
