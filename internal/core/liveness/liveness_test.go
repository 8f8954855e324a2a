package liveness

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

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

func connectedPair(t *testing.T) (host.Host, host.Host) {
	t.Helper()
	a := newLoopbackHost(t)
	b := newLoopbackHost(t)
	a.Peerstore().AddAddrs(b.ID(), b.Addrs(), peerstore.PermanentAddrTTL)
	return a, b
}

// TestService_PingsConnectedPeer 测试连接后周期 ping
func TestService_PingsConnectedPeer(t *testing.T) {
	a, b := connectedPair(t)

	mock := clock.NewMock()
	src := protocol.NewSource(protocol.SourceLiveness, 8)
	svc := New(a, src, time.Second, 5*time.Second).WithClock(mock)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.Network().DialPeer(ctx, b.ID())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.Probing() == 1 }, 5*time.Second, 10*time.Millisecond)

	var ev *protocol.PingEvent
	require.Eventually(t, func() bool {
		select {
		case e := <-src.C():
			ev = e.(*protocol.PingEvent)
			return true
		default:
			mock.Add(time.Second)
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, b.ID(), ev.Peer)
	assert.NoError(t, ev.Err)
}

// TestService_UntrackOnDisconnect 测试断开后停止探测
func TestService_UntrackOnDisconnect(t *testing.T) {
	a, b := connectedPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.Network().DialPeer(ctx, b.ID())
	require.NoError(t, err)

	svc := New(a, protocol.NewSource(protocol.SourceLiveness, 8), time.Hour, time.Second)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	// 启动前已有的连接同样被跟踪
	assert.Equal(t, 1, svc.Probing())

	require.NoError(t, a.Network().ClosePeer(b.ID()))
	require.Eventually(t, func() bool { return svc.Probing() == 0 }, 5*time.Second, 10*time.Millisecond)
}
