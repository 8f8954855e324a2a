package host

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/holepunch"
	"github.com/dep2p/go-p2pnode/internal/core/identity"
	"github.com/dep2p/go-p2pnode/internal/core/relay"
)

func localConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.NAT.EnablePortMap = false
	cfg.NAT.EnableNATService = false
	return cfg
}

// TestBuildOptions_NoIdentity 测试缺少私钥
func TestBuildOptions_NoIdentity(t *testing.T) {
	_, err := BuildOptions(localConfig(), Params{})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

// TestBuildOptions_BadConnMgr 测试连接管理器参数错误
func TestBuildOptions_BadConnMgr(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	cfg := localConfig()
	cfg.ConnMgr.LowWater = 10
	cfg.ConnMgr.HighWater = 5
	_, err = BuildOptions(cfg, Params{PrivKey: id.PrivKey()})
	assert.Error(t, err)
}

// TestNew_NoListenAddrs 测试主机构造后不监听
func TestNew_NoListenAddrs(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	h, err := New(localConfig(), Params{PrivKey: id.PrivKey()})
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, id.PeerID(), h.ID())
	assert.Empty(t, h.Network().ListenAddresses())

	require.NoError(t, h.Network().Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0")))
	assert.Len(t, h.Network().ListenAddresses(), 1)
}

// TestNew_TLSPreferred 测试仅 TLS 且仅 TCP 的组合
func TestNew_TLSPreferred(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	cfg := localConfig()
	cfg.Security.EnableNoise = false
	cfg.Security.Preferred = "tls"
	cfg.Transport.EnableQUIC = false
	cfg.NAT.EnableHolePunching = false
	cfg.Relay.EnableClient = false

	h, err := New(cfg, Params{PrivKey: id.PrivKey()})
	require.NoError(t, err)
	assert.NoError(t, h.Close())
}

// TestModule 测试 fx 组装与中继地址工厂
func TestModule(t *testing.T) {
	var h host.Host
	var book *relay.AddrBook
	app := fxtest.New(t,
		fx.Supply(localConfig()),
		identity.Module(),
		holepunch.Module(),
		fx.Provide(relay.NewAddrBook),
		Module(),
		fx.Populate(&h, &book),
	)
	app.RequireStart()
	require.NotNil(t, h)

	require.NoError(t, h.Network().Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0")))
	relayAddr := ma.StringCast("/ip4/1.2.3.4/tcp/4001/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN/p2p-circuit")
	book.Set("relay", []ma.Multiaddr{relayAddr})

	assert.Eventually(t, func() bool {
		for _, a := range h.Addrs() {
			if a.Equal(relayAddr) {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)
	app.RequireStop()
}
