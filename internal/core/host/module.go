package host

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/holepunch"
	"github.com/dep2p/go-p2pnode/internal/core/identity"
	"github.com/dep2p/go-p2pnode/internal/core/relay"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("host")

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config   *config.Config
	Identity *identity.Identity

	// 可选依赖
	RelayBook *relay.AddrBook   `optional:"true"`
	Tracer    *holepunch.Tracer `optional:"true"`

	LC fx.Lifecycle
}

// ProvideHost 提供 libp2p 主机，停止时关闭
func ProvideHost(input ModuleInput) (host.Host, error) {
	p := Params{PrivKey: input.Identity.PrivKey()}
	if input.RelayBook != nil {
		p.AddrsFactory = input.RelayBook.Factory
	}
	if input.Tracer != nil {
		p.HolePunchTracer = input.Tracer
	}

	h, err := New(input.Config, p)
	if err != nil {
		return nil, err
	}
	log.Info("libp2p 主机已创建", "peerID", h.ID(),
		"tcp", input.Config.Transport.EnableTCP,
		"quic", input.Config.Transport.EnableQUIC,
		"relayClient", input.Config.Relay.EnableClient,
		"holePunching", input.Config.NAT.EnableHolePunching)

	input.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("关闭 libp2p 主机")
			return h.Close()
		},
	})
	return h, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("host",
		fx.Provide(ProvideHost),
	)
}
