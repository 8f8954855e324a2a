package liveness

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("liveness")

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config
	Host   host.Host
	LC     fx.Lifecycle
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Service *Service
	Events  *protocol.Source `name:"liveness_events"`
}

// ProvideServices 提供模块服务；未启用时不输出事件来源
func ProvideServices(input ModuleInput) ModuleOutput {
	cfg := input.Config.Liveness
	if !cfg.Enabled {
		return ModuleOutput{}
	}

	src := protocol.NewSource(protocol.SourceLiveness, 0)
	svc := New(input.Host, src, cfg.Interval.Duration(), cfg.Timeout.Duration())
	input.LC.Append(fx.Hook{
		OnStart: func(context.Context) error { return svc.Start() },
		OnStop: func(context.Context) error {
			svc.Stop()
			return nil
		},
	})
	return ModuleOutput{Service: svc, Events: src}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("liveness",
		fx.Provide(ProvideServices),
	)
}
