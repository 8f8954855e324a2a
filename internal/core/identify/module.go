package identify

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("identify")

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Service *Service
	Events  *protocol.Source `name:"identify_events"`
}

// ProvideServices 提供 identify 事件服务
func ProvideServices(h host.Host, lc fx.Lifecycle) ModuleOutput {
	src := protocol.NewSource(protocol.SourceIdentify, 0)
	svc := New(h, src)
	lc.Append(fx.Hook{
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
	return fx.Module("identify",
		fx.Provide(ProvideServices),
	)
}
