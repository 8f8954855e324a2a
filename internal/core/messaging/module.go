package messaging

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/metrics"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("messaging")

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config  *config.Config
	Host    host.Host
	Metrics *metrics.Metrics `optional:"true"`
	LC      fx.Lifecycle
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Service  *Service
	Channels *ChannelMap
	Events   *protocol.Source `name:"messaging_events"`
}

// ProvideService 提供消息服务与通道映射
func ProvideService(input ModuleInput) ModuleOutput {
	cmd := input.Config.Command
	src := protocol.NewSource(protocol.SourceMessaging, 0)
	svc := New(input.Host, src, Options{
		ChannelBuffer:  cmd.ChannelBuffer,
		MaxMessageSize: cmd.MaxMessageSize,
	})
	if input.Metrics != nil {
		svc.WithObserver(input.Metrics)
	}
	channels := NewChannelMap()

	input.LC.Append(fx.Hook{
		OnStart: func(context.Context) error { return svc.Start() },
		OnStop: func(context.Context) error {
			svc.Stop()
			return channels.CloseAll()
		},
	})
	return ModuleOutput{Service: svc, Channels: channels, Events: src}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("messaging",
		fx.Provide(ProvideService),
	)
}
