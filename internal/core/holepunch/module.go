package holepunch

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("holepunch")

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Tracer *Tracer
	Events *protocol.Source `name:"holepunch_events"`
}

// ProvideTracer 提供追踪器，在 host 构造前可用
func ProvideTracer(lc fx.Lifecycle) ModuleOutput {
	src := protocol.NewSource(protocol.SourceHolePunch, 0)
	t := NewTracer(src)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			t.Close()
			return nil
		},
	})
	return ModuleOutput{Tracer: t, Events: src}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("holepunch",
		fx.Provide(ProvideTracer),
	)
}
