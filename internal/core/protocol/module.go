package protocol

import (
	"context"

	"go.uber.org/fx"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 各处理器模块导出的命名事件来源
type ModuleInput struct {
	fx.In

	Swarm     *Source `name:"swarm_events" optional:"true"`
	Liveness  *Source `name:"liveness_events" optional:"true"`
	Identify  *Source `name:"identify_events" optional:"true"`
	DHT       *Source `name:"dht_events" optional:"true"`
	Relay     *Source `name:"relay_events" optional:"true"`
	HolePunch *Source `name:"holepunch_events" optional:"true"`
	Messaging *Source `name:"messaging_events" optional:"true"`
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideBehaviour 组合已注册的事件来源
func ProvideBehaviour(input ModuleInput, lc fx.Lifecycle) *Behaviour {
	b := NewBehaviour(Sources{
		Swarm:     input.Swarm,
		Liveness:  input.Liveness,
		Identify:  input.Identify,
		DHT:       input.DHT,
		Relay:     input.Relay,
		HolePunch: input.HolePunch,
		Messaging: input.Messaging,
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			b.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			b.Stop()
			return nil
		},
	})
	return b
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("protocol",
		fx.Provide(ProvideBehaviour),
	)
}
