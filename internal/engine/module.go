package engine

import (
	"github.com/libp2p/go-libp2p/core/host"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/messaging"
	"github.com/dep2p/go-p2pnode/internal/core/metrics"
	"github.com/dep2p/go-p2pnode/internal/core/swarm"
	"github.com/dep2p/go-p2pnode/internal/discovery/dht"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config    *config.Config
	Host      host.Host
	DHT       *dht.Service
	Swarm     *swarm.Service
	Messaging *messaging.Service
	Channels  *messaging.ChannelMap
	Metrics   *metrics.Metrics `optional:"true"`
}

// ProvideEngine 提供事件循环；由调用方负责 Run
func ProvideEngine(input ModuleInput) (*Engine, error) {
	e, err := New(OptionsFromConfig(input.Config), input.DHT, input.Swarm, input.Messaging, input.Host, input.Channels)
	if err != nil {
		return nil, err
	}
	return e.WithMetrics(input.Metrics), nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(ProvideEngine),
	)
}
