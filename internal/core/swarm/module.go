package swarm

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/host"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("swarm")

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config
	Host   host.Host
	LC     fx.Lifecycle
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Service *Service
	Events  *protocol.Source `name:"swarm_events"`
}

// ProvideService 提供 swarm 服务，启动时绑定监听地址
func ProvideService(input ModuleInput) (ModuleOutput, error) {
	addrs, err := ParseListenAddrs(input.Config.Transport.EffectiveListenAddrs())
	if err != nil {
		return ModuleOutput{}, err
	}

	src := protocol.NewSource(protocol.SourceSwarm, 0)
	svc := New(input.Host, src, input.Config.Transport.DialTimeout.Duration())

	input.LC.Append(fx.Hook{
		OnStart: func(context.Context) error { return svc.Start(addrs) },
		OnStop: func(context.Context) error {
			svc.Stop()
			return nil
		},
	})
	return ModuleOutput{Service: svc, Events: src}, nil
}

// ParseListenAddrs 解析监听地址
func ParseListenAddrs(addrs []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, s := range addrs {
		m, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("解析监听地址 %q 失败: %w", s, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("swarm",
		fx.Provide(ProvideService),
	)
}
