package relay

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("relay")

// ============================================================================
//                              模块输出
// ============================================================================

// BookOutput 地址簿与事件来源，构造 host 之前即可提供
type BookOutput struct {
	fx.Out

	Book   *AddrBook
	Events *protocol.Source `name:"relay_events"`
}

// ProvideBook 提供中继地址簿
func ProvideBook() BookOutput {
	return BookOutput{
		Book:   NewAddrBook(),
		Events: protocol.NewSource(protocol.SourceRelay, 0),
	}
}

// ServiceInput 预留服务依赖
type ServiceInput struct {
	fx.In

	Config *config.Config
	Host   host.Host
	Book   *AddrBook
	Events *protocol.Source `name:"relay_events"`
	LC     fx.Lifecycle
}

// ProvideService 提供预留服务；未启用中继客户端时返回 nil
func ProvideService(input ServiceInput) (*Service, error) {
	cfg := input.Config.Relay
	if !cfg.EnableClient {
		return nil, nil
	}

	relays, err := ParseRelays(cfg.StaticRelays)
	if err != nil {
		return nil, err
	}

	svc := NewService(input.Host, input.Book, input.Events, Options{
		Relays:         relays,
		ReserveTimeout: cfg.ReserveTimeout.Duration(),
		RefreshBefore:  cfg.RefreshBefore.Duration(),
		RetryInterval:  cfg.RetryInterval.Duration(),
	})

	input.LC.Append(fx.Hook{
		OnStart: func(context.Context) error { return svc.Start() },
		OnStop: func(context.Context) error {
			svc.Stop()
			return nil
		},
	})
	return svc, nil
}

// ParseRelays 解析静态中继地址，同一中继的多个地址合并
func ParseRelays(addrs []string) ([]peer.AddrInfo, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	maddrs := make([]ma.Multiaddr, 0, len(addrs))
	for _, s := range addrs {
		m, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("解析中继地址 %q 失败: %w", s, err)
		}
		maddrs = append(maddrs, m)
	}
	return peer.AddrInfosFromP2pAddrs(maddrs...)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("relay",
		fx.Provide(ProvideBook, ProvideService),
		fx.Invoke(func(*Service) {}),
	)
}
