package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("metrics")

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config
	LC     fx.Lifecycle
}

// ProvideMetrics 提供指标集合；未启用时返回 nil
func ProvideMetrics(input ModuleInput) *Metrics {
	cfg := input.Config.Metrics
	if !cfg.Enabled {
		return nil
	}

	m := New()
	if cfg.ListenAddr == "" {
		return m
	}

	var srv *Server
	input.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			srv, err = m.Listen(cfg.ListenAddr)
			if err != nil {
				return err
			}
			log.Info("指标端点已启动", "addr", srv.Addr())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if srv == nil {
				return nil
			}
			return srv.Close(ctx)
		},
	})
	return m
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
	)
}
