package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/metrics"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("app")

// Bootstrap 应用引导程序
//
// 负责应用日志配置、组装 fx 模块并启动生命周期。
type Bootstrap struct {
	config       *config.Config
	extra        []fx.Option
	startTimeout time.Duration
	stopTimeout  time.Duration

	fxApp *fx.App
}

// metricsIn 指标集合未启用时为 nil
type metricsIn struct {
	fx.In

	Metrics *metrics.Metrics `optional:"true"`
}

// NewBootstrap 创建引导程序
func NewBootstrap(cfg *config.Config, opts ...BootstrapOption) *Bootstrap {
	b := &Bootstrap{
		config:       cfg,
		startTimeout: DefaultStartTimeout,
		stopTimeout:  DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start 构建并启动运行时
//
// 返回时主机已监听，各处理器已开始产生事件；事件循环需由调用方运行。
func (b *Bootstrap) Start(ctx context.Context) (*Runtime, error) {
	if b.config == nil {
		return nil, fmt.Errorf("配置为空")
	}
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}
	if err := b.setupLogging(); err != nil {
		return nil, fmt.Errorf("设置日志失败: %w", err)
	}

	rt := &Runtime{Config: b.config, stop: b.Stop}
	b.fxApp = fx.New(
		fx.Options(b.setupModules()...),
		fx.NopLogger,
		fx.Populate(&rt.Host, &rt.Engine, &rt.Behaviour, &rt.Channels),
		fx.Invoke(func(in metricsIn) { rt.Metrics = in.Metrics }),
	)
	if err := b.fxApp.Err(); err != nil {
		return nil, fmt.Errorf("组装应用失败: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, b.startTimeout)
	defer cancel()
	if err := b.fxApp.Start(startCtx); err != nil {
		return nil, fmt.Errorf("启动应用失败: %w", err)
	}

	log.Info("节点已启动", "peerID", rt.Host.ID(), "mode", b.config.Node.Mode, "service", b.config.Node.Service)
	return rt, nil
}

// Stop 停止应用
func (b *Bootstrap) Stop(ctx context.Context) error {
	if b.fxApp == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, b.stopTimeout)
	defer cancel()
	return b.fxApp.Stop(stopCtx)
}

// setupModules 组装所有 fx 模块
func (b *Bootstrap) setupModules() []fx.Option {
	return []fx.Option{
		fx.Supply(b.config),
		FoundationModules(),
		TransportModules(),
		ServiceModules(),
		EngineModules(),
		fx.Options(b.extra...),
	}
}

// setupLogging 应用日志级别与格式
func (b *Bootstrap) setupLogging() error {
	l := b.config.Log
	return logger.Apply(l.Level, l.Format, l.Libp2pLevel)
}
