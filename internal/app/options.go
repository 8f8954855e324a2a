package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/internal/core/identity"
)

// DefaultStartTimeout fx 启动超时
const DefaultStartTimeout = 30 * time.Second

// DefaultStopTimeout fx 停止超时
const DefaultStopTimeout = 30 * time.Second

// BootstrapOption Bootstrap 配置选项
type BootstrapOption func(*Bootstrap)

// WithIdentity 使用指定身份而不是自动生成
func WithIdentity(id *identity.Identity) BootstrapOption {
	return func(b *Bootstrap) {
		b.extra = append(b.extra, fx.Supply(fx.Annotated{Name: "preset_identity", Target: id}))
	}
}

// WithFxOption 追加 fx 选项，用于测试替换依赖
func WithFxOption(opts ...fx.Option) BootstrapOption {
	return func(b *Bootstrap) {
		b.extra = append(b.extra, opts...)
	}
}

// WithStartTimeout 设置启动超时
func WithStartTimeout(d time.Duration) BootstrapOption {
	return func(b *Bootstrap) {
		b.startTimeout = d
	}
}

// WithStopTimeout 设置停止超时
func WithStopTimeout(d time.Duration) BootstrapOption {
	return func(b *Bootstrap) {
		b.stopTimeout = d
	}
}
