package app

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/messaging"
	"github.com/dep2p/go-p2pnode/internal/core/metrics"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/engine"
)

// Runtime 已启动的 fx 应用及门面需要的句柄
type Runtime struct {
	Config    *config.Config
	Host      host.Host
	Engine    *engine.Engine
	Behaviour *protocol.Behaviour
	Channels  *messaging.ChannelMap

	// Metrics 未启用时为 nil
	Metrics *metrics.Metrics

	stop func(ctx context.Context) error
}

// Stop 停止运行时（触发 fx OnStop）
func (r *Runtime) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	return r.stop(ctx)
}
