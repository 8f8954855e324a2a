// Package holepunch 把 libp2p DCUtR 打洞过程转换为事件
//
// 打洞本身由 libp2p 的 holepunch 服务完成：两端经中继建立连接后，
// 服务自动协调同时拨号。本包只观察并上报进度，失败时中继连接保持可用。
package holepunch

import (
	"context"

	"github.com/libp2p/go-libp2p/p2p/protocol/holepunch"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

// Tracer 实现 holepunch.EventTracer
type Tracer struct {
	events *protocol.Source
	ctx    context.Context
	cancel context.CancelFunc
}

var _ holepunch.EventTracer = (*Tracer)(nil)

// NewTracer 创建追踪器
func NewTracer(events *protocol.Source) *Tracer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracer{events: events, ctx: ctx, cancel: cancel}
}

// Trace 处理 holepunch 服务的追踪事件
func (t *Tracer) Trace(evt *holepunch.Event) {
	ev := convert(evt)
	if ev == nil {
		return
	}
	log.Debug("直连升级追踪", "peer", ev.Peer, "kind", ev.Kind, "elapsed", ev.Elapsed, "err", ev.Err)
	t.events.Emit(t.ctx, ev)
}

// Close 停止投递，阻塞中的 Trace 立即返回
func (t *Tracer) Close() {
	t.cancel()
}

// convert 把 libp2p 追踪事件映射为 HolePunchEvent；不关心的类型返回 nil
func convert(evt *holepunch.Event) *protocol.HolePunchEvent {
	if evt == nil {
		return nil
	}
	out := &protocol.HolePunchEvent{Peer: evt.Remote}

	switch e := evt.Evt.(type) {
	case *holepunch.StartHolePunchEvt:
		out.Kind = protocol.HolePunchStarted
		out.Elapsed = e.RTT
	case *holepunch.EndHolePunchEvt:
		out.Elapsed = e.EllapsedTime
		if e.Success {
			out.Kind = protocol.HolePunchSucceeded
		} else {
			out.Kind = protocol.HolePunchFailed
			out.Err = e.Error
		}
	case *holepunch.DirectDialEvt:
		out.Elapsed = e.EllapsedTime
		if e.Success {
			out.Kind = protocol.DirectDialSucceeded
		} else {
			out.Kind = protocol.DirectDialFailed
			out.Err = e.Error
		}
	default:
		return nil
	}
	return out
}
