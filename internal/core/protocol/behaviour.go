package protocol

import (
	"context"
	"sync"
)

// Sources 组合行为的七个事件来源，未使用的来源可以为 nil
type Sources struct {
	Swarm     *Source
	Liveness  *Source
	Identify  *Source
	DHT       *Source
	Relay     *Source
	HolePunch *Source
	Messaging *Source
}

// ordered 按固定检查顺序返回来源
func (s Sources) ordered() [7]*Source {
	return [7]*Source{s.Swarm, s.Liveness, s.Identify, s.DHT, s.Relay, s.HolePunch, s.Messaging}
}

// Behaviour 组合协议行为
//
// Poll 和 Next 只能由一个 goroutine 调用；Start 启动的泵协程就是这个调用者，
// 此后应通过 Events 消费。
type Behaviour struct {
	sources [7]*Source

	// pending 阻塞等待时已从某来源取出、尚未返回的事件
	pending [7]Event

	events chan Event

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewBehaviour 创建组合行为
func NewBehaviour(src Sources) *Behaviour {
	return &Behaviour{
		sources: src.ordered(),
		events:  make(chan Event),
		done:    make(chan struct{}),
	}
}

// Poll 按固定顺序检查各来源，返回第一个就绪事件；全部为空时返回 false
func (b *Behaviour) Poll() (Event, bool) {
	for i, src := range b.sources {
		if ev := b.pending[i]; ev != nil {
			b.pending[i] = nil
			return ev, true
		}
		if src == nil {
			continue
		}
		select {
		case ev := <-src.ch:
			return ev, true
		default:
		}
	}
	return nil, false
}

// Next 返回下一个事件，没有就绪事件时阻塞
//
// 被唤醒后重新按固定顺序检查，较早来源中同时到达的事件优先返回。
func (b *Behaviour) Next(ctx context.Context) (Event, error) {
	for {
		if ev, ok := b.Poll(); ok {
			return ev, nil
		}

		var ev Event
		idx := -1
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev = <-b.chanAt(0):
			idx = 0
		case ev = <-b.chanAt(1):
			idx = 1
		case ev = <-b.chanAt(2):
			idx = 2
		case ev = <-b.chanAt(3):
			idx = 3
		case ev = <-b.chanAt(4):
			idx = 4
		case ev = <-b.chanAt(5):
			idx = 5
		case ev = <-b.chanAt(6):
			idx = 6
		}
		b.pending[idx] = ev
	}
}

// chanAt 返回第 i 个来源的通道；来源为 nil 时返回永不就绪的 nil 通道
func (b *Behaviour) chanAt(i int) <-chan Event {
	if b.sources[i] == nil {
		return nil
	}
	return b.sources[i].ch
}

// Start 启动泵协程，把 Next 的结果送入 Events
func (b *Behaviour) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		ctx, b.cancel = context.WithCancel(ctx)
		go b.pump(ctx)
	})
}

func (b *Behaviour) pump(ctx context.Context) {
	defer close(b.done)
	defer close(b.events)
	for {
		ev, err := b.Next(ctx)
		if err != nil {
			return
		}
		select {
		case b.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Events 事件输出通道，Stop 后关闭
func (b *Behaviour) Events() <-chan Event {
	return b.events
}

// Stop 停止泵协程并等待其退出
func (b *Behaviour) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}
