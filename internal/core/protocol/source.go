package protocol

import "context"

// 来源名称，同时也是 Behaviour 的检查顺序
const (
	SourceSwarm     = "swarm"
	SourceLiveness  = "liveness"
	SourceIdentify  = "identify"
	SourceDHT       = "dht"
	SourceRelay     = "relay"
	SourceHolePunch = "holepunch"
	SourceMessaging = "messaging"
)

// DefaultSourceSize 默认队列容量
const DefaultSourceSize = 64

// Source 单个处理器的有界事件队列
//
// 队列满时 Emit 阻塞生产者，直到有空位或 ctx 结束，不会丢弃事件。
type Source struct {
	name string
	ch   chan Event
}

// NewSource 创建事件队列，size <= 0 时使用 DefaultSourceSize
func NewSource(name string, size int) *Source {
	if size <= 0 {
		size = DefaultSourceSize
	}
	return &Source{name: name, ch: make(chan Event, size)}
}

// Name 来源名称
func (s *Source) Name() string { return s.name }

// Emit 投递事件；ctx 结束时返回 false
func (s *Source) Emit(ctx context.Context, ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// C 返回消费端通道
func (s *Source) C() <-chan Event { return s.ch }

// Len 当前排队的事件数
func (s *Source) Len() int { return len(s.ch) }
