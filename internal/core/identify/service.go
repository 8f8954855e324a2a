// Package identify 上报对端的 identify 信息
//
// identify 协议本身由 libp2p 主机运行；本包订阅完成事件，
// 把对端的监听地址与协议列表交给事件循环，由事件循环写入 DHT 路由表。
package identify

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

// Service identify 事件服务
type Service struct {
	host   host.Host
	events *protocol.Source

	sub    event.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建服务
func New(h host.Host, events *protocol.Source) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{host: h, events: events, ctx: ctx, cancel: cancel}
}

// Start 订阅 identify 完成与失败事件
func (s *Service) Start() error {
	sub, err := s.host.EventBus().Subscribe([]interface{}{
		new(event.EvtPeerIdentificationCompleted),
		new(event.EvtPeerIdentificationFailed),
	})
	if err != nil {
		return fmt.Errorf("订阅 identify 事件失败: %w", err)
	}
	s.sub = sub

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop 取消订阅
func (s *Service) Stop() {
	s.cancel()
	if s.sub != nil {
		s.sub.Close()
	}
	s.wg.Wait()
}

func (s *Service) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case e, ok := <-s.sub.Out():
			if !ok {
				return
			}
			switch evt := e.(type) {
			case event.EvtPeerIdentificationCompleted:
				log.Debug("已识别对端", "peer", evt.Peer, "addrs", len(evt.ListenAddrs), "protocols", len(evt.Protocols))
				s.events.Emit(s.ctx, FromCompleted(evt))
			case event.EvtPeerIdentificationFailed:
				log.Debug("identify 失败", "peer", evt.Peer, "err", evt.Reason)
			}
		}
	}
}

// FromCompleted 把 libp2p 事件转换为 IdentifyEvent
func FromCompleted(evt event.EvtPeerIdentificationCompleted) *protocol.IdentifyEvent {
	return &protocol.IdentifyEvent{
		Peer:            evt.Peer,
		ListenAddrs:     evt.ListenAddrs,
		Protocols:       evt.Protocols,
		ObservedAddr:    evt.ObservedAddr,
		AgentVersion:    evt.AgentVersion,
		ProtocolVersion: evt.ProtocolVersion,
	}
}
