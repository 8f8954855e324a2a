// Package liveness 对已连接节点做周期性 ping
//
// 结果仅用于日志与指标，不影响核心状态。
package liveness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

// Service 存活探测服务
type Service struct {
	host     host.Host
	events   *protocol.Source
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock

	mu      sync.Mutex
	probing map[peer.ID]context.CancelFunc

	sub    event.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建服务
func New(h host.Host, events *protocol.Source, interval, timeout time.Duration) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		host:     h,
		events:   events,
		interval: interval,
		timeout:  timeout,
		clock:    clock.New(),
		probing:  make(map[peer.ID]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithClock 替换时钟
func (s *Service) WithClock(c clock.Clock) *Service {
	s.clock = c
	return s
}

// Start 订阅连接状态变化
func (s *Service) Start() error {
	sub, err := s.host.EventBus().Subscribe(new(event.EvtPeerConnectednessChanged))
	if err != nil {
		return fmt.Errorf("订阅连接状态失败: %w", err)
	}
	s.sub = sub

	// 订阅之前已建立的连接
	for _, p := range s.host.Network().Peers() {
		s.track(p)
	}

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop 停止所有探测
func (s *Service) Stop() {
	s.cancel()
	if s.sub != nil {
		s.sub.Close()
	}
	s.wg.Wait()
}

// Probing 当前正在探测的节点数
func (s *Service) Probing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.probing)
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
			evt := e.(event.EvtPeerConnectednessChanged)
			switch evt.Connectedness {
			case network.Connected, network.Limited:
				s.track(evt.Peer)
			case network.NotConnected:
				s.untrack(evt.Peer)
			}
		}
	}
}

func (s *Service) track(p peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.probing[p]; ok || s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.probing[p] = cancel
	s.wg.Add(1)
	go s.probe(ctx, p)
}

func (s *Service) untrack(p peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.probing[p]; ok {
		cancel()
		delete(s.probing, p)
	}
}

func (s *Service) probe(ctx context.Context, p peer.ID) {
	defer s.wg.Done()
	t := s.clock.Ticker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		ev := s.pingOnce(ctx, p)
		if ctx.Err() != nil {
			return
		}
		if ev.Err != nil {
			log.Debug("ping 失败", "peer", p, "err", ev.Err)
		} else {
			log.Debug("ping", "peer", p, "rtt", ev.RTT)
		}
		s.events.Emit(ctx, ev)
	}
}

func (s *Service) pingOnce(ctx context.Context, p peer.ID) *protocol.PingEvent {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	select {
	case res, ok := <-ping.Ping(ctx, s.host, p):
		if !ok {
			return &protocol.PingEvent{Peer: p, Err: context.Canceled}
		}
		return &protocol.PingEvent{Peer: p, RTT: res.RTT, Err: res.Error}
	case <-ctx.Done():
		return &protocol.PingEvent{Peer: p, Err: ctx.Err()}
	}
}
