// Package swarm 把 libp2p 网络通知转换为事件，并负责监听与拨号
package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

// ErrNoListenAddrs 没有可监听的地址
var ErrNoListenAddrs = errors.New("swarm: no listen addresses")

// Service 监听、拨号与连接事件
type Service struct {
	host        host.Host
	events      *protocol.Source
	dialTimeout time.Duration
	notifiee    *network.NotifyBundle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建服务
func New(h host.Host, events *protocol.Source, dialTimeout time.Duration) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		host:        h,
		events:      events,
		dialTimeout: dialTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	s.notifiee = &network.NotifyBundle{
		ListenF:       s.onListen,
		ConnectedF:    s.onConnected,
		DisconnectedF: s.onDisconnected,
	}
	return s
}

// Start 挂上网络通知并绑定监听地址
//
// 任一地址监听失败即返回错误。
func (s *Service) Start(addrs []ma.Multiaddr) error {
	if len(addrs) == 0 {
		return ErrNoListenAddrs
	}
	s.host.Network().Notify(s.notifiee)
	// 逐个监听：批量 Listen 只在全部失败时报错
	for _, a := range addrs {
		if err := s.host.Network().Listen(a); err != nil {
			return fmt.Errorf("监听 %s 失败: %w", a, err)
		}
	}
	return nil
}

// Stop 取消通知并等待拨号协程退出
//
// 先取消 ctx，使阻塞在事件队列上的通知回调返回。
func (s *Service) Stop() {
	s.cancel()
	s.host.Network().StopNotify(s.notifiee)
	s.wg.Wait()
}

// Dial 异步拨号；失败时投递 DialFailedEvent，不重试
func (s *Service) Dial(ai peer.AddrInfo) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.dialTimeout)
		defer cancel()
		if err := s.host.Connect(ctx, ai); err != nil {
			s.events.Emit(s.ctx, &protocol.DialFailedEvent{Peer: ai.ID, Err: err})
		}
	}()
}

// IsRelayed 地址是否经过中继
func IsRelayed(a ma.Multiaddr) bool {
	if a == nil {
		return false
	}
	_, err := a.ValueForProtocol(ma.P_CIRCUIT)
	return err == nil
}

func (s *Service) onListen(_ network.Network, a ma.Multiaddr) {
	log.Info("正在监听", "addr", a)
	s.events.Emit(s.ctx, &protocol.ListenAddrEvent{Addr: a})
}

func (s *Service) onConnected(n network.Network, c network.Conn) {
	p := c.RemotePeer()
	s.events.Emit(s.ctx, &protocol.ConnectionEstablishedEvent{
		Peer:           p,
		Addr:           c.RemoteMultiaddr(),
		Direction:      c.Stat().Direction,
		Relayed:        IsRelayed(c.RemoteMultiaddr()),
		NumEstablished: len(n.ConnsToPeer(p)),
	})
}

func (s *Service) onDisconnected(n network.Network, c network.Conn) {
	p := c.RemotePeer()
	s.events.Emit(s.ctx, &protocol.ConnectionClosedEvent{
		Peer:      p,
		Addr:      c.RemoteMultiaddr(),
		Remaining: len(n.ConnsToPeer(p)),
	})
}
