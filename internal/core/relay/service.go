// Package relay 实现中继客户端预留
//
// 节点对配置的每个静态中继申请预留，成功后把电路地址写入 AddrBook，
// 并在到期前续约。续约失败且预留已过期时撤回地址。
// 进度通过 relay 事件来源报告给事件循环。
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/protocol/circuitv2/client"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

// ErrSelfRelay 中继地址指向本节点
var ErrSelfRelay = errors.New("relay: static relay is the local peer")

// Reserver 申请预留的函数，默认为 circuitv2 client.Reserve
type Reserver func(ctx context.Context, h host.Host, ai peer.AddrInfo) (*client.Reservation, error)

// Options 预留服务参数
type Options struct {
	Relays         []peer.AddrInfo
	ReserveTimeout time.Duration
	RefreshBefore  time.Duration
	RetryInterval  time.Duration
}

// Service 中继预留服务
type Service struct {
	host    host.Host
	book    *AddrBook
	events  *protocol.Source
	opts    Options
	reserve Reserver
	clock   clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService 创建预留服务
func NewService(h host.Host, book *AddrBook, events *protocol.Source, opts Options) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		host:    h,
		book:    book,
		events:  events,
		opts:    opts,
		reserve: client.Reserve,
		clock:   clock.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// WithReserver 替换预留函数
func (s *Service) WithReserver(r Reserver) *Service {
	s.reserve = r
	return s
}

// WithClock 替换时钟
func (s *Service) WithClock(c clock.Clock) *Service {
	s.clock = c
	return s
}

// Start 为每个中继启动预留循环
func (s *Service) Start() error {
	for _, ai := range s.opts.Relays {
		if ai.ID == s.host.ID() {
			return fmt.Errorf("%w: %s", ErrSelfRelay, ai.ID)
		}
	}
	for _, ai := range s.opts.Relays {
		s.wg.Add(1)
		go s.run(ai)
	}
	if len(s.opts.Relays) > 0 {
		log.Info("中继预留已启动", "relays", len(s.opts.Relays))
	}
	return nil
}

// Stop 停止所有预留循环
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) run(ai peer.AddrInfo) {
	defer s.wg.Done()

	var expiration time.Time
	for {
		res, err := s.reserveOnce(ai)
		now := s.clock.Now()

		var wait time.Duration
		switch {
		case err == nil:
			expiration = res.Expiration
			addrs := CircuitAddrs(ai.ID, append(res.Addrs, ai.Addrs...))
			s.book.Set(ai.ID, addrs)
			log.Info("中继预留成功", "relay", ai.ID, "expiration", expiration, "addrs", len(addrs))
			s.emit(&protocol.RelayEvent{Relay: ai.ID, Kind: protocol.ReservationAccepted, Expiration: expiration, Addrs: addrs})
			wait = expiration.Sub(now) - s.opts.RefreshBefore
			if wait < s.opts.RetryInterval {
				wait = s.opts.RetryInterval
			}

		case !expiration.IsZero() && !now.Before(expiration):
			s.book.Remove(ai.ID)
			log.Warn("中继预留已过期", "relay", ai.ID, "err", err)
			s.emit(&protocol.RelayEvent{Relay: ai.ID, Kind: protocol.ReservationExpired, Expiration: expiration, Err: err})
			expiration = time.Time{}
			wait = s.opts.RetryInterval

		default:
			log.Warn("中继预留失败", "relay", ai.ID, "err", err)
			s.emit(&protocol.RelayEvent{Relay: ai.ID, Kind: protocol.ReservationFailed, Err: err})
			wait = s.opts.RetryInterval
		}

		t := s.clock.Timer(wait)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Service) reserveOnce(ai peer.AddrInfo) (*client.Reservation, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ReserveTimeout)
	defer cancel()

	if err := s.host.Connect(ctx, ai); err != nil {
		return nil, fmt.Errorf("连接中继失败: %w", err)
	}
	return s.reserve(ctx, s.host, ai)
}

func (s *Service) emit(ev protocol.Event) {
	if s.events != nil {
		s.events.Emit(s.ctx, ev)
	}
}
