// Package messaging 实现对端之间的字节消息
//
// 每个已识别的对端对应一条出站流，消息以 varint 长度前缀分帧，
// 一次 Send 对应对端收到的一条 MessageEvent。
// 出站通道由事件循环通过 Open 异步打开，结果以 ChannelEvent 报告；
// 写入失败的通道以 ChannelClosedEvent 报告。入站流由协议处理器读取。
package messaging

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	libp2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-msgio"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

// ProtocolID 消息协议标识
const ProtocolID libp2pprotocol.ID = "/p2p-simple/msg/1.0.0"

// DefaultOpenTimeout 打开出站流的超时
const DefaultOpenTimeout = 30 * time.Second

// Observer 消息计数回调，metrics.Metrics 满足该接口
type Observer interface {
	ObserveMessage(direction string)
}

// Options 服务参数
type Options struct {
	ChannelBuffer  int
	MaxMessageSize int
	OpenTimeout    time.Duration
}

// Service 消息服务
type Service struct {
	host     host.Host
	events   *protocol.Source
	opts     Options
	observer Observer

	mu      sync.Mutex
	opening map[peer.ID]struct{}
	inbound map[network.Stream]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建消息服务
func New(h host.Host, events *protocol.Source, opts Options) *Service {
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		host:    h,
		events:  events,
		opts:    opts,
		opening: make(map[peer.ID]struct{}),
		inbound: make(map[network.Stream]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// WithObserver 设置消息计数回调
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// Start 注册入站协议处理器
func (s *Service) Start() error {
	s.host.SetStreamHandler(ProtocolID, s.handleStream)
	return nil
}

// Stop 移除处理器，重置入站流并等待打开中的请求结束
func (s *Service) Stop() {
	s.host.RemoveStreamHandler(ProtocolID)
	s.cancel()

	s.mu.Lock()
	for st := range s.inbound {
		st.Reset()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Open 异步打开到 p 的出站通道
//
// 同一对端已有打开中的请求时返回 false。
func (s *Service) Open(p peer.ID) bool {
	s.mu.Lock()
	if _, ok := s.opening[p]; ok {
		s.mu.Unlock()
		return false
	}
	s.opening[p] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.opening, p)
			s.mu.Unlock()
		}()

		ch, err := s.open(p)
		if err != nil {
			log.Debug("打开消息通道失败", "peer", p, "err", err)
			s.events.Emit(s.ctx, &protocol.ChannelEvent{Peer: p, Err: err})
			return
		}
		if !s.events.Emit(s.ctx, &protocol.ChannelEvent{Peer: p, Channel: ch}) {
			ch.Close()
		}
	}()
	return true
}

func (s *Service) open(p peer.ID) (*Channel, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.OpenTimeout)
	defer cancel()

	st, err := s.host.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return nil, err
	}
	// 出站流只写
	if err := st.CloseRead(); err != nil {
		log.Debug("关闭读方向失败", "peer", p, "err", err)
	}
	return newChannel(st, s.opts.ChannelBuffer, s.opts.MaxMessageSize, s.onSent, s.onBroken), nil
}

func (s *Service) onSent() {
	if s.observer != nil {
		s.observer.ObserveMessage("out")
	}
}

func (s *Service) onBroken(c *Channel, err error) {
	s.events.Emit(s.ctx, &protocol.ChannelClosedEvent{Peer: c.Peer(), Channel: c, Err: err})
}

func (s *Service) handleStream(st network.Stream) {
	s.mu.Lock()
	select {
	case <-s.ctx.Done():
		s.mu.Unlock()
		st.Reset()
		return
	default:
	}
	s.inbound[st] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inbound, st)
		s.mu.Unlock()
	}()

	remote := st.Conn().RemotePeer()
	r := msgio.NewVarintReaderSize(st, s.opts.MaxMessageSize)
	for {
		msg, err := r.ReadMsg()
		if err != nil {
			if errors.Is(err, io.EOF) {
				st.Close()
			} else {
				log.Debug("读取消息结束", "peer", remote, "err", err)
				st.Reset()
			}
			return
		}
		data := make([]byte, len(msg))
		copy(data, msg)
		r.ReleaseMsg(msg)

		if s.observer != nil {
			s.observer.ObserveMessage("in")
		}
		if !s.events.Emit(s.ctx, &protocol.MessageEvent{Peer: remote, Data: data}) {
			st.Reset()
			return
		}
	}
}
