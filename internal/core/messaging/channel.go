package messaging

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-msgio"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

// Channel 发往单个对端的出站通道
//
// 一条出站流加一个有界发送队列；写协程把队列中的每条消息写成一个 varint 长度帧。
type Channel struct {
	peer    peer.ID
	stream  network.Stream
	sink    chan []byte
	maxSize int

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}

	onSent   func()
	onBroken func(c *Channel, err error)
}

var _ protocol.PeerChannel = (*Channel)(nil)

func newChannel(s network.Stream, buffer, maxSize int, onSent func(), onBroken func(*Channel, error)) *Channel {
	c := &Channel{
		peer:     s.Conn().RemotePeer(),
		stream:   s,
		sink:     make(chan []byte, buffer),
		maxSize:  maxSize,
		done:     make(chan struct{}),
		onSent:   onSent,
		onBroken: onBroken,
	}
	go c.writeLoop()
	return c
}

// Peer 对端 ID
func (c *Channel) Peer() peer.ID { return c.peer }

// Send 非阻塞入队
func (c *Channel) Send(data []byte) error {
	if len(data) > c.maxSize {
		return ErrMessageTooLarge
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.sink <- data:
		return nil
	default:
		return ErrChannelFull
	}
}

// Close 关闭通道与底层流，丢弃未写出的消息
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.sink)
		c.mu.Unlock()
		err = c.stream.Close()
		<-c.done
	})
	return err
}

// writeLoop 写出队列中的消息
//
// 写入失败时通道转为关闭状态，done 关闭后才回调 onBroken，
// 回调阻塞不会拖住 Close。
func (c *Channel) writeLoop() {
	err := c.drain()
	close(c.done)
	if err != nil && c.onBroken != nil {
		c.onBroken(c, err)
	}
}

func (c *Channel) drain() error {
	w := msgio.NewVarintWriter(c.stream)
	for data := range c.sink {
		if err := w.WriteMsg(data); err != nil {
			log.Warn("写入消息失败", "peer", c.peer, "err", err)
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			c.stream.Reset()
			return err
		}
		if c.onSent != nil {
			c.onSent()
		}
	}
	return nil
}
