package p2pnode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/app"
	"github.com/dep2p/go-p2pnode/internal/command"
	"github.com/dep2p/go-p2pnode/internal/core/messaging"
	"github.com/dep2p/go-p2pnode/internal/engine"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("p2pnode")

// Phase 节点所处的引导/注册/发现阶段
type Phase = engine.Phase

// Node p2pnode 节点
//
// Node 是门面，持有已启动的运行时。New 返回时节点已在监听，
// Run 驱动事件循环，Close 释放全部资源。
//
// 使用示例：
//
//	node, err := p2pnode.New(ctx, p2pnode.WithMode(config.ModeClient))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//	go node.Run(ctx)
//
//	for _, p := range node.Peers() {
//	    node.Send(p, []byte("hello"))
//	}
type Node struct {
	cfg   *config.Config
	rt    *app.Runtime
	input io.Reader

	running   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New 创建并启动节点
//
// 返回时主机已绑定监听地址；引导与注册在 Run 开始后推进。
func New(ctx context.Context, opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("应用选项失败: %w", err)
		}
	}

	var bopts []app.BootstrapOption
	if o.identity != nil {
		bopts = append(bopts, app.WithIdentity(o.identity))
	}
	rt, err := app.NewBootstrap(o.config, bopts...).Start(ctx)
	if err != nil {
		return nil, err
	}

	rt.Engine.WithOutput(o.output)
	if o.onMessage != nil {
		rt.Engine.WithMessageHandler(engine.MessageHandler(o.onMessage))
	}
	return &Node{cfg: o.config, rt: rt, input: o.input}, nil
}

// Run 运行事件循环直到 ctx 结束
//
// ctx 被取消时返回 nil。同一节点只能有一个 Run 在执行。
func (n *Node) Run(ctx context.Context) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	if !n.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer n.running.Store(false)

	var commands <-chan command.Command
	if n.cfg.Command.Enabled && n.input != nil {
		r := command.NewReader(n.input, n.cfg.Command.QueueSize)
		commands = r.Commands()
		// 阻塞读取无法被 ctx 打断，不等待其退出
		go func() {
			if err := r.Run(ctx); err != nil {
				log.Warn("命令输入已停止", "err", err)
			}
		}()
	}

	err := n.rt.Engine.Run(ctx, n.rt.Behaviour.Events(), commands)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// ID 本节点 ID
func (n *Node) ID() peer.ID { return n.rt.Host.ID() }

// Addrs 附带 /p2p/<id> 的可分享地址
func (n *Node) Addrs() []ma.Multiaddr {
	addrs, err := peer.AddrInfoToP2pAddrs(&peer.AddrInfo{ID: n.ID(), Addrs: n.rt.Host.Addrs()})
	if err != nil {
		return nil
	}
	return addrs
}

// Mode 运行模式
func (n *Node) Mode() config.Mode { return n.cfg.Node.Mode }

// Service 服务名
func (n *Node) Service() string { return n.cfg.Node.Service }

// Phase 当前阶段
func (n *Node) Phase() Phase { return n.rt.Engine.Phase() }

// DiscoveredPeer 客户端选定的提供者
func (n *Node) DiscoveredPeer() (peer.ID, bool) { return n.rt.Engine.DiscoveredPeer() }

// Peers 已建立消息通道的对端（按 ID 排序）
func (n *Node) Peers() []peer.ID { return n.rt.Channels.Peers() }

// Send 向已建立通道的对端发送消息
//
// 消息进入对端的发送队列即返回；队列满时返回错误。
func (n *Node) Send(p peer.ID, data []byte) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	ch, ok := n.rt.Channels.Get(p)
	if !ok {
		return fmt.Errorf("%w: %s", messaging.ErrUnknownPeer, p)
	}
	return ch.Send(data)
}

// SendTo 以字符串形式的节点 ID 发送消息
func (n *Node) SendTo(id string, data []byte) error {
	p, err := peer.Decode(id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPeerID, err)
	}
	return n.Send(p, data)
}

// Close 停止节点并释放资源，可重复调用
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		n.closed.Store(true)
		// 先关闭通道，让已入队的消息写出
		n.closeErr = multierr.Append(
			n.rt.Channels.CloseAll(),
			n.rt.Stop(context.Background()),
		)
		log.Info("节点已关闭", "peerID", n.ID())
	})
	return n.closeErr
}
