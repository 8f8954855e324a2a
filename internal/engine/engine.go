// Package engine 实现节点的事件循环
//
// 事件循环是引导、注册与发现状态的唯一所有者。它消费组合行为的协议事件、
// 发现定时器、注册与引导的重试定时器、重新发布定时器以及命令队列，
// 并通过 DHT、拨号器和消息服务发起异步操作，结果再以事件的形式回到循环。
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/command"
	"github.com/dep2p/go-p2pnode/internal/core/messaging"
	"github.com/dep2p/go-p2pnode/internal/core/metrics"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/core/swarm"
	"github.com/dep2p/go-p2pnode/internal/discovery/dht"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("engine")

// DefaultAddrCacheSize identify 地址去重缓存容量
const DefaultAddrCacheSize = 4096

// ErrNilDependency 缺少必需的依赖
var ErrNilDependency = errors.New("engine: nil dependency")

// MessageHandler 收到对端消息时的回调，在事件循环中调用
type MessageHandler func(from peer.ID, data []byte)

// Options 事件循环参数
type Options struct {
	Mode    config.Mode
	Service string
	Seeds   []string

	LookupInterval time.Duration

	RegisterMaxAttempts    int
	RegisterBackoffInitial time.Duration
	RegisterBackoffMax     time.Duration

	BootstrapRetryInitial time.Duration
	BootstrapRetryMax     time.Duration

	// ReprovideInterval 为 0 时不重新发布
	ReprovideInterval time.Duration
	PublishRecord     bool

	AddrCacheSize int
}

// OptionsFromConfig 由配置生成参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Mode:                   cfg.Node.Mode,
		Service:                cfg.Node.Service,
		Seeds:                  cfg.Discovery.Bootstrap.Peers,
		LookupInterval:         cfg.Service.LookupInterval.Duration(),
		RegisterMaxAttempts:    cfg.Service.RegisterMaxAttempts,
		RegisterBackoffInitial: cfg.Service.RegisterBackoffInitial.Duration(),
		RegisterBackoffMax:     cfg.Service.RegisterBackoffMax.Duration(),
		BootstrapRetryInitial:  cfg.Discovery.Bootstrap.RetryInitial.Duration(),
		BootstrapRetryMax:      cfg.Discovery.Bootstrap.RetryMax.Duration(),
		ReprovideInterval:      cfg.Service.ReprovideInterval.Duration(),
		PublishRecord:          cfg.Service.PublishRecord,
	}
}

// Engine 节点事件循环
type Engine struct {
	opts     Options
	key      dht.ServiceKey
	dht      DHT
	dialer   Dialer
	opener   ChannelOpener
	local    Local
	channels *messaging.ChannelMap

	metrics   *metrics.Metrics
	clock     clock.Clock
	out       io.Writer
	onMessage MessageHandler

	// 以下字段只由事件循环访问
	bootstrapIssued bool
	bootstrapped    bool
	registered      bool
	registering     bool
	regAttempts     int
	discovered      *peer.ID
	queries         map[string]string

	regBackoff  *backoff.ExponentialBackOff
	bootBackoff *backoff.ExponentialBackOff
	regTimer    *clock.Timer
	bootTimer   *clock.Timer
	reprovide   *clock.Ticker
	regPending  bool
	bootPending bool

	addrSeen *lru.Cache[string, struct{}]
	ticks    chan struct{}

	// 只用于外部观察
	phase          atomic.Int32
	discoveredPeer atomic.Pointer[peer.ID]
}

// New 创建事件循环
func New(opts Options, d DHT, dialer Dialer, opener ChannelOpener, local Local, channels *messaging.ChannelMap) (*Engine, error) {
	if d == nil || dialer == nil || opener == nil || local == nil || channels == nil {
		return nil, ErrNilDependency
	}
	if _, err := config.ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Service == "" {
		opts.Service = config.DefaultService
	}
	if opts.AddrCacheSize <= 0 {
		opts.AddrCacheSize = DefaultAddrCacheSize
	}
	if opts.RegisterMaxAttempts <= 0 {
		opts.RegisterMaxAttempts = 1
	}
	seen, err := lru.New[string, struct{}](opts.AddrCacheSize)
	if err != nil {
		return nil, fmt.Errorf("创建地址缓存失败: %w", err)
	}

	return &Engine{
		opts:        opts,
		key:         dht.NewServiceKey(opts.Service),
		dht:         d,
		dialer:      dialer,
		opener:      opener,
		local:       local,
		channels:    channels,
		clock:       clock.New(),
		out:         os.Stdout,
		queries:     make(map[string]string),
		regBackoff:  newBackoff(opts.RegisterBackoffInitial, opts.RegisterBackoffMax),
		bootBackoff: newBackoff(opts.BootstrapRetryInitial, opts.BootstrapRetryMax),
		addrSeen:    seen,
		ticks:       make(chan struct{}, 1),
	}, nil
}

func newBackoff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if initial > 0 {
		b.InitialInterval = initial
	}
	if max > 0 {
		b.MaxInterval = max
	}
	b.Reset()
	return b
}

// WithClock 替换时钟
func (e *Engine) WithClock(c clock.Clock) *Engine {
	e.clock = c
	return e
}

// WithMetrics 设置指标集合
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

// WithOutput 设置 list 命令的输出
func (e *Engine) WithOutput(w io.Writer) *Engine {
	e.out = w
	return e
}

// WithMessageHandler 设置消息回调
func (e *Engine) WithMessageHandler(h MessageHandler) *Engine {
	e.onMessage = h
	return e
}

// Phase 当前阶段
func (e *Engine) Phase() Phase { return Phase(e.phase.Load()) }

// DiscoveredPeer 客户端选定的提供者
func (e *Engine) DiscoveredPeer() (peer.ID, bool) {
	p := e.discoveredPeer.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// ServiceKey 服务名对应的键
func (e *Engine) ServiceKey() dht.ServiceKey { return e.key }

func (e *Engine) setPhase(p Phase) {
	if old := Phase(e.phase.Swap(int32(p))); old != p {
		log.Debug("阶段变更", "from", old, "to", p)
	}
}

// Run 运行事件循环直到 ctx 结束
//
// commands 可以为 nil；关闭后不再读取。
func (e *Engine) Run(ctx context.Context, events <-chan protocol.Event, commands <-chan command.Command) error {
	g, gctx := errgroup.WithContext(ctx)
	if e.opts.Mode == config.ModeClient {
		g.Go(func() error { return e.tickLoop(gctx) })
	}
	g.Go(func() error { return e.loop(gctx, events, commands) })
	return g.Wait()
}

// tickLoop 发现定时器：首次立即触发，之后按周期阻塞投递
func (e *Engine) tickLoop(ctx context.Context) error {
	t := e.clock.Ticker(e.opts.LookupInterval)
	defer t.Stop()

	send := func() bool {
		select {
		case e.ticks <- struct{}{}:
			return true
		case <-ctx.Done():
			return false
		}
	}
	if !send() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if !send() {
				return nil
			}
		}
	}
}

func (e *Engine) loop(ctx context.Context, events <-chan protocol.Event, commands <-chan command.Command) error {
	e.resumeTimers()
	defer e.stopTimers()
	log.Info("事件循环已启动", "mode", e.opts.Mode, "service", e.opts.Service)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.handleEvent(ev)

		case <-e.tickC():
			e.handleTick()

		case <-timerC(e.regTimer):
			e.regTimer = nil
			e.maybeRegister()

		case <-timerC(e.bootTimer):
			e.bootTimer = nil
			e.addSeeds()
			e.issueBootstrap()

		case <-tickerC(e.reprovide):
			e.handleReprovide()

		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			e.handleCommand(cmd)
		}
	}
}

// tickC 只有客户端在引导成功且尚未选定提供者时才消费发现定时器
func (e *Engine) tickC() <-chan struct{} {
	if e.opts.Mode != config.ModeClient || e.discovered != nil || !e.bootstrapped {
		return nil
	}
	return e.ticks
}

func timerC(t *clock.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func tickerC(t *clock.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// stopTimers 停止并清空定时器，记下未触发的重试
func (e *Engine) stopTimers() {
	if e.regTimer != nil {
		e.regTimer.Stop()
		e.regTimer = nil
		e.regPending = true
	}
	if e.bootTimer != nil {
		e.bootTimer.Stop()
		e.bootTimer = nil
		e.bootPending = true
	}
	if e.reprovide != nil {
		e.reprovide.Stop()
		e.reprovide = nil
	}
}

// resumeTimers 重新安排上一次 Run 结束时未触发的重试与重新发布
func (e *Engine) resumeTimers() {
	if e.bootPending {
		e.bootPending = false
		e.bootTimer = e.clock.Timer(e.bootBackoff.NextBackOff())
	}
	if e.regPending {
		e.regPending = false
		e.regTimer = e.clock.Timer(e.regBackoff.NextBackOff())
	}
	if e.registered && e.opts.ReprovideInterval > 0 && e.reprovide == nil {
		e.reprovide = e.clock.Ticker(e.opts.ReprovideInterval)
	}
}

// ============================================================================
//                              引导与注册
// ============================================================================

// addSeeds 解析并加入种子，返回有效种子数
func (e *Engine) addSeeds() int {
	seeds := dht.ParseSeeds(e.opts.Seeds)
	for _, s := range seeds {
		e.dht.AddSeed(s)
	}
	return len(seeds)
}

func (e *Engine) issueBootstrap() {
	if e.bootstrapped {
		return
	}
	id := e.dht.Bootstrap()
	e.queries[id] = dht.QueryBootstrap
	e.bootstrapIssued = true
	e.setPhase(PhaseBootstrapping)
	log.Info("开始引导", "query", id)
}

func (e *Engine) handleBootstrap(res *protocol.BootstrapResult) {
	e.metrics.ObserveBootstrap(res.Err)
	if e.bootstrapped {
		return
	}
	if res.Err != nil {
		d := e.bootBackoff.NextBackOff()
		log.Warn("引导失败，稍后重试", "err", res.Err, "retry_in", d)
		e.bootTimer = e.clock.Timer(d)
		return
	}

	e.bootstrapped = true
	e.bootBackoff.Reset()
	e.setPhase(PhaseBootstrapped)
	log.Info("引导成功", "peers", res.Peers)
	e.maybeRegister()
}

// maybeRegister 服务端在引导成功后发起一次注册
func (e *Engine) maybeRegister() {
	if e.opts.Mode != config.ModeServer || !e.bootstrapped || e.registered || e.registering {
		return
	}
	if e.regAttempts >= e.opts.RegisterMaxAttempts {
		return
	}
	e.regAttempts++
	e.registering = true
	id := e.dht.StartProviding(e.key)
	e.queries[id] = dht.QueryStartProviding
	e.setPhase(PhaseRegistering)
	log.Info("开始注册服务", "service", e.opts.Service, "attempt", e.regAttempts, "query", id)
}

func (e *Engine) handleStartProviding(res *protocol.StartProvidingResult) {
	// 已注册后的结果来自重新发布
	if e.registered {
		if res.Err != nil {
			log.Warn("重新发布提供者记录失败", "service", e.opts.Service, "err", res.Err)
		} else {
			log.Debug("已重新发布提供者记录", "service", e.opts.Service)
		}
		return
	}

	e.registering = false
	e.metrics.ObserveRegistration(res.Err)
	if res.Err != nil {
		e.handleRegistrationFailure(res.Err)
		return
	}

	e.registered = true
	e.regBackoff.Reset()
	e.setPhase(PhaseRegistered)
	log.Info("服务已注册", "service", e.opts.Service, "key", res.Key)

	e.publishRecord()
	if e.opts.ReprovideInterval > 0 && e.reprovide == nil {
		e.reprovide = e.clock.Ticker(e.opts.ReprovideInterval)
	}
}

func (e *Engine) handleRegistrationFailure(err error) {
	if e.regAttempts >= e.opts.RegisterMaxAttempts {
		log.Error("注册服务失败，已达最大尝试次数", "service", e.opts.Service, "attempts", e.regAttempts, "err", err)
		e.setPhase(PhaseBootstrapped)
		return
	}
	d := e.regBackoff.NextBackOff()
	log.Error("注册服务失败，稍后重试", "service", e.opts.Service, "attempt", e.regAttempts, "retry_in", d, "err", err)
	e.setPhase(PhaseBootstrapped)
	e.regTimer = e.clock.Timer(d)
}

func (e *Engine) publishRecord() {
	if !e.opts.PublishRecord || !e.dht.RecordsEnabled() {
		return
	}
	rec := dht.NewServiceRecord(e.opts.Service, e.local.ID(), e.local.Addrs(), e.clock.Now())
	id := e.dht.PutRecord(rec)
	e.queries[id] = dht.QueryPutRecord
}

func (e *Engine) handleReprovide() {
	if !e.registered {
		return
	}
	id := e.dht.StartProviding(e.key)
	e.queries[id] = dht.QueryStartProviding
	e.publishRecord()
	log.Debug("重新发布服务", "service", e.opts.Service, "query", id)
}

// ============================================================================
//                              客户端发现
// ============================================================================

func (e *Engine) handleTick() {
	if e.opts.Mode != config.ModeClient || e.discovered != nil || !e.bootstrapped {
		return
	}
	id := e.dht.GetProviders(e.key)
	e.queries[id] = dht.QueryGetProviders
	e.setPhase(PhaseDiscovering)
	log.Info("查询服务提供者", "service", e.opts.Service, "query", id)
}

func (e *Engine) handleGetProviders(res *protocol.GetProvidersResult) {
	if e.discovered != nil {
		return
	}
	if res.Err != nil {
		e.metrics.ObserveDiscovery("error", 0)
		log.Warn("查询服务提供者失败", "service", e.opts.Service, "err", res.Err)
		return
	}

	switch ok := res.Ok.(type) {
	case *protocol.FoundProviders:
		candidates := make([]peer.ID, 0, len(ok.Providers))
		for _, p := range ok.Providers {
			if p != e.local.ID() {
				candidates = append(candidates, p)
			}
		}
		if len(candidates) == 0 {
			e.metrics.ObserveDiscovery("empty", 0)
			log.Warn("提供者列表为空", "service", e.opts.Service)
			return
		}
		e.metrics.ObserveDiscovery("found", len(candidates))

		chosen := dht.SortByDistance(candidates, e.key)[0]
		e.discovered = &chosen
		e.discoveredPeer.Store(&chosen)
		e.setPhase(PhaseDiscovered)
		log.Info("发现服务提供者", "peer", chosen, "candidates", len(candidates))
		e.dialer.Dial(peer.AddrInfo{ID: chosen})

	case *protocol.FinishedWithNoAdditionalRecord:
		e.metrics.ObserveDiscovery("empty", 0)
		log.Warn("尚未找到服务提供者，稍后重试", "service", e.opts.Service)
	}
}

// ============================================================================
//                              事件分发
// ============================================================================

func (e *Engine) handleEvent(ev protocol.Event) {
	switch ev := ev.(type) {
	case *protocol.ListenAddrEvent:
		e.handleListenAddr(ev)
	case *protocol.ConnectionEstablishedEvent:
		e.handleConnected(ev)
	case *protocol.ConnectionClosedEvent:
		e.handleClosed(ev)
	case *protocol.DialFailedEvent:
		e.metrics.ObserveDial(ev.Err)
		log.Error("拨号失败", "peer", ev.Peer, "err", ev.Err)
	case *protocol.PingEvent:
		if ev.Err != nil {
			log.Debug("ping 失败", "peer", ev.Peer, "err", ev.Err)
			return
		}
		e.metrics.ObservePing(ev.RTT)
		log.Debug("ping", "peer", ev.Peer, "rtt", ev.RTT)
	case *protocol.IdentifyEvent:
		e.handleIdentify(ev)
	case *protocol.KadEvent:
		e.handleKad(ev)
	case *protocol.RelayEvent:
		e.handleRelay(ev)
	case *protocol.HolePunchEvent:
		e.handleHolePunch(ev)
	case *protocol.MessageEvent:
		log.Info("收到消息", "peer", ev.Peer, "bytes", len(ev.Data), "text", string(ev.Data))
		if e.onMessage != nil {
			e.onMessage(ev.Peer, ev.Data)
		}
	case *protocol.ChannelEvent:
		e.handleChannel(ev)
	case *protocol.ChannelClosedEvent:
		e.handleChannelClosed(ev)
	}
}

func (e *Engine) handleListenAddr(ev *protocol.ListenAddrEvent) {
	log.Info("监听地址", "addr", ev.Addr, "peer", e.local.ID())
	n := e.addSeeds()
	if e.Phase() == PhaseIdle {
		e.setPhase(PhaseListening)
	}
	if !e.bootstrapIssued {
		log.Info("已加入种子节点", "seeds", n)
		e.issueBootstrap()
	}
}

func (e *Engine) handleKad(ev *protocol.KadEvent) {
	kind, ok := e.queries[ev.QueryID]
	if ok {
		delete(e.queries, ev.QueryID)
	}
	switch res := ev.Result.(type) {
	case *protocol.BootstrapResult:
		e.handleBootstrap(res)
	case *protocol.StartProvidingResult:
		e.handleStartProviding(res)
	case *protocol.GetProvidersResult:
		e.handleGetProviders(res)
	case *protocol.PutRecordResult:
		if res.Err != nil {
			log.Warn("发布服务记录失败", "key", res.Key, "err", res.Err)
		} else {
			log.Info("已发布服务记录", "key", res.Key)
		}
	case *protocol.GetRecordResult:
		log.Debug("读取服务记录", "key", res.Key, "bytes", len(res.Value), "err", res.Err)
	default:
		log.Debug("忽略查询结果", "query", ev.QueryID, "kind", kind)
	}
}

func (e *Engine) handleConnected(ev *protocol.ConnectionEstablishedEvent) {
	e.metrics.ConnOpened(ev.Relayed)
	log.Info("连接已建立", "peer", ev.Peer, "addr", ev.Addr, "direction", ev.Direction, "relayed", ev.Relayed, "conns", ev.NumEstablished)
	if e.discovered != nil && *e.discovered == ev.Peer && ev.NumEstablished == 1 {
		e.metrics.ObserveDial(nil)
		log.Info("已连接到服务提供者", "peer", ev.Peer, "relayed", ev.Relayed)
	}
}

func (e *Engine) handleClosed(ev *protocol.ConnectionClosedEvent) {
	e.metrics.ConnClosed(swarm.IsRelayed(ev.Addr))
	log.Info("连接已关闭", "peer", ev.Peer, "remaining", ev.Remaining)
	if ev.Remaining > 0 {
		return
	}
	if ch, ok := e.channels.Remove(ev.Peer); ok {
		ch.Close()
		e.metrics.SetChannels(e.channels.Len())
		log.Debug("已移除消息通道", "peer", ev.Peer)
	}
}

func (e *Engine) handleIdentify(ev *protocol.IdentifyEvent) {
	for _, a := range ev.ListenAddrs {
		k := ev.Peer.String() + a.String()
		if e.addrSeen.Contains(k) {
			continue
		}
		e.addrSeen.Add(k, struct{}{})
		e.dht.AddAddress(ev.Peer, a)
	}
	log.Debug("identify", "peer", ev.Peer, "agent", ev.AgentVersion, "addrs", len(ev.ListenAddrs))

	if ev.Supports(messaging.ProtocolID) && !e.channels.Has(ev.Peer) {
		e.opener.Open(ev.Peer)
	}
}

func (e *Engine) handleChannel(ev *protocol.ChannelEvent) {
	if ev.Err != nil {
		log.Warn("打开消息通道失败", "peer", ev.Peer, "err", ev.Err)
		return
	}
	if !e.channels.Insert(ev.Channel) {
		ev.Channel.Close()
		return
	}
	e.metrics.SetChannels(e.channels.Len())
	log.Info("消息通道已就绪", "peer", ev.Peer)
}

// handleChannelClosed 移除写入失败的通道并尝试重新打开
//
// 映射中已是其他通道（或已因断连移除）时忽略。
func (e *Engine) handleChannelClosed(ev *protocol.ChannelClosedEvent) {
	cur, ok := e.channels.Get(ev.Peer)
	if !ok || cur != ev.Channel {
		return
	}
	e.channels.Remove(ev.Peer)
	ev.Channel.Close()
	e.metrics.SetChannels(e.channels.Len())
	log.Warn("消息通道已断开", "peer", ev.Peer, "err", ev.Err)
	e.opener.Open(ev.Peer)
}

func (e *Engine) handleRelay(ev *protocol.RelayEvent) {
	e.metrics.ObserveRelay(ev.Kind.String())
	switch ev.Kind {
	case protocol.ReservationAccepted:
		log.Info("中继预留成功", "relay", ev.Relay, "expiration", ev.Expiration, "addrs", len(ev.Addrs))
	default:
		log.Warn("中继预留", "relay", ev.Relay, "kind", ev.Kind, "err", ev.Err)
	}
}

func (e *Engine) handleHolePunch(ev *protocol.HolePunchEvent) {
	e.metrics.ObserveHolePunch(ev.Kind.String())
	switch ev.Kind {
	case protocol.HolePunchSucceeded, protocol.DirectDialSucceeded:
		log.Info("已建立直连", "peer", ev.Peer, "kind", ev.Kind, "elapsed", ev.Elapsed)
	case protocol.HolePunchFailed:
		log.Warn("打洞失败，保留中继连接", "peer", ev.Peer, "elapsed", ev.Elapsed, "err", ev.Err)
	default:
		log.Info("打洞", "peer", ev.Peer, "kind", ev.Kind)
	}
}

// ============================================================================
//                              命令
// ============================================================================

func (e *Engine) handleCommand(cmd command.Command) {
	switch c := cmd.(type) {
	case command.Send:
		id, err := peer.Decode(c.Peer)
		if err != nil {
			log.Warn("无效的节点 ID", "peer", c.Peer, "err", err)
			return
		}
		ch, ok := e.channels.Get(id)
		if !ok {
			log.Warn("没有到该节点的消息通道", "peer", id)
			return
		}
		if err := ch.Send([]byte(c.Message)); err != nil {
			log.Warn("发送消息失败", "peer", id, "err", err)
			return
		}
		log.Info("消息已入队", "peer", id, "bytes", len(c.Message))

	case command.List:
		peers := e.channels.Peers()
		log.Info("已连接节点", "count", len(peers))
		for _, p := range peers {
			fmt.Fprintln(e.out, p)
		}

	case command.Unknown:
		log.Info("未知命令，可用命令: send <peer> <msg...> | list", "line", c.Line)
	}
}
