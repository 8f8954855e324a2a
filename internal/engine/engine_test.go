package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/libp2p/go-libp2p/core/peer"
	libp2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/core/test"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/command"
	"github.com/dep2p/go-p2pnode/internal/core/messaging"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/discovery/dht"
)

// ============================================================================
//                              测试替身
// ============================================================================

type fakeDHT struct {
	mu        sync.Mutex
	seq       int
	seeds     []dht.Seed
	addrs     map[peer.ID][]ma.Multiaddr
	bootstrap int
	providing int
	lookups   int
	records   []dht.ServiceRecord
	recordsOn bool
}

func newFakeDHT() *fakeDHT {
	return &fakeDHT{addrs: make(map[peer.ID][]ma.Multiaddr), recordsOn: true}
}

func (f *fakeDHT) nextID() string {
	f.seq++
	return fmt.Sprintf("q%d", f.seq)
}

func (f *fakeDHT) AddSeed(s dht.Seed) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeds = append(f.seeds, s)
}

func (f *fakeDHT) AddAddress(p peer.ID, a ma.Multiaddr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrs[p] = append(f.addrs[p], a)
}

func (f *fakeDHT) Bootstrap() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bootstrap++
	return f.nextID()
}

func (f *fakeDHT) StartProviding(dht.ServiceKey) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providing++
	return f.nextID()
}

func (f *fakeDHT) GetProviders(dht.ServiceKey) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.nextID()
}

func (f *fakeDHT) PutRecord(rec dht.ServiceRecord) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.nextID()
}

func (f *fakeDHT) RecordsEnabled() bool { return f.recordsOn }

func (f *fakeDHT) counts() (bootstrap, providing, lookups int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bootstrap, f.providing, f.lookups
}

type fakeDialer struct {
	mu    sync.Mutex
	dials []peer.ID
}

func (f *fakeDialer) Dial(ai peer.AddrInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials = append(f.dials, ai.ID)
}

func (f *fakeDialer) dialed() []peer.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]peer.ID(nil), f.dials...)
}

type fakeOpener struct {
	opened []peer.ID
}

func (f *fakeOpener) Open(p peer.ID) bool {
	f.opened = append(f.opened, p)
	return true
}

type fakeLocal struct {
	id peer.ID
}

func (f fakeLocal) ID() peer.ID { return f.id }
func (f fakeLocal) Addrs() []ma.Multiaddr {
	return []ma.Multiaddr{ma.StringCast("/ip4/127.0.0.1/tcp/4001")}
}

type fakeChannel struct {
	id     peer.ID
	sent   [][]byte
	closed bool
	full   bool
}

func (f *fakeChannel) Peer() peer.ID { return f.id }
func (f *fakeChannel) Send(data []byte) error {
	if f.full {
		return messaging.ErrChannelFull
	}
	f.sent = append(f.sent, data)
	return nil
}
func (f *fakeChannel) Close() error { f.closed = true; return nil }

type harness struct {
	engine   *Engine
	dht      *fakeDHT
	dialer   *fakeDialer
	opener   *fakeOpener
	channels *messaging.ChannelMap
	clock    *clock.Mock
	self     peer.ID
}

func randPeer(t *testing.T) peer.ID {
	t.Helper()
	id, err := test.RandPeerID()
	require.NoError(t, err)
	return id
}

const seedAddr = "/ip4/104.131.131.82/tcp/4001/p2p/QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ"

func newHarness(t *testing.T, mode config.Mode, mutate ...func(*Options)) *harness {
	t.Helper()
	opts := Options{
		Mode:                   mode,
		Service:                "myapi:v1",
		Seeds:                  []string{seedAddr, "garbage", "/ip4/1.2.3.4/tcp/1"},
		LookupInterval:         10 * time.Second,
		RegisterMaxAttempts:    3,
		RegisterBackoffInitial: time.Second,
		RegisterBackoffMax:     2 * time.Second,
		BootstrapRetryInitial:  time.Second,
		BootstrapRetryMax:      2 * time.Second,
		ReprovideInterval:      time.Hour,
		PublishRecord:          true,
	}
	for _, m := range mutate {
		m(&opts)
	}

	h := &harness{
		dht:      newFakeDHT(),
		dialer:   &fakeDialer{},
		opener:   &fakeOpener{},
		channels: messaging.NewChannelMap(),
		clock:    clock.NewMock(),
		self:     randPeer(t),
	}
	e, err := New(opts, h.dht, h.dialer, h.opener, fakeLocal{id: h.self}, h.channels)
	require.NoError(t, err)
	h.engine = e.WithClock(h.clock).WithOutput(&bytes.Buffer{})
	return h
}

func (h *harness) listen() {
	h.engine.handleEvent(&protocol.ListenAddrEvent{Addr: ma.StringCast("/ip4/127.0.0.1/tcp/4001")})
}

func (h *harness) bootOK() {
	h.engine.handleEvent(&protocol.KadEvent{QueryID: "q1", Result: &protocol.BootstrapResult{Peers: 3}})
}

// run 在后台运行事件循环，返回事件输入
func (h *harness) run(t *testing.T) chan<- protocol.Event {
	t.Helper()
	events := make(chan protocol.Event)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx, events, nil) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return events
}

// ============================================================================
//                              引导与注册
// ============================================================================

// TestEngine_BootstrapOnce 测试种子加入与引导只发起一次
func TestEngine_BootstrapOnce(t *testing.T) {
	h := newHarness(t, config.ModeServer)
	assert.Equal(t, PhaseIdle, h.engine.Phase())

	h.listen()
	h.listen()

	boot, _, _ := h.dht.counts()
	assert.Equal(t, 1, boot)
	assert.Equal(t, PhaseBootstrapping, h.engine.Phase())

	// 每个监听地址都会重新加入有效种子，无效种子被跳过
	require.Len(t, h.dht.seeds, 2)
	assert.Equal(t, "QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ", h.dht.seeds[0].ID.String())
}

// TestEngine_ServerRegistersOnce 测试引导成功后只注册一次
func TestEngine_ServerRegistersOnce(t *testing.T) {
	h := newHarness(t, config.ModeServer)
	h.listen()
	h.bootOK()

	_, providing, lookups := h.dht.counts()
	assert.Equal(t, 1, providing)
	assert.Equal(t, 0, lookups)
	assert.Equal(t, PhaseRegistering, h.engine.Phase())

	// 注册进行中与注册成功后的引导成功都不再触发注册
	h.bootOK()
	h.engine.handleEvent(&protocol.KadEvent{Result: &protocol.StartProvidingResult{Key: "service:myapi:v1"}})
	h.bootOK()

	_, providing, _ = h.dht.counts()
	assert.Equal(t, 1, providing)
	assert.Equal(t, PhaseRegistered, h.engine.Phase())
	assert.True(t, h.engine.registered)
	assert.NotNil(t, h.engine.reprovide)

	require.Len(t, h.dht.records, 1)
	assert.Equal(t, "myapi:v1", h.dht.records[0].Service)
	assert.Equal(t, h.self.String(), h.dht.records[0].PeerID)
}

// TestEngine_RecordsDisabled 测试公共 DHT 上不发布服务记录
func TestEngine_RecordsDisabled(t *testing.T) {
	h := newHarness(t, config.ModeServer)
	h.dht.recordsOn = false
	h.listen()
	h.bootOK()
	h.engine.handleEvent(&protocol.KadEvent{Result: &protocol.StartProvidingResult{}})

	assert.True(t, h.engine.registered)
	assert.Empty(t, h.dht.records)
}

// TestEngine_ClientNeverRegisters 测试客户端不注册
func TestEngine_ClientNeverRegisters(t *testing.T) {
	h := newHarness(t, config.ModeClient)
	h.listen()
	h.bootOK()

	_, providing, _ := h.dht.counts()
	assert.Equal(t, 0, providing)
	assert.Equal(t, PhaseBootstrapped, h.engine.Phase())
}

// TestEngine_BootstrapRetry 测试引导失败后退避重试
func TestEngine_BootstrapRetry(t *testing.T) {
	h := newHarness(t, config.ModeServer)
	events := h.run(t)

	events <- &protocol.ListenAddrEvent{Addr: ma.StringCast("/ip4/127.0.0.1/tcp/1")}
	events <- &protocol.KadEvent{Result: &protocol.BootstrapResult{Err: dht.ErrNoPeers}}

	require.Eventually(t, func() bool {
		boot, _, _ := h.dht.counts()
		if boot >= 2 {
			return true
		}
		h.clock.Add(500 * time.Millisecond)
		return false
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, PhaseBootstrapping, h.engine.Phase())
}

// TestEngine_RetryAcrossRuns 测试循环重启后未触发的引导重试仍会执行
func TestEngine_RetryAcrossRuns(t *testing.T) {
	h := newHarness(t, config.ModeServer)

	events := make(chan protocol.Event)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx, events, nil) }()

	events <- &protocol.ListenAddrEvent{Addr: ma.StringCast("/ip4/127.0.0.1/tcp/1")}
	events <- &protocol.KadEvent{Result: &protocol.BootstrapResult{Err: dht.ErrNoPeers}}
	cancel()
	<-done

	boot, _, _ := h.dht.counts()
	require.Equal(t, 1, boot)
	assert.Nil(t, h.engine.bootTimer)

	h.run(t)
	require.Eventually(t, func() bool {
		boot, _, _ := h.dht.counts()
		if boot >= 2 {
			return true
		}
		h.clock.Add(500 * time.Millisecond)
		return false
	}, 5*time.Second, 5*time.Millisecond)
}

// TestEngine_RegistrationRetryBounded 测试注册失败按退避重试且有上限
func TestEngine_RegistrationRetryBounded(t *testing.T) {
	h := newHarness(t, config.ModeServer)
	events := h.run(t)

	events <- &protocol.ListenAddrEvent{Addr: ma.StringCast("/ip4/127.0.0.1/tcp/1")}
	events <- &protocol.KadEvent{Result: &protocol.BootstrapResult{Peers: 1}}

	fail := &protocol.KadEvent{Result: &protocol.StartProvidingResult{Err: errors.New("no peers in table")}}
	for want := 2; want <= 3; want++ {
		events <- fail
		require.Eventually(t, func() bool {
			_, providing, _ := h.dht.counts()
			if providing >= want {
				return true
			}
			h.clock.Add(500 * time.Millisecond)
			return false
		}, 5*time.Second, 5*time.Millisecond)
	}

	// 第三次失败后不再重试
	events <- fail
	for i := 0; i < 20; i++ {
		h.clock.Add(time.Second)
	}
	time.Sleep(20 * time.Millisecond)

	_, providing, _ := h.dht.counts()
	assert.Equal(t, 3, providing)
	assert.Equal(t, PhaseBootstrapped, h.engine.Phase())
}

// ============================================================================
//                              客户端发现
// ============================================================================

// TestEngine_NoLookupBeforeBootstrap 测试引导前不查询提供者
func TestEngine_NoLookupBeforeBootstrap(t *testing.T) {
	h := newHarness(t, config.ModeClient)
	h.listen()
	h.engine.handleTick()

	_, _, lookups := h.dht.counts()
	assert.Equal(t, 0, lookups)
	assert.Nil(t, h.engine.tickC())
}

// TestEngine_ClientDiscovery 测试查询重试、按距离选择与拨号
func TestEngine_ClientDiscovery(t *testing.T) {
	h := newHarness(t, config.ModeClient)
	events := h.run(t)

	events <- &protocol.ListenAddrEvent{Addr: ma.StringCast("/ip4/127.0.0.1/tcp/1")}
	events <- &protocol.KadEvent{Result: &protocol.BootstrapResult{Peers: 1}}

	// 首次 tick 立即触发
	require.Eventually(t, func() bool {
		_, _, lookups := h.dht.counts()
		return lookups == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, PhaseDiscovering, h.engine.Phase())

	events <- &protocol.KadEvent{Result: &protocol.GetProvidersResult{Ok: &protocol.FinishedWithNoAdditionalRecord{}}}
	require.Eventually(t, func() bool {
		_, _, lookups := h.dht.counts()
		if lookups >= 2 {
			return true
		}
		h.clock.Add(10 * time.Second)
		return false
	}, 5*time.Second, 5*time.Millisecond)

	p1, p2 := randPeer(t), randPeer(t)
	want := dht.SortByDistance([]peer.ID{p1, p2}, dht.NewServiceKey("myapi:v1"))[0]
	events <- &protocol.KadEvent{Result: &protocol.GetProvidersResult{
		Ok: &protocol.FoundProviders{Providers: []peer.ID{h.self, p2, p1}},
	}}

	require.Eventually(t, func() bool { return len(h.dialer.dialed()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []peer.ID{want}, h.dialer.dialed())
	got, ok := h.engine.DiscoveredPeer()
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, PhaseDiscovered, h.engine.Phase())

	// 选定后不再查询，后续结果被忽略
	_, _, before := h.dht.counts()
	for i := 0; i < 5; i++ {
		h.clock.Add(10 * time.Second)
	}
	events <- &protocol.KadEvent{Result: &protocol.GetProvidersResult{Ok: &protocol.FoundProviders{Providers: []peer.ID{randPeer(t)}}}}
	time.Sleep(20 * time.Millisecond)

	_, _, after := h.dht.counts()
	assert.Equal(t, before, after)
	assert.Len(t, h.dialer.dialed(), 1)
}

// TestEngine_EmptyProviders 测试只有自身或为空时继续等待
func TestEngine_EmptyProviders(t *testing.T) {
	h := newHarness(t, config.ModeClient)
	h.listen()
	h.bootOK()

	h.engine.handleGetProviders(&protocol.GetProvidersResult{Ok: &protocol.FoundProviders{Providers: []peer.ID{h.self}}})
	h.engine.handleGetProviders(&protocol.GetProvidersResult{Ok: &protocol.FoundProviders{}})
	h.engine.handleGetProviders(&protocol.GetProvidersResult{Err: dht.ErrQueryTimeout})

	_, ok := h.engine.DiscoveredPeer()
	assert.False(t, ok)
	assert.Empty(t, h.dialer.dialed())
	assert.NotNil(t, h.engine.tickC())
}

// TestEngine_DialFailureNotRetried 测试拨号失败只记录
func TestEngine_DialFailureNotRetried(t *testing.T) {
	h := newHarness(t, config.ModeClient)
	h.listen()
	h.bootOK()
	p := randPeer(t)
	h.engine.handleGetProviders(&protocol.GetProvidersResult{Ok: &protocol.FoundProviders{Providers: []peer.ID{p}}})
	h.engine.handleEvent(&protocol.DialFailedEvent{Peer: p, Err: errors.New("no route")})

	assert.Len(t, h.dialer.dialed(), 1)
	assert.Nil(t, h.engine.tickC())
}

// ============================================================================
//                              连接与通道
// ============================================================================

// TestEngine_IdentifyFeedsRouting 测试 identify 地址去重后写入 DHT 并打开通道
func TestEngine_IdentifyFeedsRouting(t *testing.T) {
	h := newHarness(t, config.ModeServer)
	p := randPeer(t)
	ev := &protocol.IdentifyEvent{
		Peer: p,
		ListenAddrs: []ma.Multiaddr{
			ma.StringCast("/ip4/10.0.0.1/tcp/4001"),
			ma.StringCast("/ip4/10.0.0.1/udp/4001/quic-v1"),
		},
		Protocols: []libp2pprotocol.ID{messaging.ProtocolID},
	}

	h.engine.handleEvent(ev)
	h.engine.handleEvent(ev)

	assert.Len(t, h.dht.addrs[p], 2)
	assert.Equal(t, []peer.ID{p, p}, h.opener.opened)

	// 已有通道时不再打开
	h.channels.Insert(&fakeChannel{id: p})
	h.engine.handleEvent(ev)
	assert.Len(t, h.opener.opened, 2)

	// 不支持消息协议的对端不打开通道
	q := randPeer(t)
	h.engine.handleEvent(&protocol.IdentifyEvent{Peer: q, ListenAddrs: ev.ListenAddrs})
	assert.Len(t, h.opener.opened, 2)
	assert.Len(t, h.dht.addrs[q], 2)
}

// TestEngine_ChannelLifecycle 测试通道插入、重复关闭与断开移除
func TestEngine_ChannelLifecycle(t *testing.T) {
	h := newHarness(t, config.ModeClient)
	p := randPeer(t)
	first := &fakeChannel{id: p}
	dup := &fakeChannel{id: p}

	h.engine.handleEvent(&protocol.ChannelEvent{Peer: p, Channel: first})
	h.engine.handleEvent(&protocol.ChannelEvent{Peer: p, Channel: dup})
	h.engine.handleEvent(&protocol.ChannelEvent{Peer: p, Err: errors.New("protocols not supported")})

	assert.True(t, h.channels.Has(p))
	assert.True(t, dup.closed)
	assert.False(t, first.closed)

	h.engine.handleEvent(&protocol.ConnectionClosedEvent{Peer: p, Remaining: 1})
	assert.True(t, h.channels.Has(p))

	h.engine.handleEvent(&protocol.ConnectionClosedEvent{Peer: p, Remaining: 0})
	assert.False(t, h.channels.Has(p))
	assert.True(t, first.closed)
}

// TestEngine_ChannelBroken 测试写入失败的通道被移除并重新打开
func TestEngine_ChannelBroken(t *testing.T) {
	h := newHarness(t, config.ModeClient)
	p := randPeer(t)
	current := &fakeChannel{id: p}
	stale := &fakeChannel{id: p}

	h.engine.handleEvent(&protocol.ChannelEvent{Peer: p, Channel: current})

	// 早已被替换的通道不影响映射
	h.engine.handleEvent(&protocol.ChannelClosedEvent{Peer: p, Channel: stale, Err: errors.New("stream reset")})
	assert.True(t, h.channels.Has(p))
	assert.Empty(t, h.opener.opened)

	h.engine.handleEvent(&protocol.ChannelClosedEvent{Peer: p, Channel: current, Err: errors.New("stream reset")})
	assert.False(t, h.channels.Has(p))
	assert.True(t, current.closed)
	assert.Equal(t, []peer.ID{p}, h.opener.opened)

	// 重复事件被忽略
	h.engine.handleEvent(&protocol.ChannelClosedEvent{Peer: p, Channel: current, Err: errors.New("stream reset")})
	assert.Len(t, h.opener.opened, 1)
}

// TestEngine_MessageHandler 测试消息回调
func TestEngine_MessageHandler(t *testing.T) {
	h := newHarness(t, config.ModeClient)
	p := randPeer(t)
	var got []byte
	h.engine.WithMessageHandler(func(from peer.ID, data []byte) {
		assert.Equal(t, p, from)
		got = data
	})
	h.engine.handleEvent(&protocol.MessageEvent{Peer: p, Data: []byte("hi")})
	assert.Equal(t, "hi", string(got))
}

// TestEngine_ObservationalEvents 测试其余事件只记录不改变状态
func TestEngine_ObservationalEvents(t *testing.T) {
	h := newHarness(t, config.ModeClient)
	p := randPeer(t)
	h.engine.handleEvent(&protocol.ConnectionEstablishedEvent{Peer: p, Relayed: true, NumEstablished: 1})
	h.engine.handleEvent(&protocol.PingEvent{Peer: p, RTT: time.Millisecond})
	h.engine.handleEvent(&protocol.RelayEvent{Relay: p, Kind: protocol.ReservationFailed})
	h.engine.handleEvent(&protocol.HolePunchEvent{Peer: p, Kind: protocol.HolePunchFailed, Err: "timeout"})

	assert.Equal(t, PhaseIdle, h.engine.Phase())
	assert.Empty(t, h.dialer.dialed())
}

// ============================================================================
//                              命令
// ============================================================================

// TestEngine_Commands 测试 send 与 list
func TestEngine_Commands(t *testing.T) {
	h := newHarness(t, config.ModeClient)
	var out bytes.Buffer
	h.engine.WithOutput(&out)

	a, b := randPeer(t), randPeer(t)
	ca := &fakeChannel{id: a}
	cb := &fakeChannel{id: b, full: true}
	h.channels.Insert(ca)
	h.channels.Insert(cb)

	h.engine.handleCommand(command.Parse("send " + a.String() + " hello   there"))
	require.Len(t, ca.sent, 1)
	assert.Equal(t, "hello there", string(ca.sent[0]))

	// 队列满、未知节点与无效 ID 只记录警告
	h.engine.handleCommand(command.Parse("send " + b.String() + " x"))
	h.engine.handleCommand(command.Parse("send " + randPeer(t).String() + " x"))
	h.engine.handleCommand(command.Parse("send not-a-peer x"))
	h.engine.handleCommand(command.Parse("bogus"))
	assert.Len(t, ca.sent, 1)
	assert.Empty(t, cb.sent)

	h.engine.handleCommand(command.List{})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.ElementsMatch(t, []string{a.String(), b.String()}, lines)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Mode: config.ModeClient}, nil, &fakeDialer{}, &fakeOpener{}, fakeLocal{}, messaging.NewChannelMap())
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = New(Options{Mode: "relay"}, newFakeDHT(), &fakeDialer{}, &fakeOpener{}, fakeLocal{}, messaging.NewChannelMap())
	assert.ErrorIs(t, err, config.ErrInvalidMode)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "registered", PhaseRegistered.String())
	assert.Equal(t, "Phase(99)", Phase(99).String())
}
