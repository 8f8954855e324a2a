package protocol

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	libp2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
)

// Event 组合行为产生的事件
//
// 封闭接口：只有本包定义的类型实现它。
type Event interface {
	protocolEvent()
}

// ============================================================================
//                              swarm
// ============================================================================

// ListenAddrEvent 新的监听地址已绑定
type ListenAddrEvent struct {
	Addr ma.Multiaddr
}

// ConnectionEstablishedEvent 与对端建立了一条连接
type ConnectionEstablishedEvent struct {
	Peer      peer.ID
	Addr      ma.Multiaddr
	Direction network.Direction

	// Relayed 连接经过中继（/p2p-circuit）
	Relayed bool

	// NumEstablished 建立后与该对端的连接总数
	NumEstablished int
}

// ConnectionClosedEvent 一条连接关闭
type ConnectionClosedEvent struct {
	Peer peer.ID
	Addr ma.Multiaddr

	// Remaining 关闭后与该对端剩余的连接数
	Remaining int
}

// DialFailedEvent 主动拨号失败
type DialFailedEvent struct {
	Peer peer.ID
	Err  error
}

// ============================================================================
//                              liveness / identify
// ============================================================================

// PingEvent 一次存活探测的结果
type PingEvent struct {
	Peer peer.ID
	RTT  time.Duration
	Err  error
}

// IdentifyEvent 收到对端的 identify 信息
type IdentifyEvent struct {
	Peer            peer.ID
	ListenAddrs     []ma.Multiaddr
	Protocols       []libp2pprotocol.ID
	ObservedAddr    ma.Multiaddr
	AgentVersion    string
	ProtocolVersion string
}

// Supports 对端是否声明支持协议 id
func (e *IdentifyEvent) Supports(id libp2pprotocol.ID) bool {
	for _, p := range e.Protocols {
		if p == id {
			return true
		}
	}
	return false
}

// ============================================================================
//                              dht
// ============================================================================

// KadEvent 一次出站 DHT 查询有了结果
type KadEvent struct {
	QueryID string
	Result  QueryResult
}

// QueryResult DHT 查询结果（封闭接口）
type QueryResult interface {
	queryResult()
}

// BootstrapResult 引导查询结果
type BootstrapResult struct {
	// Peers 自查询中应答的节点数
	Peers int
	Err   error
}

// StartProvidingResult 发布提供者记录的结果
type StartProvidingResult struct {
	Key string
	Err error
}

// GetProvidersResult 查询提供者的结果
//
// Err 为 nil 时 Ok 必定非空。
type GetProvidersResult struct {
	Key string
	Ok  GetProvidersOk
	Err error
}

// GetProvidersOk 查询提供者成功时的两种形态
type GetProvidersOk interface {
	getProvidersOk()
}

// FoundProviders 找到提供者
type FoundProviders struct {
	Providers []peer.ID
}

// FinishedWithNoAdditionalRecord 查询完成但没有找到提供者
type FinishedWithNoAdditionalRecord struct{}

// PutRecordResult 写入键值记录的结果
type PutRecordResult struct {
	Key string
	Err error
}

// GetRecordResult 读取键值记录的结果
type GetRecordResult struct {
	Key   string
	Value []byte
	Err   error
}

// ============================================================================
//                              relay / holepunch
// ============================================================================

// RelayEventKind 中继事件类型
type RelayEventKind int

const (
	// ReservationAccepted 预留成功
	ReservationAccepted RelayEventKind = iota
	// ReservationFailed 预留失败
	ReservationFailed
	// ReservationExpired 预留到期未能续约
	ReservationExpired
)

func (k RelayEventKind) String() string {
	switch k {
	case ReservationAccepted:
		return "accepted"
	case ReservationFailed:
		return "failed"
	case ReservationExpired:
		return "expired"
	}
	return fmt.Sprintf("RelayEventKind(%d)", int(k))
}

// RelayEvent 中继客户端事件
type RelayEvent struct {
	Relay      peer.ID
	Kind       RelayEventKind
	Expiration time.Time
	Addrs      []ma.Multiaddr
	Err        error
}

// HolePunchKind 打洞事件类型
type HolePunchKind int

const (
	// HolePunchStarted 开始协调打洞
	HolePunchStarted HolePunchKind = iota
	// HolePunchSucceeded 打洞成功，已有直连
	HolePunchSucceeded
	// HolePunchFailed 打洞失败，中继连接保留
	HolePunchFailed
	// DirectDialSucceeded 无需打洞的直接拨号成功
	DirectDialSucceeded
	// DirectDialFailed 直接拨号失败，将尝试打洞
	DirectDialFailed
)

func (k HolePunchKind) String() string {
	switch k {
	case HolePunchStarted:
		return "started"
	case HolePunchSucceeded:
		return "succeeded"
	case HolePunchFailed:
		return "failed"
	case DirectDialSucceeded:
		return "direct_dial_succeeded"
	case DirectDialFailed:
		return "direct_dial_failed"
	}
	return fmt.Sprintf("HolePunchKind(%d)", int(k))
}

// HolePunchEvent 直连升级事件
type HolePunchEvent struct {
	Peer    peer.ID
	Kind    HolePunchKind
	Elapsed time.Duration
	Err     string
}

// ============================================================================
//                              messaging
// ============================================================================

// PeerChannel 发往单个对端的字节通道
type PeerChannel interface {
	Peer() peer.ID

	// Send 非阻塞入队；队列满或通道已关闭时返回错误
	Send(data []byte) error

	Close() error
}

// MessageEvent 收到一条对端消息
type MessageEvent struct {
	Peer peer.ID
	Data []byte
}

// ChannelEvent 出站通道打开成功或失败
type ChannelEvent struct {
	Peer    peer.ID
	Channel PeerChannel
	Err     error
}

// ChannelClosedEvent 出站通道的写协程因写入失败退出
//
// 通道此后拒绝 Send，事件循环应移除映射中的该通道。
type ChannelClosedEvent struct {
	Peer    peer.ID
	Channel PeerChannel
	Err     error
}

func (*ListenAddrEvent) protocolEvent()            {}
func (*ConnectionEstablishedEvent) protocolEvent() {}
func (*ConnectionClosedEvent) protocolEvent()      {}
func (*DialFailedEvent) protocolEvent()            {}
func (*PingEvent) protocolEvent()                  {}
func (*IdentifyEvent) protocolEvent()              {}
func (*KadEvent) protocolEvent()                   {}
func (*RelayEvent) protocolEvent()                 {}
func (*HolePunchEvent) protocolEvent()             {}
func (*MessageEvent) protocolEvent()               {}
func (*ChannelEvent) protocolEvent()               {}
func (*ChannelClosedEvent) protocolEvent()         {}

func (*BootstrapResult) queryResult()      {}
func (*StartProvidingResult) queryResult() {}
func (*GetProvidersResult) queryResult()   {}
func (*PutRecordResult) queryResult()      {}
func (*GetRecordResult) queryResult()      {}

func (*FoundProviders) getProvidersOk()                 {}
func (*FinishedWithNoAdditionalRecord) getProvidersOk() {}
