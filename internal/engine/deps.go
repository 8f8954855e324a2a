package engine

import (
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-p2pnode/internal/discovery/dht"
)

// DHT 事件循环使用的 DHT 操作，由 *dht.Service 实现
//
// 查询方法立即返回查询 ID，结果以 KadEvent 送回。
type DHT interface {
	AddSeed(seed dht.Seed)
	AddAddress(p peer.ID, addr ma.Multiaddr)
	Bootstrap() string
	StartProviding(key dht.ServiceKey) string
	GetProviders(key dht.ServiceKey) string
	PutRecord(rec dht.ServiceRecord) string
	RecordsEnabled() bool
}

// Dialer 异步拨号，失败以 DialFailedEvent 送回，由 *swarm.Service 实现
type Dialer interface {
	Dial(ai peer.AddrInfo)
}

// ChannelOpener 异步打开消息通道，结果以 ChannelEvent 送回，由 *messaging.Service 实现
type ChannelOpener interface {
	Open(p peer.ID) bool
}

// Local 本节点的 ID 与地址，由 host.Host 实现
type Local interface {
	ID() peer.ID
	Addrs() []ma.Multiaddr
}
