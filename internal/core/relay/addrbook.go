package relay

import (
	"sort"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// AddrBook 已预留中继的电路地址
//
// 预留服务写入，主机的地址工厂读取。
type AddrBook struct {
	mu    sync.RWMutex
	addrs map[peer.ID][]ma.Multiaddr
}

// NewAddrBook 创建空地址簿
func NewAddrBook() *AddrBook {
	return &AddrBook{addrs: make(map[peer.ID][]ma.Multiaddr)}
}

// Set 替换某个中继的电路地址；addrs 为空时等同于 Remove
func (b *AddrBook) Set(relay peer.ID, addrs []ma.Multiaddr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(addrs) == 0 {
		delete(b.addrs, relay)
		return
	}
	b.addrs[relay] = append([]ma.Multiaddr(nil), addrs...)
}

// Remove 撤回某个中继的地址
func (b *AddrBook) Remove(relay peer.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.addrs, relay)
}

// Relays 当前持有预留的中继（按 ID 排序）
func (b *AddrBook) Relays() []peer.ID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedLocked()
}

func (b *AddrBook) sortedLocked() []peer.ID {
	out := make([]peer.ID, 0, len(b.addrs))
	for id := range b.addrs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Addrs 所有中继电路地址
func (b *AddrBook) Addrs() []ma.Multiaddr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []ma.Multiaddr
	for _, id := range b.sortedLocked() {
		out = append(out, b.addrs[id]...)
	}
	return out
}

// Factory 主机地址工厂：在主机自身地址后追加电路地址
func (b *AddrBook) Factory(base []ma.Multiaddr) []ma.Multiaddr {
	circuit := b.Addrs()
	if len(circuit) == 0 {
		return base
	}
	out := make([]ma.Multiaddr, 0, len(base)+len(circuit))
	out = append(out, base...)
	return append(out, circuit...)
}

// CircuitAddrs 由中继的传输地址构造 <transport>/p2p/<relay>/p2p-circuit
//
// 已是电路地址或属于其他节点的地址被跳过，结果去重且保持输入顺序。
func CircuitAddrs(relay peer.ID, addrs []ma.Multiaddr) []ma.Multiaddr {
	suffix, err := ma.NewMultiaddr("/p2p/" + relay.String() + "/p2p-circuit")
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{}, len(addrs))
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if _, err := a.ValueForProtocol(ma.P_CIRCUIT); err == nil {
			continue
		}
		transport, id := peer.SplitAddr(a)
		if transport == nil || (id != "" && id != relay) {
			continue
		}
		c := transport.Encapsulate(suffix)
		if _, ok := seen[string(c.Bytes())]; ok {
			continue
		}
		seen[string(c.Bytes())] = struct{}{}
		out = append(out, c)
	}
	return out
}
