package dht

import (
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// Seed 一个种子地址，包含从 /p2p 组件解析出的节点 ID
type Seed struct {
	ID   peer.ID
	Addr ma.Multiaddr
}

// ParseSeeds 解析种子多地址
//
// 无法解析或缺少 /p2p/<id> 的地址记录警告后跳过；顺序与输入一致。
func ParseSeeds(addrs []string) []Seed {
	out := make([]Seed, 0, len(addrs))
	for _, s := range addrs {
		m, err := ma.NewMultiaddr(s)
		if err != nil {
			log.Warn("跳过无效的种子地址", "addr", s, "err", err)
			continue
		}
		transport, id := peer.SplitAddr(m)
		if id == "" {
			log.Warn("跳过缺少节点 ID 的种子地址", "addr", s)
			continue
		}
		if transport == nil {
			log.Warn("跳过缺少传输地址的种子地址", "addr", s)
			continue
		}
		out = append(out, Seed{ID: id, Addr: transport})
	}
	return out
}
