package messaging

import (
	"sort"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/multierr"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

// ChannelMap 已连接节点到出站通道的映射
//
// 只有事件循环写入；命令处理与外部调用方只读。
type ChannelMap struct {
	mu sync.RWMutex
	m  map[peer.ID]protocol.PeerChannel
}

// NewChannelMap 创建空映射
func NewChannelMap() *ChannelMap {
	return &ChannelMap{m: make(map[peer.ID]protocol.PeerChannel)}
}

// Insert 插入通道；已存在时返回 false 且不替换
func (cm *ChannelMap) Insert(ch protocol.PeerChannel) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.m[ch.Peer()]; ok {
		return false
	}
	cm.m[ch.Peer()] = ch
	return true
}

// Remove 移除并返回通道
func (cm *ChannelMap) Remove(p peer.ID) (protocol.PeerChannel, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	ch, ok := cm.m[p]
	if ok {
		delete(cm.m, p)
	}
	return ch, ok
}

// Get 查找通道
func (cm *ChannelMap) Get(p peer.ID) (protocol.PeerChannel, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	ch, ok := cm.m[p]
	return ch, ok
}

// Has 是否已有通道
func (cm *ChannelMap) Has(p peer.ID) bool {
	_, ok := cm.Get(p)
	return ok
}

// Peers 所有对端（按 ID 排序）
func (cm *ChannelMap) Peers() []peer.ID {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]peer.ID, 0, len(cm.m))
	for p := range cm.m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len 通道数
func (cm *ChannelMap) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.m)
}

// CloseAll 关闭并清空所有通道
func (cm *ChannelMap) CloseAll() error {
	cm.mu.Lock()
	chans := cm.m
	cm.m = make(map[peer.ID]protocol.PeerChannel)
	cm.mu.Unlock()

	var err error
	for _, ch := range chans {
		err = multierr.Append(err, ch.Close())
	}
	return err
}
