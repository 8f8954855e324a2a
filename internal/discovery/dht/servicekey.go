package dht

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ipfs/go-cid"
	kbucket "github.com/libp2p/go-libp2p-kbucket"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multihash"
)

// RecordNamespace service 键值记录的命名空间
const RecordNamespace = "service"

// ServiceKey 服务名对应的 DHT 键
//
// 相同的服务名得到逐字节相同的键。
type ServiceKey struct {
	Name string
	Raw  []byte
}

// NewServiceKey 由服务名构造键
func NewServiceKey(name string) ServiceKey {
	return ServiceKey{Name: name, Raw: []byte("service:" + name)}
}

// String 返回原始键文本
func (k ServiceKey) String() string { return string(k.Raw) }

// CID 提供者记录使用的 CIDv1（raw 编码，sha2-256）
func (k ServiceKey) CID() cid.Cid {
	mh, err := multihash.Sum(k.Raw, multihash.SHA2_256, -1)
	if err != nil {
		// sha2-256 总是可用
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, mh)
}

// RecordKey 键值记录使用的键
//
// 格式: /service/<hex(sha256(Raw))>
func (k ServiceKey) RecordKey() string {
	h := sha256.Sum256(k.Raw)
	return "/" + RecordNamespace + "/" + hex.EncodeToString(h[:])
}

// kadID 键在 Kademlia 空间中的位置，与 kad-dht 的提供者键一致
func (k ServiceKey) kadID() kbucket.ID {
	return kbucket.ConvertKey(string(k.CID().Hash()))
}

// SortByDistance 按到键的 XOR 距离从近到远排序，返回新切片
func SortByDistance(peers []peer.ID, key ServiceKey) []peer.ID {
	return kbucket.SortClosestPeers(peers, key.kadID())
}
