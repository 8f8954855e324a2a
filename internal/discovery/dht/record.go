package dht

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// MaxRecordSize 编码后记录的最大字节数
const MaxRecordSize = 8 << 10

// ServiceRecord 服务端发布的键值记录
type ServiceRecord struct {
	PeerID    string   `cbor:"1,keyasint"`
	Addrs     []string `cbor:"2,keyasint"`
	Service   string   `cbor:"3,keyasint"`
	Published int64    `cbor:"4,keyasint"`
}

// NewServiceRecord 以当前时间构造记录
func NewServiceRecord(service string, id peer.ID, addrs []ma.Multiaddr, now time.Time) ServiceRecord {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return ServiceRecord{
		PeerID:    id.String(),
		Addrs:     out,
		Service:   service,
		Published: now.UnixNano(),
	}
}

// Encode CBOR 编码
func (r ServiceRecord) Encode() ([]byte, error) {
	data, err := cbor.Marshal(r)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxRecordSize {
		return nil, ErrRecordTooLarge
	}
	return data, nil
}

// DecodeServiceRecord 解码并检查字段
func DecodeServiceRecord(data []byte) (ServiceRecord, error) {
	var r ServiceRecord
	if len(data) > MaxRecordSize {
		return r, ErrRecordTooLarge
	}
	if err := cbor.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if r.Service == "" {
		return r, fmt.Errorf("%w: empty service", ErrInvalidRecord)
	}
	if _, err := peer.Decode(r.PeerID); err != nil {
		return r, fmt.Errorf("%w: peer id: %v", ErrInvalidRecord, err)
	}
	return r, nil
}

// AddrInfo 转换为 peer.AddrInfo，忽略无法解析的地址
func (r ServiceRecord) AddrInfo() (peer.AddrInfo, error) {
	id, err := peer.Decode(r.PeerID)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	ai := peer.AddrInfo{ID: id}
	for _, s := range r.Addrs {
		if a, err := ma.NewMultiaddr(s); err == nil {
			ai.Addrs = append(ai.Addrs, a)
		}
	}
	return ai, nil
}
