// Package identity 提供节点身份
//
// 每次启动生成一个新的 Ed25519 密钥对，节点 ID 由公钥派生。
// 身份不落盘，进程退出即失效。
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// ErrNilKey 私钥为空
var ErrNilKey = errors.New("identity: nil private key")

// Identity 节点身份
type Identity struct {
	privKey crypto.PrivKey
	peerID  peer.ID
}

// Generate 生成新的 Ed25519 身份
func Generate() (*Identity, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom 使用指定随机源生成身份
//
// 传入确定性随机源可以得到可复现的身份，测试中使用。
func GenerateFrom(r io.Reader) (*Identity, error) {
	priv, _, err := crypto.GenerateEd25519Key(r)
	if err != nil {
		return nil, fmt.Errorf("生成 Ed25519 密钥失败: %w", err)
	}
	return FromPrivKey(priv)
}

// FromPrivKey 从已有私钥构造身份
func FromPrivKey(priv crypto.PrivKey) (*Identity, error) {
	if priv == nil {
		return nil, ErrNilKey
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("派生节点 ID 失败: %w", err)
	}
	return &Identity{privKey: priv, peerID: id}, nil
}

// PrivKey 私钥
func (i *Identity) PrivKey() crypto.PrivKey { return i.privKey }

// PubKey 公钥
func (i *Identity) PubKey() crypto.PubKey { return i.privKey.GetPublic() }

// PeerID 节点 ID
func (i *Identity) PeerID() peer.ID { return i.peerID }

// String 返回节点 ID 的字符串形式
func (i *Identity) String() string { return i.peerID.String() }
