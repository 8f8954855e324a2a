package host

import (
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/dep2p/go-p2pnode/config"
)

// ErrNoIdentity 未提供私钥
var ErrNoIdentity = errors.New("host: private key is required")

// New 构造 libp2p 主机
func New(cfg *config.Config, p Params) (host.Host, error) {
	opts, err := BuildOptions(cfg, p)
	if err != nil {
		return nil, err
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("构造 libp2p 主机失败: %w", err)
	}
	return h, nil
}
