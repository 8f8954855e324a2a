package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// RelayConfig 中继客户端配置
//
// 节点不可直连时，向 StaticRelays 中的中继申请预留（reservation），
// 从而获得 /p2p/<relay>/p2p-circuit 形式的可达地址。
type RelayConfig struct {
	// EnableClient 启用中继客户端传输
	EnableClient bool `json:"enable_client"`

	// StaticRelays 静态中继地址（必须包含 /p2p/<id>）
	StaticRelays []string `json:"static_relays,omitempty"`

	// ReserveTimeout 单次预留请求超时
	ReserveTimeout Duration `json:"reserve_timeout"`

	// RefreshBefore 预留到期前提前刷新的时间
	RefreshBefore Duration `json:"refresh_before"`

	// RetryInterval 预留失败后的重试间隔
	RetryInterval Duration `json:"retry_interval"`
}

// DefaultRelayConfig 返回默认中继配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		EnableClient:   true,
		ReserveTimeout: Duration(30 * time.Second),
		RefreshBefore:  Duration(2 * time.Minute),
		RetryInterval:  Duration(time.Minute),
	}
}

// Validate 验证中继配置
func (c RelayConfig) Validate() error {
	if !c.EnableClient {
		if len(c.StaticRelays) > 0 {
			return errors.New("static relays configured but relay client disabled")
		}
		return nil
	}
	for _, s := range c.StaticRelays {
		if _, err := peer.AddrInfoFromString(s); err != nil {
			return fmt.Errorf("invalid static relay %q: %w", s, err)
		}
	}
	if c.ReserveTimeout <= 0 {
		return errors.New("reserve timeout must be positive")
	}
	if c.RefreshBefore <= 0 {
		return errors.New("refresh before must be positive")
	}
	if c.RetryInterval <= 0 {
		return errors.New("retry interval must be positive")
	}
	return nil
}

// WithStaticRelays 设置静态中继
func (c RelayConfig) WithStaticRelays(addrs ...string) RelayConfig {
	c.StaticRelays = append([]string(nil), addrs...)
	return c
}
