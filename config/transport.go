package config

import (
	"errors"
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// TransportConfig 传输层配置
//
// 配置节点支持的传输协议：
//   - TCP: 可靠流传输，叠加安全握手与流复用
//   - QUIC: 基于 UDP 的低延迟多路复用传输（自带 TLS 1.3）
type TransportConfig struct {
	// EnableTCP 是否启用 TCP
	EnableTCP bool `json:"enable_tcp"`

	// EnableQUIC 是否启用 QUIC
	EnableQUIC bool `json:"enable_quic"`

	// ListenAddrs 监听地址；为空时按启用的传输生成全接口临时端口地址
	ListenAddrs []string `json:"listen_addrs,omitempty"`

	// DialTimeout 拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// ProtocolVersion identify 协议版本
	ProtocolVersion string `json:"protocol_version"`

	// UserAgent identify 代理字符串
	UserAgent string `json:"user_agent,omitempty"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		EnableTCP:       true,
		EnableQUIC:      true,
		DialTimeout:     Duration(30 * time.Second),
		ProtocolVersion: "/p2p-simple/0.1.0",
		UserAgent:       "p2pnode",
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if !c.EnableTCP && !c.EnableQUIC {
		return errors.New("at least one transport must be enabled")
	}
	for _, s := range c.ListenAddrs {
		if _, err := ma.NewMultiaddr(s); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", s, err)
		}
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial timeout must be positive")
	}
	if c.ProtocolVersion == "" {
		return errors.New("protocol version must not be empty")
	}
	return nil
}

// EffectiveListenAddrs 返回实际使用的监听地址
//
// 未显式配置时：TCP -> /ip4/0.0.0.0/tcp/0，QUIC -> /ip4/0.0.0.0/udp/0/quic-v1
func (c TransportConfig) EffectiveListenAddrs() []string {
	if len(c.ListenAddrs) > 0 {
		return append([]string(nil), c.ListenAddrs...)
	}
	var addrs []string
	if c.EnableTCP {
		addrs = append(addrs, "/ip4/0.0.0.0/tcp/0")
	}
	if c.EnableQUIC {
		addrs = append(addrs, "/ip4/0.0.0.0/udp/0/quic-v1")
	}
	return addrs
}

// WithQUIC 设置是否启用 QUIC
func (c TransportConfig) WithQUIC(enabled bool) TransportConfig {
	c.EnableQUIC = enabled
	return c
}

// WithTCP 设置是否启用 TCP
func (c TransportConfig) WithTCP(enabled bool) TransportConfig {
	c.EnableTCP = enabled
	return c
}

// WithListenAddrs 设置监听地址
func (c TransportConfig) WithListenAddrs(addrs ...string) TransportConfig {
	c.ListenAddrs = append([]string(nil), addrs...)
	return c
}
