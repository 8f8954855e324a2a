package config

import (
	"errors"
	"fmt"
	"time"
)

// DiscoveryConfig 节点发现配置
type DiscoveryConfig struct {
	// DHT Kademlia DHT 配置
	DHT DHTConfig `json:"dht"`

	// Bootstrap 引导节点配置
	Bootstrap BootstrapConfig `json:"bootstrap"`
}

// DHTConfig DHT 配置
type DHTConfig struct {
	// ServerMode 是否以服务器模式运行（存储并应答他人的查询）
	ServerMode bool `json:"server_mode"`

	// BucketSize K 桶大小
	BucketSize int `json:"bucket_size"`

	// Concurrency 查询并发度（alpha）
	Concurrency int `json:"concurrency"`

	// QueryTimeout 单次查询最长持续时间，超时视为失败
	QueryTimeout Duration `json:"query_timeout"`

	// ProtocolPrefix DHT 协议前缀，默认与公共 IPFS DHT 相同
	ProtocolPrefix string `json:"protocol_prefix"`

	// ProviderLimit 单次 get_providers 最多收集的提供者数
	ProviderLimit int `json:"provider_limit"`

	// EventBuffer DHT 事件队列容量
	EventBuffer int `json:"event_buffer"`
}

// BootstrapConfig 引导配置
type BootstrapConfig struct {
	// Peers 引导节点多地址，须包含 /p2p/<id>；解析失败的条目被跳过
	Peers []string `json:"peers"`

	// DialTimeout 连接单个引导节点的超时
	DialTimeout Duration `json:"dial_timeout"`

	// RetryInitial 引导失败后的首次重试间隔
	RetryInitial Duration `json:"retry_initial"`

	// RetryMax 引导重试间隔上限
	RetryMax Duration `json:"retry_max"`
}

// DefaultBootstrapPeers 公共 libp2p 引导节点
var DefaultBootstrapPeers = []string{
	"/dnsaddr/bootstrap.libp2p.io/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN",
	"/dnsaddr/bootstrap.libp2p.io/p2p/QmQCU2EcMqAqQPR2i9bChDtGNJchTbq5TbXJJ16u19uLTa",
	"/dnsaddr/bootstrap.libp2p.io/p2p/QmbLHAnMoJPWSCR5Zhtx6BHJX9KiKNN6tpvbUcqanj75Nb",
	"/dnsaddr/bootstrap.libp2p.io/p2p/QmcZf59bWwK5XFi76CZX8cbJ4BhTzzA3gU1ZjYZcYW3dwt",
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		DHT:       DefaultDHTConfig(),
		Bootstrap: DefaultBootstrapConfig(),
	}
}

// DefaultDHTConfig 返回默认 DHT 配置
func DefaultDHTConfig() DHTConfig {
	return DHTConfig{
		ServerMode:     true,
		BucketSize:     20, // Kademlia 标准 K 值
		Concurrency:    10, // 与 kad-dht 默认一致
		QueryTimeout:   Duration(5 * time.Minute),
		ProtocolPrefix: "/ipfs",
		ProviderLimit:  20,
		EventBuffer:    64,
	}
}

// DefaultBootstrapConfig 返回默认引导配置
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		Peers:        append([]string(nil), DefaultBootstrapPeers...),
		DialTimeout:  Duration(15 * time.Second),
		RetryInitial: Duration(5 * time.Second),
		RetryMax:     Duration(5 * time.Minute),
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	if err := c.DHT.Validate(); err != nil {
		return fmt.Errorf("dht: %w", err)
	}
	if err := c.Bootstrap.Validate(); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}

// Validate 验证 DHT 配置
func (c DHTConfig) Validate() error {
	if c.BucketSize <= 0 {
		return errors.New("bucket size must be positive")
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be positive")
	}
	if c.QueryTimeout <= 0 {
		return errors.New("query timeout must be positive")
	}
	if c.ProtocolPrefix == "" || c.ProtocolPrefix[0] != '/' {
		return fmt.Errorf("protocol prefix must start with '/': %q", c.ProtocolPrefix)
	}
	if c.ProviderLimit <= 0 {
		return errors.New("provider limit must be positive")
	}
	if c.EventBuffer <= 0 {
		return errors.New("event buffer must be positive")
	}
	return nil
}

// Validate 验证引导配置
//
// 单条引导地址格式错误不视为配置错误，运行时跳过该条目。
func (c BootstrapConfig) Validate() error {
	if c.DialTimeout <= 0 {
		return errors.New("dial timeout must be positive")
	}
	if c.RetryInitial <= 0 {
		return errors.New("retry initial must be positive")
	}
	if c.RetryMax < c.RetryInitial {
		return errors.New("retry max must not be less than retry initial")
	}
	return nil
}

// WithPeers 替换引导节点列表
func (c BootstrapConfig) WithPeers(addrs ...string) BootstrapConfig {
	c.Peers = append([]string(nil), addrs...)
	return c
}

// WithQueryTimeout 设置查询超时
func (c DHTConfig) WithQueryTimeout(d time.Duration) DHTConfig {
	c.QueryTimeout = Duration(d)
	return c
}
