// Package config 提供 p2pnode 的统一配置管理
//
// 本包采用组合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，并提供 DefaultXxx() 与 Validate()
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Node.Mode = config.ModeServer
//	cfg.Node.Service = "myapi:v1"
//
//	// 从 JSON 文件加载
//	cfg, err := config.Load("node.json")
package config

import "fmt"

// Config 是 p2pnode 的完整配置结构
//
// 配置按照功能模块组织：
//   - Node: 运行模式与服务名
//   - Transport: 传输协议（TCP/QUIC）与监听地址
//   - Security: 安全握手（Noise/TLS）
//   - NAT: NAT 穿透（端口映射/打洞）
//   - Relay: 中继客户端
//   - Discovery: DHT 与引导节点
//   - Service: 服务注册与发现
//   - Liveness: 存活探测
//   - ConnMgr: 连接管理
//   - Command: 命令行控制面
//   - Metrics: 指标
//   - Log: 日志
type Config struct {
	// Node 节点配置
	Node NodeConfig `json:"node"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// Security 安全传输配置
	Security SecurityConfig `json:"security"`

	// NAT NAT 穿透配置
	NAT NATConfig `json:"nat"`

	// Relay 中继客户端配置
	Relay RelayConfig `json:"relay"`

	// Discovery 节点发现配置
	Discovery DiscoveryConfig `json:"discovery"`

	// Service 服务注册/发现配置
	Service ServiceConfig `json:"service"`

	// Liveness 存活探测配置
	Liveness LivenessConfig `json:"liveness"`

	// ConnMgr 连接管理配置
	ConnMgr ConnMgrConfig `json:"conn_mgr"`

	// Command 命令接口配置
	Command CommandConfig `json:"command"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// NewConfig 创建默认配置
//
// 返回的配置使用所有组件的默认值，可直接用于加入公共 DHT。
func NewConfig() *Config {
	return &Config{
		Node:      DefaultNodeConfig(),
		Transport: DefaultTransportConfig(),
		Security:  DefaultSecurityConfig(),
		NAT:       DefaultNATConfig(),
		Relay:     DefaultRelayConfig(),
		Discovery: DefaultDiscoveryConfig(),
		Service:   DefaultServiceConfig(),
		Liveness:  DefaultLivenessConfig(),
		ConnMgr:   DefaultConnMgrConfig(),
		Command:   DefaultCommandConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
//
// 任一子配置无效即返回错误，错误信息带有子配置名前缀。
func (c *Config) Validate() error {
	checks := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"node", c.Node},
		{"transport", c.Transport},
		{"security", c.Security},
		{"nat", c.NAT},
		{"relay", c.Relay},
		{"discovery", c.Discovery},
		{"service", c.Service},
		{"liveness", c.Liveness},
		{"conn_mgr", c.ConnMgr},
		{"command", c.Command},
		{"metrics", c.Metrics},
		{"log", c.Log},
	}
	for _, chk := range checks {
		if err := chk.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", chk.name, err)
		}
	}
	return nil
}

// Clone 返回配置的深拷贝
func (c *Config) Clone() *Config {
	out := *c
	out.Transport.ListenAddrs = append([]string(nil), c.Transport.ListenAddrs...)
	out.Relay.StaticRelays = append([]string(nil), c.Relay.StaticRelays...)
	out.Discovery.Bootstrap.Peers = append([]string(nil), c.Discovery.Bootstrap.Peers...)
	return &out
}
