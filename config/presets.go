package config

import "time"

// LocalProtocolPrefix 本地网络使用的 DHT 协议前缀
//
// 与公共 DHT 隔离，同时允许发布服务记录。
const LocalProtocolPrefix = "/p2pnode-local"

// NewLocalConfig 创建仅监听回环地址的配置
//
// 适用场景：单机多节点、集成测试
// 特点：
//   - 仅 TCP，监听 127.0.0.1 临时端口
//   - 无引导节点、无中继、无端口映射
//   - 独立 DHT 协议前缀
//   - 不读取标准输入
func NewLocalConfig() *Config {
	c := NewConfig()
	c.Transport = c.Transport.WithQUIC(false).WithListenAddrs("/ip4/127.0.0.1/tcp/0")
	c.NAT.EnablePortMap = false
	c.NAT.EnableNATService = false
	c.NAT.EnableHolePunching = false
	c.Relay.EnableClient = false
	c.Relay.StaticRelays = nil
	c.Discovery.Bootstrap = c.Discovery.Bootstrap.WithPeers()
	c.Discovery.Bootstrap.RetryInitial = Duration(500 * time.Millisecond)
	c.Discovery.Bootstrap.RetryMax = Duration(5 * time.Second)
	c.Discovery.DHT.ProtocolPrefix = LocalProtocolPrefix
	c.Discovery.DHT.QueryTimeout = Duration(30 * time.Second)
	c.Service.LookupInterval = Duration(time.Second)
	c.Service.RegisterBackoffInitial = Duration(500 * time.Millisecond)
	c.Service.RegisterBackoffMax = Duration(5 * time.Second)
	c.Command.Enabled = false
	c.Metrics.ListenAddr = ""
	return c
}
