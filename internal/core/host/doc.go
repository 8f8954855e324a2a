// Package host 组装 libp2p 主机
//
// 传输栈：
//   - TCP，叠加 Noise/TLS 安全握手与 yamux 流复用
//   - QUIC v1（自带 TLS 1.3 与多路复用）
//   - 中继客户端传输（/p2p-circuit），配合 relay 包的预留
//   - DCUtR 打洞，由 holepunch 包追踪
//   - 可选 UPnP/NAT-PMP 端口映射与 AutoNAT 服务
//
// 主机构造时不监听任何地址。swarm 包在挂上网络通知之后再调用 Listen，
// 这样每个绑定成功的地址都会产生一个 ListenAddrEvent。
//
// 构造失败是致命错误，不做部分传输降级。
package host
