// Package protocol 定义组合协议行为
//
// 节点同时运行七个事件来源：
//   - swarm: 监听地址、连接建立/关闭、拨号失败
//   - liveness: ping 往返时间
//   - identify: 对端协议与监听地址
//   - dht: Kademlia 查询进度
//   - relay: 中继预留
//   - holepunch: 直连升级
//   - messaging: 消息与通道
//
// 每个来源持有一个有界事件队列（Source）。Behaviour 按上面的固定顺序
// 检查各队列，返回第一个就绪的事件，因此同时就绪时的处理顺序是确定的。
// 各处理器之间不直接调用，只通过事件把进度交给事件循环。
//
// 使用示例:
//
//	b := protocol.NewBehaviour(protocol.Sources{Swarm: swarmSrc, DHT: dhtSrc})
//	for {
//	    ev, err := b.Next(ctx)
//	    if err != nil {
//	        return
//	    }
//	    switch ev := ev.(type) {
//	    case *protocol.ListenAddrEvent:
//	        ...
//	    }
//	}
package protocol
