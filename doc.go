// Package p2pnode 提供一个在 DHT 上注册与发现服务的 libp2p 节点
//
// 节点以两种模式之一运行：
//
//   - server: 引导成功后以服务名派生的键在 DHT 上登记为提供者
//   - client: 周期性查询该键的提供者，拨号距离最近的一个并建立消息通道
//
// 连通性依次尝试直连、中继预留与打洞升级。节点间通过
// /p2p-simple/msg/1.0.0 协议上的长度前缀帧交换消息。
//
// # 快速开始
//
//	node, err := p2pnode.New(ctx,
//	    p2pnode.WithMode(config.ModeServer),
//	    p2pnode.WithService("myapi:v1"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	// 阻塞直到 ctx 结束
//	if err := node.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # 命令
//
// 启用命令接口时，节点从输入逐行读取命令：
//
//	send <peer> <msg...>   向已建立通道的对端发送消息
//	list                   列出已建立通道的对端
//
// # 文件组织
//
//	p2pnode/
//	├── doc.go        # 包文档
//	├── version.go    # 版本信息
//	├── errors.go     # 公共错误
//	├── options.go    # 用户选项
//	└── node.go       # Node 门面
package p2pnode
