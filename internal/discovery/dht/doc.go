// Package dht 封装 Kademlia DHT
//
// 底层使用 go-libp2p-kad-dht，全部记录保存在内存数据存储中。
// 每个查询返回一个查询 ID，完成后以 KadEvent 的形式投递到 dht 事件来源，
// 由事件循环推进引导与注册状态机。
//
// 服务名映射为 ServiceKey：提供者记录使用其 CID，
// 键值记录使用 "/service/<hex>" 键并由 service 命名空间验证器校验。
package dht
