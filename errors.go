package p2pnode

import "errors"

// 公共错误定义
var (
	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ErrAlreadyRunning 事件循环已在运行
	ErrAlreadyRunning = errors.New("node already running")

	// ErrInvalidPeerID 节点 ID 解析失败
	ErrInvalidPeerID = errors.New("invalid peer id")
)
