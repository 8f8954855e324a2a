package messaging

import "errors"

var (
	// ErrChannelFull 发送队列已满
	ErrChannelFull = errors.New("messaging: channel full")

	// ErrChannelClosed 通道已关闭
	ErrChannelClosed = errors.New("messaging: channel closed")

	// ErrUnknownPeer 没有到该节点的通道
	ErrUnknownPeer = errors.New("messaging: no channel to peer")

	// ErrMessageTooLarge 消息超过大小上限
	ErrMessageTooLarge = errors.New("messaging: message too large")
)
