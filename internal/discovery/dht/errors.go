package dht

import "errors"

var (
	// ErrQueryTimeout 查询超过最大时长
	ErrQueryTimeout = errors.New("dht: query timed out")

	// ErrNoPeers 引导时没有任何节点应答
	ErrNoPeers = errors.New("dht: no peers answered bootstrap")

	// ErrRecordsDisabled 当前协议前缀不支持 service 键值记录
	ErrRecordsDisabled = errors.New("dht: service records disabled for this protocol prefix")

	// ErrInvalidRecord 记录无法解码或与键不匹配
	ErrInvalidRecord = errors.New("dht: invalid service record")

	// ErrRecordTooLarge 记录超过大小上限
	ErrRecordTooLarge = errors.New("dht: service record too large")

	// ErrEmptyServiceName 服务名为空
	ErrEmptyServiceName = errors.New("dht: empty service name")
)
