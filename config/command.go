package config

import "errors"

// CommandConfig 命令接口配置
type CommandConfig struct {
	// Enabled 是否从标准输入读取命令
	Enabled bool `json:"enabled"`

	// QueueSize 命令行队列容量
	QueueSize int `json:"queue_size"`

	// ChannelBuffer 每个对等节点发送队列容量
	ChannelBuffer int `json:"channel_buffer"`

	// MaxMessageSize 单条消息最大字节数
	MaxMessageSize int `json:"max_message_size"`
}

// DefaultCommandConfig 返回默认命令接口配置
func DefaultCommandConfig() CommandConfig {
	return CommandConfig{
		Enabled:        true,
		QueueSize:      100,
		ChannelBuffer:  32,
		MaxMessageSize: 1 << 20,
	}
}

// Validate 验证命令接口配置
func (c CommandConfig) Validate() error {
	if c.QueueSize <= 0 {
		return errors.New("queue size must be positive")
	}
	if c.ChannelBuffer <= 0 {
		return errors.New("channel buffer must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("max message size must be positive")
	}
	return nil
}
