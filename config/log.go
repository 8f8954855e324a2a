package config

import (
	"fmt"
	"strings"
)

// LogConfig 日志配置
//
// 环境变量 P2PNODE_LOG_LEVEL / P2PNODE_LOG_FORMAT 优先于这里的值。
type LogConfig struct {
	// Level 默认日志级别（debug/info/warn/error）
	Level string `json:"level"`

	// Format 输出格式（text/json）
	Format string `json:"format"`

	// Libp2pLevel libp2p 内部日志级别
	Libp2pLevel string `json:"libp2p_level"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "text",
		Libp2pLevel: "error",
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	if !validLevel(c.Level) {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	if !validLevel(c.Libp2pLevel) {
		return fmt.Errorf("invalid libp2p log level %q", c.Libp2pLevel)
	}
	switch strings.ToLower(c.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Format)
	}
	return nil
}

func validLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
