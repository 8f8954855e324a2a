package logger

import (
	"fmt"

	golog "github.com/ipfs/go-log/v2"
)

// SetLibp2pLevel 设置 libp2p 内部（go-log）所有子系统的日志级别
func SetLibp2pLevel(level string) error {
	lvl, err := golog.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("invalid libp2p log level %q: %w", level, err)
	}
	golog.SetAllLoggers(lvl)
	return nil
}

// SetLibp2pSubsystemLevel 设置单个 libp2p 子系统（如 "dht"、"relay"）的级别
func SetLibp2pSubsystemLevel(subsystem, level string) error {
	return golog.SetLogLevel(subsystem, level)
}

// Apply 按配置应用级别、格式与 libp2p 级别
//
// 空字符串表示保持现状。
func Apply(level, format, libp2pLevel string) error {
	if level != "" {
		l, ok := ParseLevel(level)
		if !ok {
			return fmt.Errorf("invalid log level %q", level)
		}
		SetGlobalLevel(l)
	}
	if format != "" {
		SetFormat(ParseFormat(format))
	}
	if libp2pLevel != "" {
		return SetLibp2pLevel(libp2pLevel)
	}
	return nil
}
