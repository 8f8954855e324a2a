// Package logger 提供 p2pnode 的子系统日志
//
// 基于标准库 log/slog：
//   - 每个子系统一个 *slog.Logger，输出自带 subsystem 属性
//   - 级别可按子系统单独调整，运行时生效
//   - 环境变量 P2PNODE_LOG_LEVEL / P2PNODE_LOG_FORMAT 提供初始值
//   - libp2p 内部日志（go-log）通过 SetLibp2pLevel 统一控制
//
// 使用示例:
//
//	var log = logger.Logger("engine")
//
//	log.Info("引导成功", "peers", n)
//	log.Warn("引导失败", "err", err)
//
// 环境变量:
//
//	# engine 为 debug，其余 info
//	P2PNODE_LOG_LEVEL=engine=debug,info
//
//	# JSON 输出
//	P2PNODE_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// handlers 子系统名 -> *subsystemHandler
	handlers sync.Map

	// loggers 子系统名 -> *slog.Logger
	loggers sync.Map
)

// Logger 获取子系统 Logger，同名多次调用返回同一实例
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	h := newSubsystemHandler(subsystem, ConfigFromEnv().LevelForSubsystem(subsystem))
	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(h))
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// SetLevel 设置子系统级别；子系统尚未创建时先创建
func SetLevel(subsystem string, level slog.Level) {
	Logger(subsystem)
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).level.Set(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的级别，并作为之后新建子系统的默认级别
//
// 环境变量中显式指定的子系统级别保持不变。
func SetGlobalLevel(level slog.Level) {
	cfg := ConfigFromEnv()
	cfg.setDefault(level)
	handlers.Range(func(key, value any) bool {
		value.(*subsystemHandler).level.Set(cfg.LevelForSubsystem(key.(string)))
		return true
	})
}

// SetFormat 切换输出格式，对已创建的 Logger 同样生效
func SetFormat(f LogFormat) {
	ConfigFromEnv()
	currentFormat.Store(int32(f))
}

// SetOutput 设置输出目标，对已创建的 Logger 同样生效
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard 返回丢弃所有输出的 Logger
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// With 返回带预设属性的子系统 Logger
func With(subsystem string, args ...any) *slog.Logger {
	return Logger(subsystem).With(args...)
}
