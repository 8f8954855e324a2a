package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量名
const (
	EnvLevel     = "P2PNODE_LOG_LEVEL"
	EnvFormat    = "P2PNODE_LOG_FORMAT"
	EnvAddSource = "P2PNODE_LOG_ADD_SOURCE"
)

// LogFormat 输出格式
type LogFormat int32

const (
	// FormatText logfmt 风格文本（默认）
	FormatText LogFormat = iota
	// FormatJSON 每行一个 JSON 对象
	FormatJSON
)

// ParseFormat 解析格式名，未知名称返回 FormatText
func ParseFormat(s string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Config 从环境变量解析出的日志配置
type Config struct {
	mu sync.RWMutex

	// DefaultLevel 默认级别
	DefaultLevel slog.Level

	// SubsystemLevels 子系统级别
	SubsystemLevels map[string]slog.Level

	// Format 初始输出格式
	Format LogFormat

	// AddSource 是否输出源码位置
	AddSource bool
}

// LevelForSubsystem 返回子系统级别，未单独配置时返回默认级别
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

func (c *Config) setDefault(level slog.Level) {
	c.mu.Lock()
	c.DefaultLevel = level
	c.mu.Unlock()
}

var (
	envConfig     *Config
	envConfigOnce sync.Once
)

// ConfigFromEnv 返回环境变量配置（进程内只解析一次）
func ConfigFromEnv() *Config {
	envConfigOnce.Do(func() {
		envConfig = parseEnv(os.Getenv(EnvLevel), os.Getenv(EnvFormat), os.Getenv(EnvAddSource))
		currentFormat.Store(int32(envConfig.Format))
	})
	return envConfig
}

func parseEnv(level, format, addSource string) *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          ParseFormat(format),
	}
	if level != "" {
		parseLevelSpec(cfg, level)
	}
	if addSource != "" {
		cfg.AddSource = addSource != "false" && addSource != "0"
	}
	return cfg
}

// parseLevelSpec 解析 "subsystem=level,...,default"
//
// 无法识别的级别名被忽略。
func parseLevelSpec(cfg *Config, spec string) {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, lvl, found := strings.Cut(part, "=")
		if !found {
			if l, ok := ParseLevel(part); ok {
				cfg.DefaultLevel = l
			}
			continue
		}
		if l, ok := ParseLevel(strings.TrimSpace(lvl)); ok {
			cfg.SubsystemLevels[strings.TrimSpace(name)] = l
		}
	}
}

// ParseLevel 解析级别名（debug/info/warn/error）
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
