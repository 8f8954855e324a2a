package config

import (
	"errors"
	"time"
)

// LivenessConfig 存活探测配置
type LivenessConfig struct {
	// Enabled 是否周期性 ping 已连接节点
	Enabled bool `json:"enabled"`

	// Interval ping 周期
	Interval Duration `json:"interval"`

	// Timeout 单次 ping 超时
	Timeout Duration `json:"timeout"`
}

// DefaultLivenessConfig 返回默认存活探测配置
func DefaultLivenessConfig() LivenessConfig {
	return LivenessConfig{
		Enabled:  true,
		Interval: Duration(15 * time.Second),
		Timeout:  Duration(20 * time.Second),
	}
}

// Validate 验证存活探测配置
func (c LivenessConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}
