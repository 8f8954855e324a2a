package config

import (
	"errors"
	"time"
)

// ConnMgrConfig 连接管理配置
type ConnMgrConfig struct {
	// LowWater 连接数低水位，裁剪后保留的连接数
	LowWater int `json:"low_water"`

	// HighWater 连接数高水位，超过后触发裁剪
	HighWater int `json:"high_water"`

	// GracePeriod 新连接免裁剪宽限期
	GracePeriod Duration `json:"grace_period"`
}

// DefaultConnMgrConfig 返回默认连接管理配置
func DefaultConnMgrConfig() ConnMgrConfig {
	return ConnMgrConfig{
		LowWater:    100,
		HighWater:   400,
		GracePeriod: Duration(time.Minute),
	}
}

// Validate 验证连接管理配置
func (c ConnMgrConfig) Validate() error {
	if c.LowWater <= 0 {
		return errors.New("low water must be positive")
	}
	if c.HighWater < c.LowWater {
		return errors.New("high water must not be less than low water")
	}
	if c.GracePeriod < 0 {
		return errors.New("grace period must not be negative")
	}
	return nil
}
