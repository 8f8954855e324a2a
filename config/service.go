package config

import (
	"errors"
	"time"
)

// ServiceConfig 服务注册与发现配置
type ServiceConfig struct {
	// LookupInterval 客户端查询提供者的周期
	LookupInterval Duration `json:"lookup_interval"`

	// RegisterMaxAttempts 注册失败后的最大尝试次数（含首次）
	RegisterMaxAttempts int `json:"register_max_attempts"`

	// RegisterBackoffInitial 注册重试的首次退避
	RegisterBackoffInitial Duration `json:"register_backoff_initial"`

	// RegisterBackoffMax 注册重试的退避上限
	RegisterBackoffMax Duration `json:"register_backoff_max"`

	// ReprovideInterval 提供者记录的重新发布周期，0 表示不重新发布
	ReprovideInterval Duration `json:"reprovide_interval"`

	// PublishRecord 注册成功后是否额外发布服务记录
	PublishRecord bool `json:"publish_record"`
}

// DefaultServiceConfig 返回默认服务配置
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		LookupInterval:         Duration(10 * time.Second),
		RegisterMaxAttempts:    5,
		RegisterBackoffInitial: Duration(2 * time.Second),
		RegisterBackoffMax:     Duration(time.Minute),
		ReprovideInterval:      Duration(12 * time.Hour),
		PublishRecord:          true,
	}
}

// Validate 验证服务配置
func (c ServiceConfig) Validate() error {
	if c.LookupInterval <= 0 {
		return errors.New("lookup interval must be positive")
	}
	if c.RegisterMaxAttempts <= 0 {
		return errors.New("register max attempts must be positive")
	}
	if c.RegisterBackoffInitial <= 0 {
		return errors.New("register backoff initial must be positive")
	}
	if c.RegisterBackoffMax < c.RegisterBackoffInitial {
		return errors.New("register backoff max must not be less than initial")
	}
	if c.ReprovideInterval < 0 {
		return errors.New("reprovide interval must not be negative")
	}
	return nil
}
