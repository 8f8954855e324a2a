package config

import (
	"errors"
	"fmt"
)

// SecurityConfig 安全传输配置
type SecurityConfig struct {
	// EnableNoise 启用 Noise 握手
	EnableNoise bool `json:"enable_noise"`

	// EnableTLS 启用 TLS 1.3 握手
	EnableTLS bool `json:"enable_tls"`

	// Preferred 协商时优先的协议（noise/tls）
	Preferred string `json:"preferred"`
}

// DefaultSecurityConfig 返回默认安全配置
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableNoise: true,
		EnableTLS:   true,
		Preferred:   "noise",
	}
}

// Validate 验证安全配置
func (c SecurityConfig) Validate() error {
	if !c.EnableNoise && !c.EnableTLS {
		return errors.New("at least one security protocol must be enabled")
	}
	switch c.Preferred {
	case "noise":
		if !c.EnableNoise {
			return errors.New("preferred protocol noise is disabled")
		}
	case "tls":
		if !c.EnableTLS {
			return errors.New("preferred protocol tls is disabled")
		}
	default:
		return fmt.Errorf("unknown preferred security protocol %q", c.Preferred)
	}
	return nil
}
