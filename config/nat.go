package config

import (
	"errors"
	"time"
)

// NATConfig NAT 穿透配置
type NATConfig struct {
	// EnablePortMap 通过 UPnP/NAT-PMP 映射端口
	EnablePortMap bool `json:"enable_port_map"`

	// EnableNATService 为其他节点提供 AutoNAT 回拨检测
	EnableNATService bool `json:"enable_nat_service"`

	// EnableHolePunching 启用直连升级（DCUtR 打洞）
	EnableHolePunching bool `json:"enable_hole_punching"`

	// HolePunchTimeout 单次打洞的观测超时，仅用于日志/指标
	HolePunchTimeout Duration `json:"hole_punch_timeout"`
}

// DefaultNATConfig 返回默认 NAT 配置
func DefaultNATConfig() NATConfig {
	return NATConfig{
		EnablePortMap:      true,
		EnableNATService:   true,
		EnableHolePunching: true,
		HolePunchTimeout:   Duration(time.Minute),
	}
}

// Validate 验证 NAT 配置
func (c NATConfig) Validate() error {
	if c.EnableHolePunching && c.HolePunchTimeout <= 0 {
		return errors.New("hole punch timeout must be positive")
	}
	return nil
}
