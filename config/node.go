package config

import (
	"errors"
	"fmt"
	"strings"
)

// Mode 节点运行模式
type Mode string

const (
	// ModeServer 服务端：引导成功后在 DHT 上注册服务
	ModeServer Mode = "server"

	// ModeClient 客户端：周期性查询服务提供者并拨号
	ModeClient Mode = "client"
)

// DefaultService 默认服务名
const DefaultService = "myapi:v1"

// ErrInvalidMode 运行模式无效
var ErrInvalidMode = errors.New("mode must be \"server\" or \"client\"")

// ParseMode 解析运行模式字符串（不区分大小写）
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeServer, ModeClient:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// NodeConfig 节点基础配置
type NodeConfig struct {
	// Mode 运行模式（server/client）
	Mode Mode `json:"mode"`

	// Service 服务名，两端相同即可会合
	Service string `json:"service"`

	// ControlPort 预留的本地控制接口端口（当前未使用）
	ControlPort int `json:"control_port,omitempty"`
}

// DefaultNodeConfig 返回默认节点配置
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Mode:    ModeClient,
		Service: DefaultService,
	}
}

// Validate 验证节点配置
func (c NodeConfig) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if strings.TrimSpace(c.Service) == "" {
		return errors.New("service name must not be empty")
	}
	if c.ControlPort < 0 || c.ControlPort > 65535 {
		return fmt.Errorf("control port out of range: %d", c.ControlPort)
	}
	return nil
}

// IsServer 是否服务端模式
func (c NodeConfig) IsServer() bool { return c.Mode == ModeServer }

// IsClient 是否客户端模式
func (c NodeConfig) IsClient() bool { return c.Mode == ModeClient }

// WithMode 设置运行模式
func (c NodeConfig) WithMode(m Mode) NodeConfig {
	c.Mode = m
	return c
}

// WithService 设置服务名
func (c NodeConfig) WithService(name string) NodeConfig {
	c.Service = name
	return c
}
