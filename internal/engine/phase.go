package engine

import "fmt"

// Phase 节点所处阶段，只用于日志与观察
type Phase int32

const (
	// PhaseIdle 尚未绑定监听地址
	PhaseIdle Phase = iota
	// PhaseListening 已有监听地址，种子已加入路由表
	PhaseListening
	// PhaseBootstrapping 引导查询进行中
	PhaseBootstrapping
	// PhaseBootstrapped 引导成功
	PhaseBootstrapped
	// PhaseRegistering 服务端宣告进行中
	PhaseRegistering
	// PhaseRegistered 服务端宣告成功
	PhaseRegistered
	// PhaseDiscovering 客户端查询提供者
	PhaseDiscovering
	// PhaseDiscovered 客户端已选定提供者
	PhaseDiscovered
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseBootstrapping:
		return "bootstrapping"
	case PhaseBootstrapped:
		return "bootstrapped"
	case PhaseRegistering:
		return "registering"
	case PhaseRegistered:
		return "registered"
	case PhaseDiscovering:
		return "discovering"
	case PhaseDiscovered:
		return "discovered"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}
