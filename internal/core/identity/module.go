package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("identity")

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Preset 外部注入的身份（可选），未提供时自动生成
	Preset *Identity `name:"preset_identity" optional:"true"`
}

// ProvideIdentity 提供节点身份
func ProvideIdentity(input ModuleInput) (*Identity, error) {
	if input.Preset != nil {
		log.Info("使用注入的节点身份", "peerID", input.Preset.PeerID())
		return input.Preset, nil
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	log.Info("已生成节点身份", "peerID", id.PeerID())
	return id, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}
