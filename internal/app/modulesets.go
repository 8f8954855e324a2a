// Package app 组装节点的 fx 模块
//
// modulesets.go 集中维护模块归属，是 Bootstrap 组装的唯一模块来源。
package app

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/internal/core/holepunch"
	"github.com/dep2p/go-p2pnode/internal/core/host"
	"github.com/dep2p/go-p2pnode/internal/core/identify"
	"github.com/dep2p/go-p2pnode/internal/core/identity"
	"github.com/dep2p/go-p2pnode/internal/core/liveness"
	"github.com/dep2p/go-p2pnode/internal/core/messaging"
	"github.com/dep2p/go-p2pnode/internal/core/metrics"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/core/relay"
	"github.com/dep2p/go-p2pnode/internal/core/swarm"
	"github.com/dep2p/go-p2pnode/internal/discovery/dht"
	"github.com/dep2p/go-p2pnode/internal/engine"
)

// FoundationModules 基础层：身份与指标
func FoundationModules() fx.Option {
	return fx.Options(
		identity.Module(),
		metrics.Module(),
	)
}

// TransportModules 传输层：中继地址簿、打洞追踪、主机与 swarm
//
// 地址簿与追踪器在 host 构造前提供，host 通过它们接入中继地址与打洞事件。
func TransportModules() fx.Option {
	return fx.Options(
		holepunch.Module(),
		relay.Module(),
		host.Module(),
		swarm.Module(),
	)
}

// ServiceModules 协议处理器：liveness、identify、DHT、消息
func ServiceModules() fx.Option {
	return fx.Options(
		liveness.Module(),
		identify.Module(),
		dht.Module(),
		messaging.Module(),
	)
}

// EngineModules 组合行为与事件循环
func EngineModules() fx.Option {
	return fx.Options(
		protocol.Module(),
		engine.Module(),
	)
}
