package dht

import (
	"context"

	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	kaddht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	libp2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/metrics"
	"github.com/dep2p/go-p2pnode/internal/core/protocol"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("dht")

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config  *config.Config
	Host    host.Host
	Metrics *metrics.Metrics `optional:"true"`
	LC      fx.Lifecycle
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Service *Service
	Events  *protocol.Source `name:"dht_events"`
}

// ProvideService 提供 DHT 服务
func ProvideService(input ModuleInput) (ModuleOutput, error) {
	cfg := input.Config.Discovery
	src := protocol.NewSource(protocol.SourceDHT, cfg.DHT.EventBuffer)

	svc, err := New(input.Host, src, Options{
		QueryTimeout:  cfg.DHT.QueryTimeout.Duration(),
		ProviderLimit: cfg.DHT.ProviderLimit,
		DialTimeout:   cfg.Bootstrap.DialTimeout.Duration(),
		Records:       RecordsSupported(cfg.DHT.ProtocolPrefix),
	}, KadOptions(cfg.DHT)...)
	if err != nil {
		return ModuleOutput{}, err
	}
	if input.Metrics != nil {
		svc.WithObserver(input.Metrics)
	}

	input.LC.Append(fx.Hook{
		OnStop: func(context.Context) error { return svc.Close() },
	})
	return ModuleOutput{Service: svc, Events: src}, nil
}

// RecordsSupported 协议前缀是否允许注册 service 验证器
//
// 公共 IPFS DHT 只接受 /pk 与 /ipns 两个命名空间。
func RecordsSupported(prefix string) bool {
	return prefix != aminoPrefix
}

// aminoPrefix 公共 IPFS DHT 的协议前缀
const aminoPrefix = "/ipfs"

// KadOptions 由配置生成 kad-dht 选项
func KadOptions(cfg config.DHTConfig) []kaddht.Option {
	mode := kaddht.ModeAuto
	if cfg.ServerMode {
		mode = kaddht.ModeServer
	}
	opts := []kaddht.Option{
		kaddht.Mode(mode),
		kaddht.Datastore(dssync.MutexWrap(ds.NewMapDatastore())),
		kaddht.ProtocolPrefix(libp2pprotocol.ID(cfg.ProtocolPrefix)),
		kaddht.BucketSize(cfg.BucketSize),
		kaddht.Concurrency(cfg.Concurrency),
	}
	if RecordsSupported(cfg.ProtocolPrefix) {
		opts = append(opts, kaddht.NamespacedValidator(RecordNamespace, ServiceValidator{}))
	}
	return opts
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("dht",
		fx.Provide(ProvideService),
	)
}
