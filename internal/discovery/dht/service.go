package dht

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kaddht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-p2pnode/internal/core/protocol"
)

// 查询类型，用于日志与指标
const (
	QueryBootstrap      = "bootstrap"
	QueryStartProviding = "start_providing"
	QueryGetProviders   = "get_providers"
	QueryPutRecord      = "put_record"
	QueryGetRecord      = "get_record"
)

// 默认参数
const (
	DefaultQueryTimeout  = 5 * time.Minute
	DefaultProviderLimit = 20
	DefaultDialTimeout   = 15 * time.Second
)

// QueryObserver 查询耗时回调，metrics.Metrics 满足该接口
type QueryObserver interface {
	ObserveQuery(kind string, d time.Duration)
}

// Options 服务参数
type Options struct {
	// QueryTimeout 单个查询的最大时长
	QueryTimeout time.Duration

	// ProviderLimit 单次查询收集的提供者上限
	ProviderLimit int

	// DialTimeout 引导时连接单个种子的超时
	DialTimeout time.Duration

	// Records 是否启用 service 键值记录
	Records bool
}

// Service DHT 服务
type Service struct {
	host     host.Host
	kad      *kaddht.IpfsDHT
	events   *protocol.Source
	opts     Options
	observer QueryObserver

	mu    sync.Mutex
	seeds map[peer.ID]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建 DHT 服务
//
// kadOpts 直接传给 kad-dht。
func New(h host.Host, events *protocol.Source, opts Options, kadOpts ...kaddht.Option) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())
	kad, err := kaddht.New(ctx, h, kadOpts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("创建 kad-dht 失败: %w", err)
	}
	if opts.ProviderLimit <= 0 {
		opts.ProviderLimit = DefaultProviderLimit
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	return &Service{
		host:   h,
		kad:    kad,
		events: events,
		opts:   opts,
		seeds:  make(map[peer.ID]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// WithObserver 设置查询耗时回调
func (s *Service) WithObserver(o QueryObserver) *Service {
	s.observer = o
	return s
}

// RecordsEnabled 是否可以读写 service 键值记录
func (s *Service) RecordsEnabled() bool { return s.opts.Records }

// RoutingTableSize 路由表中的节点数
func (s *Service) RoutingTableSize() int { return s.kad.RoutingTable().Size() }

// DHT 底层 kad-dht 实例
func (s *Service) DHT() *kaddht.IpfsDHT { return s.kad }

// Close 取消进行中的查询并关闭 kad-dht
func (s *Service) Close() error {
	s.cancel()
	s.wg.Wait()
	return s.kad.Close()
}

// AddAddress 记录节点地址并尝试加入路由表
func (s *Service) AddAddress(p peer.ID, addr ma.Multiaddr) {
	if p == s.host.ID() {
		return
	}
	s.host.Peerstore().AddAddr(p, addr, peerstore.AddressTTL)
	if _, err := s.kad.RoutingTable().TryAddPeer(p, false, true); err != nil {
		log.Debug("加入路由表失败", "peer", p, "err", err)
	}
}

// AddSeed 记录种子地址，Bootstrap 时会主动连接
func (s *Service) AddSeed(seed Seed) {
	s.AddAddress(seed.ID, seed.Addr)
	s.mu.Lock()
	s.seeds[seed.ID] = struct{}{}
	s.mu.Unlock()
}

// Bootstrap 连接种子并执行自查询
//
// 至少一个节点应答时成功。
func (s *Service) Bootstrap() string {
	return s.run(QueryBootstrap, "", func(ctx context.Context) protocol.QueryResult {
		connected := s.connectSeeds(ctx)
		peers, err := s.kad.GetClosestPeers(ctx, string(s.host.ID()))
		n := len(peers)
		if n == 0 && connected == 0 {
			if err == nil {
				return &protocol.BootstrapResult{Err: ErrNoPeers}
			}
			return &protocol.BootstrapResult{Err: s.wrapErr(ctx, fmt.Errorf("%w: %w", ErrNoPeers, err))}
		}
		if err != nil {
			log.Debug("自查询未完成", "err", err, "connected", connected)
		}
		if n < connected {
			n = connected
		}
		return &protocol.BootstrapResult{Peers: n}
	})
}

func (s *Service) connectSeeds(ctx context.Context) int {
	s.mu.Lock()
	ids := make([]peer.ID, 0, len(s.seeds))
	for id := range s.seeds {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var (
		mu        sync.Mutex
		connected int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			if s.host.Network().Connectedness(id) == network.Connected {
				mu.Lock()
				connected++
				mu.Unlock()
				return nil
			}
			dctx, cancel := context.WithTimeout(gctx, s.opts.DialTimeout)
			defer cancel()
			if err := s.host.Connect(dctx, peer.AddrInfo{ID: id}); err != nil {
				log.Debug("连接种子失败", "peer", id, "err", err)
				return nil
			}
			mu.Lock()
			connected++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return connected
}

// StartProviding 宣告本节点提供该服务
func (s *Service) StartProviding(key ServiceKey) string {
	return s.run(QueryStartProviding, key.String(), func(ctx context.Context) protocol.QueryResult {
		err := s.kad.Provide(ctx, key.CID(), true)
		return &protocol.StartProvidingResult{Key: key.String(), Err: s.wrapErr(ctx, err)}
	})
}

// GetProviders 查询服务提供者
//
// 结果排除本节点；提供者地址写入 peerstore 以便随后拨号。
func (s *Service) GetProviders(key ServiceKey) string {
	return s.run(QueryGetProviders, key.String(), func(ctx context.Context) protocol.QueryResult {
		var found []peer.ID
		for ai := range s.kad.FindProvidersAsync(ctx, key.CID(), s.opts.ProviderLimit) {
			if ai.ID == s.host.ID() || ai.ID == "" {
				continue
			}
			if len(ai.Addrs) > 0 {
				s.host.Peerstore().AddAddrs(ai.ID, ai.Addrs, peerstore.AddressTTL)
			}
			found = append(found, ai.ID)
		}
		res := &protocol.GetProvidersResult{Key: key.String()}
		switch {
		case len(found) > 0:
			res.Ok = &protocol.FoundProviders{Providers: found}
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			res.Err = ErrQueryTimeout
		default:
			res.Ok = &protocol.FinishedWithNoAdditionalRecord{}
		}
		return res
	})
}

// PutRecord 发布服务记录
func (s *Service) PutRecord(rec ServiceRecord) string {
	key := NewServiceKey(rec.Service)
	return s.run(QueryPutRecord, key.RecordKey(), func(ctx context.Context) protocol.QueryResult {
		res := &protocol.PutRecordResult{Key: key.RecordKey()}
		if !s.opts.Records {
			res.Err = ErrRecordsDisabled
			return res
		}
		data, err := rec.Encode()
		if err != nil {
			res.Err = err
			return res
		}
		res.Err = s.wrapErr(ctx, s.kad.PutValue(ctx, key.RecordKey(), data))
		return res
	})
}

// GetRecord 读取服务记录
func (s *Service) GetRecord(key ServiceKey) string {
	return s.run(QueryGetRecord, key.RecordKey(), func(ctx context.Context) protocol.QueryResult {
		res := &protocol.GetRecordResult{Key: key.RecordKey()}
		if !s.opts.Records {
			res.Err = ErrRecordsDisabled
			return res
		}
		val, err := s.kad.GetValue(ctx, key.RecordKey())
		res.Value, res.Err = val, s.wrapErr(ctx, err)
		return res
	})
}

// run 在后台执行查询，完成后投递 KadEvent
func (s *Service) run(kind, key string, fn func(ctx context.Context) protocol.QueryResult) string {
	id := uuid.NewString()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.QueryTimeout)
		defer cancel()

		start := time.Now()
		log.Debug("开始查询", "kind", kind, "key", key, "id", id)
		result := fn(ctx)
		if s.observer != nil {
			s.observer.ObserveQuery(kind, time.Since(start))
		}
		s.events.Emit(s.ctx, &protocol.KadEvent{QueryID: id, Result: result})
	}()
	return id
}

// wrapErr 把超过查询时长的错误标记为 ErrQueryTimeout
//
// kad-dht 的 Provide 在内部截止时间（早于查询时长）到达时也返回 DeadlineExceeded。
func (s *Service) wrapErr(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrQueryTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrQueryTimeout, err)
	}
	return err
}
