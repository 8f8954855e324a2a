package host

import (
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	hp "github.com/libp2p/go-libp2p/p2p/protocol/holepunch"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2ptls "github.com/libp2p/go-libp2p/p2p/security/tls"
	quic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-p2pnode/config"
)

// Params 构造主机所需的外部输入
type Params struct {
	PrivKey crypto.PrivKey

	// AddrsFactory 对外通告地址的变换（可选），通常为中继地址簿
	AddrsFactory func([]ma.Multiaddr) []ma.Multiaddr

	// HolePunchTracer 打洞追踪器（可选）
	HolePunchTracer hp.EventTracer
}

// BuildOptions 把配置翻译为 libp2p 选项
func BuildOptions(cfg *config.Config, p Params) ([]libp2p.Option, error) {
	if p.PrivKey == nil {
		return nil, ErrNoIdentity
	}

	opts := []libp2p.Option{
		libp2p.Identity(p.PrivKey),
		libp2p.NoListenAddrs,
		libp2p.ProtocolVersion(cfg.Transport.ProtocolVersion),
		libp2p.WithDialTimeout(cfg.Transport.DialTimeout.Duration()),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
	}
	if cfg.Transport.UserAgent != "" {
		opts = append(opts, libp2p.UserAgent(cfg.Transport.UserAgent))
	}

	if cfg.Transport.EnableTCP {
		opts = append(opts, libp2p.Transport(tcp.NewTCPTransport))
	}
	if cfg.Transport.EnableQUIC {
		opts = append(opts, libp2p.Transport(quic.NewTransport))
	}

	// 选项顺序即协商优先级
	noiseOpt := libp2p.Security(noise.ID, noise.New)
	tlsOpt := libp2p.Security(libp2ptls.ID, libp2ptls.New)
	sec := cfg.Security
	switch {
	case sec.Preferred == "tls" && sec.EnableTLS:
		opts = append(opts, tlsOpt)
		if sec.EnableNoise {
			opts = append(opts, noiseOpt)
		}
	default:
		if sec.EnableNoise {
			opts = append(opts, noiseOpt)
		}
		if sec.EnableTLS {
			opts = append(opts, tlsOpt)
		}
	}

	cm, err := connmgr.NewConnManager(
		cfg.ConnMgr.LowWater,
		cfg.ConnMgr.HighWater,
		connmgr.WithGracePeriod(cfg.ConnMgr.GracePeriod.Duration()),
	)
	if err != nil {
		return nil, fmt.Errorf("创建连接管理器失败: %w", err)
	}
	opts = append(opts, libp2p.ConnectionManager(cm))

	if cfg.Relay.EnableClient {
		opts = append(opts, libp2p.EnableRelay())
	} else {
		opts = append(opts, libp2p.DisableRelay())
	}

	if cfg.NAT.EnablePortMap {
		opts = append(opts, libp2p.NATPortMap())
	}
	if cfg.NAT.EnableNATService {
		opts = append(opts, libp2p.EnableNATService())
	}
	// 打洞依赖中继传输
	if cfg.NAT.EnableHolePunching && cfg.Relay.EnableClient {
		var hpOpts []hp.Option
		if p.HolePunchTracer != nil {
			hpOpts = append(hpOpts, hp.WithTracer(p.HolePunchTracer))
		}
		opts = append(opts, libp2p.EnableHolePunching(hpOpts...))
	}

	if p.AddrsFactory != nil {
		opts = append(opts, libp2p.AddrsFactory(p.AddrsFactory))
	}
	return opts, nil
}
