package p2pnode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/dep2p/go-p2pnode/config"
	"github.com/dep2p/go-p2pnode/internal/core/identity"
)

// Option 用户配置选项函数
type Option func(*options) error

// MessageHandler 收到对端消息时的回调
//
// 在事件循环中调用，不应阻塞。
type MessageHandler func(from peer.ID, data []byte)

// options 内部选项结构
type options struct {
	config    *config.Config
	identity  *identity.Identity
	input     io.Reader
	output    io.Writer
	onMessage MessageHandler
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{
		config: config.NewConfig(),
		input:  os.Stdin,
		output: os.Stdout,
	}
}

// WithConfig 以完整配置替换默认配置
//
// 须放在其他修改配置的选项之前。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = cfg.Clone()
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithMode 设置运行模式
func WithMode(m config.Mode) Option {
	return func(o *options) error {
		mode, err := config.ParseMode(string(m))
		if err != nil {
			return err
		}
		o.config.Node = o.config.Node.WithMode(mode)
		return nil
	}
}

// WithService 设置服务名
func WithService(name string) Option {
	return func(o *options) error {
		o.config.Node = o.config.Node.WithService(name)
		return nil
	}
}

// WithListenPort 在所有接口的指定端口上监听启用的传输
//
// 端口 0 表示临时端口。
func WithListenPort(port int) Option {
	return func(o *options) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("listen port out of range: %d", port)
		}
		t := o.config.Transport
		var addrs []string
		if t.EnableTCP {
			addrs = append(addrs, fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port))
		}
		if t.EnableQUIC {
			addrs = append(addrs, fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", port))
		}
		o.config.Transport = t.WithListenAddrs(addrs...)
		return nil
	}
}

// WithListenAddrs 设置监听地址
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		o.config.Transport = o.config.Transport.WithListenAddrs(addrs...)
		return nil
	}
}

// WithBootstrapPeers 替换引导节点；不传参数表示不使用引导节点
func WithBootstrapPeers(addrs ...string) Option {
	return func(o *options) error {
		o.config.Discovery.Bootstrap = o.config.Discovery.Bootstrap.WithPeers(addrs...)
		return nil
	}
}

// WithStaticRelays 设置静态中继并启用中继客户端
func WithStaticRelays(addrs ...string) Option {
	return func(o *options) error {
		o.config.Relay.EnableClient = true
		o.config.Relay = o.config.Relay.WithStaticRelays(addrs...)
		return nil
	}
}

// WithIdentity 使用指定身份
func WithIdentity(id *identity.Identity) Option {
	return func(o *options) error {
		if id == nil {
			return errors.New("identity is nil")
		}
		o.identity = id
		return nil
	}
}

// WithLogLevel 设置本项目日志级别
func WithLogLevel(level string) Option {
	return func(o *options) error {
		o.config.Log.Level = level
		return nil
	}
}

// WithCommandInput 设置命令输入并启用命令接口；nil 表示关闭命令接口
func WithCommandInput(r io.Reader) Option {
	return func(o *options) error {
		o.input = r
		o.config.Command.Enabled = r != nil
		return nil
	}
}

// WithOutput 设置 list 等命令的输出
func WithOutput(w io.Writer) Option {
	return func(o *options) error {
		if w == nil {
			w = io.Discard
		}
		o.output = w
		return nil
	}
}

// WithMessageHandler 设置消息回调；未设置时消息写入日志
func WithMessageHandler(h MessageHandler) Option {
	return func(o *options) error {
		o.onMessage = h
		return nil
	}
}
