package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dep2p/go-p2pnode/config"
)

// 环境变量（优先级低于命令行参数，高于配置文件）
const (
	envMode      = "P2PNODE_MODE"
	envService   = "P2PNODE_SERVICE"
	envBootstrap = "P2PNODE_BOOTSTRAP_PEERS"
	envRelays    = "P2PNODE_STATIC_RELAYS"
)

var errHelp = errors.New("help requested")

// errModeRequired 命令行、环境变量与配置文件均未给出运行模式
var errModeRequired = errors.New("--mode is required (server/client)")

// cliFlags 命令行参数
type cliFlags struct {
	mode       string
	service    string
	port       int
	configFile string
	bootstrap  string
	relays     string
	logLevel   string
	metrics    string
	version    bool

	set map[string]bool
}

// parseFlags 解析命令行参数
func parseFlags(args []string) (*cliFlags, error) {
	return parseFlagsTo(args, os.Stderr)
}

func parseFlagsTo(args []string, out io.Writer) (*cliFlags, error) {
	f := &cliFlags{set: make(map[string]bool)}
	fs := flag.NewFlagSet("p2pnode", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&f.mode, "mode", "", "运行模式 (server/client)，必填")
	fs.StringVar(&f.service, "service", config.DefaultService, "服务名")
	fs.IntVar(&f.port, "port", 0, "本地控制接口端口（预留）")
	fs.StringVar(&f.configFile, "config", "", "JSON 配置文件路径")
	fs.StringVar(&f.bootstrap, "bootstrap", "", "引导节点多地址，逗号分隔")
	fs.StringVar(&f.relays, "relay", "", "静态中继多地址，逗号分隔")
	fs.StringVar(&f.logLevel, "log-level", "", "日志级别 (debug/info/warn/error)")
	fs.StringVar(&f.metrics, "metrics", "", "Prometheus 暴露地址，如 127.0.0.1:9090")
	fs.BoolVar(&f.version, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errHelp
		}
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("未知参数: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// buildConfig 组合配置
//
// 优先级（从高到低）：命令行参数、环境变量、配置文件、默认值。
// 运行模式没有默认值，三处都未给出时报错。
func (f *cliFlags) buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	modeGiven := false
	if f.configFile != "" {
		data, err := os.ReadFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		loaded, err := config.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
		modeGiven = fileSetsMode(data)
	}

	if os.Getenv(envMode) != "" {
		modeGiven = true
	}
	applyEnvOverrides(cfg)

	if f.set["mode"] {
		mode, err := config.ParseMode(f.mode)
		if err != nil {
			return nil, err
		}
		cfg.Node = cfg.Node.WithMode(mode)
		modeGiven = true
	}
	if !modeGiven {
		return nil, errModeRequired
	}
	if f.set["service"] {
		cfg.Node = cfg.Node.WithService(f.service)
	}
	if f.set["port"] {
		cfg.Node.ControlPort = f.port
	}
	if f.set["bootstrap"] {
		cfg.Discovery.Bootstrap = cfg.Discovery.Bootstrap.WithPeers(splitAndTrim(f.bootstrap, ",")...)
	}
	if f.set["relay"] {
		cfg.Relay.EnableClient = true
		cfg.Relay = cfg.Relay.WithStaticRelays(splitAndTrim(f.relays, ",")...)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = f.metrics
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileSetsMode 配置文件是否显式写了 node.mode
func fileSetsMode(data []byte) bool {
	var raw struct {
		Node struct {
			Mode *string `json:"mode"`
		} `json:"node"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}
	return raw.Node.Mode != nil && *raw.Node.Mode != ""
}

// applyEnvOverrides 应用环境变量覆盖配置
//
// 模式无效时保留原值，由 Validate 报告。
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv(envMode); v != "" {
		cfg.Node.Mode = config.Mode(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv(envService); v != "" {
		cfg.Node = cfg.Node.WithService(v)
	}
	if v := os.Getenv(envBootstrap); v != "" {
		cfg.Discovery.Bootstrap = cfg.Discovery.Bootstrap.WithPeers(splitAndTrim(v, ",")...)
	}
	if v := os.Getenv(envRelays); v != "" {
		cfg.Relay.EnableClient = true
		cfg.Relay = cfg.Relay.WithStaticRelays(splitAndTrim(v, ",")...)
	}
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
