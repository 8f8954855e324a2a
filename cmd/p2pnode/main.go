// Package main 提供 p2pnode 命令行入口
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dep2p/go-p2pnode"
	"github.com/dep2p/go-p2pnode/internal/util/logger"
)

var log = logger.Logger("cmd")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.version {
		fmt.Println(p2pnode.VersionInfo())
		return nil
	}

	cfg, err := f.buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("启动 p2pnode", "version", p2pnode.Version, "commit", p2pnode.GitCommit, "mode", cfg.Node.Mode, "service", cfg.Node.Service)
	node, err := p2pnode.New(ctx, p2pnode.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			log.Warn("关闭节点出错", "err", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "节点 ID: %s\n", node.ID())
	for _, a := range node.Addrs() {
		fmt.Fprintf(os.Stderr, "  %s\n", a)
	}
	fmt.Fprintln(os.Stderr, "命令: send <peer> <msg...> | list，按 Ctrl+C 退出")

	return node.Run(ctx)
}
