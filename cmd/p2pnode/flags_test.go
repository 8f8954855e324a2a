package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-p2pnode/config"
)

const testPeer = "/ip4/127.0.0.1/tcp/4001/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"

func mustFlags(t *testing.T, args ...string) *cliFlags {
	t.Helper()
	f, err := parseFlagsTo(args, io.Discard)
	require.NoError(t, err)
	return f
}

func TestBuildConfig_Defaults(t *testing.T) {
	cfg, err := mustFlags(t, "--mode", "client").buildConfig()
	require.NoError(t, err)
	assert.Equal(t, config.ModeClient, cfg.Node.Mode)
	assert.Equal(t, config.DefaultService, cfg.Node.Service)
	assert.Equal(t, config.DefaultBootstrapPeers, cfg.Discovery.Bootstrap.Peers)
}

func TestBuildConfig_Flags(t *testing.T) {
	f := mustFlags(t,
		"--mode", "SERVER",
		"--service", "chat:v2",
		"--port", "7000",
		"--bootstrap", testPeer+", ",
		"--relay", testPeer,
		"--log-level", "debug",
		"--metrics", "127.0.0.1:9090",
	)
	cfg, err := f.buildConfig()
	require.NoError(t, err)

	assert.Equal(t, config.ModeServer, cfg.Node.Mode)
	assert.Equal(t, "chat:v2", cfg.Node.Service)
	assert.Equal(t, 7000, cfg.Node.ControlPort)
	assert.Equal(t, []string{testPeer}, cfg.Discovery.Bootstrap.Peers)
	assert.True(t, cfg.Relay.EnableClient)
	assert.Equal(t, []string{testPeer}, cfg.Relay.StaticRelays)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.ListenAddr)
}

func TestBuildConfig_InvalidMode(t *testing.T) {
	_, err := mustFlags(t, "--mode", "both").buildConfig()
	assert.ErrorIs(t, err, config.ErrInvalidMode)
}

func TestBuildConfig_MissingMode(t *testing.T) {
	t.Setenv(envMode, "")

	_, err := mustFlags(t).buildConfig()
	assert.ErrorIs(t, err, errModeRequired)

	_, err = mustFlags(t, "--mode", "").buildConfig()
	assert.ErrorIs(t, err, config.ErrInvalidMode)

	// 配置文件未写模式时同样报错
	path := filepath.Join(t.TempDir(), "node.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"node":{"service":"file:v1"}}`), 0o644))
	_, err = mustFlags(t, "--config", path).buildConfig()
	assert.ErrorIs(t, err, errModeRequired)

	// 环境变量给出模式即可
	t.Setenv(envMode, "server")
	cfg, err := mustFlags(t).buildConfig()
	require.NoError(t, err)
	assert.Equal(t, config.ModeServer, cfg.Node.Mode)
}

func TestBuildConfig_EmptyBootstrap(t *testing.T) {
	cfg, err := mustFlags(t, "--mode", "client", "--bootstrap", "").buildConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.Discovery.Bootstrap.Peers)
}

func TestBuildConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"node":{"mode":"server","service":"file:v1"}}`), 0o644))

	t.Setenv(envService, "env:v1")

	cfg, err := mustFlags(t, "--config", path).buildConfig()
	require.NoError(t, err)
	// 配置文件中的模式保留，服务名被环境变量覆盖
	assert.Equal(t, config.ModeServer, cfg.Node.Mode)
	assert.Equal(t, "env:v1", cfg.Node.Service)

	cfg, err = mustFlags(t, "--config", path, "--service", "flag:v1").buildConfig()
	require.NoError(t, err)
	assert.Equal(t, "flag:v1", cfg.Node.Service)
}

func TestParseFlags_Errors(t *testing.T) {
	_, err := parseFlagsTo([]string{"--nope"}, io.Discard)
	assert.Error(t, err)

	_, err = parseFlagsTo([]string{"extra"}, io.Discard)
	assert.Error(t, err)

	_, err = parseFlagsTo([]string{"-h"}, io.Discard)
	assert.ErrorIs(t, err, errHelp)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a ,, b ", ","))
	assert.Empty(t, splitAndTrim("", ","))
}
