package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var (
	output   io.Writer = os.Stderr
	outputMu sync.RWMutex

	currentFormat atomic.Int32
)

// sharedWriter 每次写入时读取当前输出目标
type sharedWriter struct{}

func (sharedWriter) Write(p []byte) (int, error) {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()
	return w.Write(p)
}

// subsystemHandler 同时持有 text 与 json 两个内层 handler，按当前格式选择
//
// level 由同一子系统派生出的所有 handler 共享。
type subsystemHandler struct {
	level *slog.LevelVar
	text  slog.Handler
	json  slog.Handler
}

func newSubsystemHandler(subsystem string, level slog.Level) *subsystemHandler {
	lv := new(slog.LevelVar)
	lv.Set(level)

	opts := &slog.HandlerOptions{
		Level:       lv,
		AddSource:   ConfigFromEnv().AddSource,
		ReplaceAttr: replaceAttr,
	}
	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	return &subsystemHandler{
		level: lv,
		text:  slog.NewTextHandler(sharedWriter{}, opts).WithAttrs(attrs),
		json:  slog.NewJSONHandler(sharedWriter{}, opts).WithAttrs(attrs),
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Key = "ts"
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(levelName(lvl))
		}
	}
	return a
}

func (h *subsystemHandler) inner() slog.Handler {
	if LogFormat(currentFormat.Load()) == FormatJSON {
		return h.json
	}
	return h.text
}

func (h *subsystemHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *subsystemHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner().Handle(ctx, r)
}

func (h *subsystemHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &subsystemHandler{level: h.level, text: h.text.WithAttrs(attrs), json: h.json.WithAttrs(attrs)}
}

func (h *subsystemHandler) WithGroup(name string) slog.Handler {
	return &subsystemHandler{level: h.level, text: h.text.WithGroup(name), json: h.json.WithGroup(name)}
}

func levelName(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
