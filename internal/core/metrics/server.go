package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server Prometheus 暴露端点
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen 在 addr 上启动 /metrics 端点
func (m *Metrics) Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("指标服务退出", "err", err)
		}
	}()
	return s, nil
}

// Addr 实际监听地址
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close 关闭端点
func (s *Server) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
