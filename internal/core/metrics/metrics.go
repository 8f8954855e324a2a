// Package metrics 提供节点的 Prometheus 指标
//
// 所有指标注册在私有 Registry 上，不污染全局默认注册表。
// *Metrics 的方法对 nil 接收者安全，未启用指标时传 nil 即可。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "p2pnode"

// Metrics 节点指标集合
type Metrics struct {
	registry *prometheus.Registry

	bootstrap     *prometheus.CounterVec
	registration  *prometheus.CounterVec
	discovery     *prometheus.CounterVec
	providers     prometheus.Counter
	dials         *prometheus.CounterVec
	connections   *prometheus.GaugeVec
	holePunch     *prometheus.CounterVec
	relay         *prometheus.CounterVec
	pingRTT       prometheus.Histogram
	channels      prometheus.Gauge
	messages      *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// New 创建并注册全部指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		bootstrap: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bootstrap_total",
			Help: "DHT bootstrap query results.",
		}, []string{"result"}),
		registration: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "registration_attempts_total",
			Help: "Service registration attempts by result.",
		}, []string{"result"}),
		discovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "discovery_queries_total",
			Help: "Provider lookups by outcome.",
		}, []string{"outcome"}),
		providers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "providers_found_total",
			Help: "Providers returned by lookups, self excluded.",
		}),
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dials_total",
			Help: "Outbound dials to discovered peers.",
		}, []string{"result"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections",
			Help: "Open connections by path.",
		}, []string{"path"}),
		holePunch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "holepunch_total",
			Help: "Direct connection upgrade outcomes.",
		}, []string{"outcome"}),
		relay: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "relay_reservations_total",
			Help: "Relay reservation events.",
		}, []string{"kind"}),
		pingRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ping_rtt_seconds",
			Help:    "Liveness probe round trip time.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "peer_channels",
			Help: "Open outbound peer channels.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_total",
			Help: "Messages by direction.",
		}, []string{"direction"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "dht_query_duration_seconds",
			Help:    "Outbound DHT query duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.bootstrap, m.registration, m.discovery, m.providers, m.dials,
		m.connections, m.holePunch, m.relay, m.pingRTT, m.channels,
		m.messages, m.queryDuration,
	)
	return m
}

// Registry 返回私有注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveBootstrap 记录一次引导结果
func (m *Metrics) ObserveBootstrap(err error) {
	if m == nil {
		return
	}
	m.bootstrap.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveRegistration 记录一次注册尝试
func (m *Metrics) ObserveRegistration(err error) {
	if m == nil {
		return
	}
	m.registration.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveDiscovery 记录一次提供者查询结果（found/empty/error）
func (m *Metrics) ObserveDiscovery(outcome string, providers int) {
	if m == nil {
		return
	}
	m.discovery.WithLabelValues(outcome).Inc()
	m.providers.Add(float64(providers))
}

// ObserveDial 记录一次拨号
func (m *Metrics) ObserveDial(err error) {
	if m == nil {
		return
	}
	m.dials.WithLabelValues(resultLabel(err)).Inc()
}

func pathLabel(relayed bool) string {
	if relayed {
		return "relayed"
	}
	return "direct"
}

// ConnOpened 连接建立
func (m *Metrics) ConnOpened(relayed bool) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(pathLabel(relayed)).Inc()
}

// ConnClosed 连接关闭
func (m *Metrics) ConnClosed(relayed bool) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(pathLabel(relayed)).Dec()
}

// ObserveHolePunch 记录打洞事件
func (m *Metrics) ObserveHolePunch(outcome string) {
	if m == nil {
		return
	}
	m.holePunch.WithLabelValues(outcome).Inc()
}

// ObserveRelay 记录中继预留事件
func (m *Metrics) ObserveRelay(kind string) {
	if m == nil {
		return
	}
	m.relay.WithLabelValues(kind).Inc()
}

// ObservePing 记录一次 ping 往返时间
func (m *Metrics) ObservePing(rtt time.Duration) {
	if m == nil {
		return
	}
	m.pingRTT.Observe(rtt.Seconds())
}

// SetChannels 设置当前出站通道数
func (m *Metrics) SetChannels(n int) {
	if m == nil {
		return
	}
	m.channels.Set(float64(n))
}

// ObserveMessage 记录一条消息（in/out）
func (m *Metrics) ObserveMessage(direction string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(direction).Inc()
}

// ObserveQuery 记录一次 DHT 查询耗时
func (m *Metrics) ObserveQuery(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(kind).Observe(d.Seconds())
}
