package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveBootstrap(nil)
	m.ObserveBootstrap(errors.New("no peers"))
	m.ObserveBootstrap(nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bootstrap.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bootstrap.WithLabelValues("error")))

	m.ObserveDiscovery("found", 3)
	m.ObserveDiscovery("empty", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.providers))

	m.ConnOpened(true)
	m.ConnOpened(false)
	m.ConnClosed(true)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connections.WithLabelValues("relayed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("direct")))

	m.SetChannels(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.channels))

	m.ObservePing(30 * time.Millisecond)
	m.ObserveQuery("bootstrap", time.Second)
	n, err := testutil.GatherAndCount(m.Registry(), "p2pnode_ping_rtt_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBootstrap(nil)
		m.ObserveRegistration(nil)
		m.ObserveDiscovery("found", 1)
		m.ObserveDial(nil)
		m.ConnOpened(false)
		m.ConnClosed(false)
		m.ObserveHolePunch("succeeded")
		m.ObserveRelay("accepted")
		m.ObservePing(time.Millisecond)
		m.SetChannels(1)
		m.ObserveMessage("in")
		m.ObserveQuery("get_providers", time.Second)
	})
	assert.Nil(t, m.Registry())
}

func TestServer_Exposition(t *testing.T) {
	m := New()
	m.ObserveRegistration(nil)

	srv, err := m.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `p2pnode_registration_attempts_total{result="ok"} 1`)
}
