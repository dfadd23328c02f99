package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.TicksFolded.Inc()
	prom.Metrics.TicksFolded.Inc()
	prom.Metrics.MessagesDropped.Inc()
	prom.Metrics.StaleTicksDropped.Inc()
	prom.Metrics.CandlesClosed.Inc()
	prom.Metrics.BarsRejected.Inc()
	prom.Metrics.FeedDisconnects.Inc()
	prom.Metrics.FeedReconnects.Inc()

	assertCounter(t, prom.ticksFolded, 2)
	assertCounter(t, prom.messagesDropped, 1)
	assertCounter(t, prom.staleTicksDropped, 1)
	assertCounter(t, prom.candlesClosed, 1)
	assertCounter(t, prom.barsRejected, 1)
	assertCounter(t, prom.feedDisconnects, 1)
	assertCounter(t, prom.feedReconnects, 1)
}

func TestPrometheusHandlerExposesNamespace(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.CandlesClosed.Inc()
	srv := httptest.NewServer(prom.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "livechart_candles_closed_total 1") {
		t.Fatalf("expected candles_closed counter in output, got:\n%s", body)
	}
}

func TestNoopCounters(t *testing.T) {
	m := NewNoop()
	m.TicksFolded.Inc()
	m.FeedReconnects.Inc()
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
