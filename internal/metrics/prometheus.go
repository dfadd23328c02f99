package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "livechart"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry          *prometheus.Registry
	ticksFolded       prometheus.Counter
	messagesDropped   prometheus.Counter
	staleTicksDropped prometheus.Counter
	candlesClosed     prometheus.Counter
	barsRejected      prometheus.Counter
	feedDisconnects   prometheus.Counter
	feedReconnects    prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry:          registry,
		ticksFolded:       newCounter("ticks_folded_total", "Total number of ticks folded into candles."),
		messagesDropped:   newCounter("messages_dropped_total", "Total number of feed messages ignored or malformed."),
		staleTicksDropped: newCounter("stale_ticks_dropped_total", "Total number of ticks dropped for an interval older than the current candle."),
		candlesClosed:     newCounter("candles_closed_total", "Total number of finalized candles."),
		barsRejected:      newCounter("bars_rejected_total", "Total number of bars rejected by the renderer for going backwards."),
		feedDisconnects:   newCounter("feed_disconnects_total", "Total number of feed connection closes."),
		feedReconnects:    newCounter("feed_reconnects_total", "Total number of feed reconnect attempts."),
	}
	registry.MustRegister(
		p.ticksFolded,
		p.messagesDropped,
		p.staleTicksDropped,
		p.candlesClosed,
		p.barsRejected,
		p.feedDisconnects,
		p.feedReconnects,
	)
	p.Metrics = &Metrics{
		TicksFolded:       promCounter{p.ticksFolded},
		MessagesDropped:   promCounter{p.messagesDropped},
		StaleTicksDropped: promCounter{p.staleTicksDropped},
		CandlesClosed:     promCounter{p.candlesClosed},
		BarsRejected:      promCounter{p.barsRejected},
		FeedDisconnects:   promCounter{p.feedDisconnects},
		FeedReconnects:    promCounter{p.feedReconnects},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
