package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	TicksFolded       Counter
	MessagesDropped   Counter
	StaleTicksDropped Counter
	CandlesClosed     Counter
	BarsRejected      Counter
	FeedDisconnects   Counter
	FeedReconnects    Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		TicksFolded:       n,
		MessagesDropped:   n,
		StaleTicksDropped: n,
		CandlesClosed:     n,
		BarsRejected:      n,
		FeedDisconnects:   n,
		FeedReconnects:    n,
	}
}
