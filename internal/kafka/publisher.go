package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"mngfx-livechart/internal/config"
	"mngfx-livechart/internal/market"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const defaultWriteTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// CandleEvent is the value written for each closed candle.
type CandleEvent struct {
	Symbol        string  `json:"symbol"`
	Interval      string  `json:"interval"`
	IntervalStart int64   `json:"interval_start"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
}

func NewCandleEvent(c market.Candle) CandleEvent {
	return CandleEvent{
		Symbol:        c.Symbol,
		Interval:      "1m",
		IntervalStart: c.IntervalStart,
		Open:          c.Open,
		High:          c.High,
		Low:           c.Low,
		Close:         c.Close,
	}
}

// Publisher streams closed candles to a topic keyed by symbol. A nil
// *Publisher is valid and drops everything.
type Publisher struct {
	writer       messageWriter
	log          *zap.Logger
	queue        chan market.Candle
	writeTimeout time.Duration
	started      atomic.Bool
	dropped      atomic.Uint64
}

func New(cfg config.KafkaConfig, log *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic is required")
	}
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
	return newPublisher(writer, cfg, log), nil
}

func newPublisher(writer messageWriter, cfg config.KafkaConfig, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Publisher{
		writer:       writer,
		log:          log,
		queue:        make(chan market.Candle, queueSize),
		writeTimeout: timeout,
	}
}

func (p *Publisher) Start(ctx context.Context) {
	if p == nil {
		return
	}
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run(ctx)
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// EnqueueCandle never blocks; candles are dropped while the queue is full.
func (p *Publisher) EnqueueCandle(c market.Candle) {
	if p == nil {
		return
	}
	select {
	case p.queue <- c:
	default:
		if p.dropped.Add(1) == 1 {
			p.log.Warn("kafka candle queue full", zap.String("symbol", c.Symbol))
		}
	}
}

func (p *Publisher) Dropped() uint64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}

func (p *Publisher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-p.queue:
			if err := p.publish(ctx, c); err != nil {
				p.log.Warn("kafka candle publish failed", zap.String("symbol", c.Symbol), zap.Int64("interval_start", c.IntervalStart), zap.Error(err))
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, c market.Candle) error {
	value, err := json.Marshal(NewCandleEvent(c))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(c.Symbol),
		Value: value,
		Time:  c.Start(),
	})
}
