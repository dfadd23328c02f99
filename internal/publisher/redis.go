package publisher

import (
	"context"
	"errors"
	"strings"
	"time"

	"mngfx-livechart/internal/config"
	"mngfx-livechart/internal/market"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker carries msgpack encoded ticks over a redis pub/sub channel so
// several feed servers can share one generator.
type RedisBroker struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBroker(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*RedisBroker, error) {
	if log == nil {
		log = zap.NewNop()
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		return nil, errors.New("redis channel is required")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisBroker{client: client, channel: channel, log: log}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, t market.Tick) error {
	payload, err := EncodeTick(t)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan market.Tick, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	out := make(chan market.Tick, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				tick, err := DecodeTick([]byte(msg.Payload))
				if err != nil {
					b.log.Debug("redis tick dropped", zap.Error(err))
					continue
				}
				select {
				case out <- tick:
				default:
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func NewBroker(ctx context.Context, cfg config.PublisherConfig, log *zap.Logger) (Broker, error) {
	switch cfg.Broker {
	case "", config.BrokerMemory:
		return NewMemoryBroker(), nil
	case config.BrokerRedis:
		return NewRedisBroker(ctx, cfg.Redis, log)
	default:
		return nil, errors.New("unknown broker " + cfg.Broker)
	}
}
