package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type EventKind int

const (
	EventDialing EventKind = iota + 1
	EventOpen
	EventMessage
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventDialing:
		return "dialing"
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	Data []byte
	Err  error
	// Attempt is the reconnect attempt for EventDialing, 0 on the first dial.
	Attempt int
}

// Client owns the duplex connection to the market feed. Each Run serves one
// subscription; a symbol change is a new Run.
type Client struct {
	url          string
	policy       ReconnectPolicy
	pingInterval time.Duration
	log          *zap.Logger
}

func New(url string, policy ReconnectPolicy, pingInterval time.Duration, log *zap.Logger) *Client {
	if policy == nil {
		policy = NoReconnect{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{url: url, policy: policy, pingInterval: pingInterval, log: log}
}

func (c *Client) URL() string {
	return c.url
}

// Run dials the feed, subscribes to symbol and hands every event to handler
// until ctx is done or the reconnect policy gives up. handler is called from
// the Run goroutine only.
func (c *Client) Run(ctx context.Context, symbol string, handler func(Event)) error {
	if handler == nil {
		handler = func(Event) {}
	}
	attempt := 0
	for {
		handler(Event{Kind: EventDialing, Attempt: attempt})
		opened, err := c.serve(ctx, symbol, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handler(Event{Kind: EventClose, Err: err})
		c.logReadLoopError(err)
		if opened {
			attempt = 0
		}
		delay, ok := c.policy.Next(attempt)
		if !ok {
			return err
		}
		attempt++
		c.log.Info("feed reconnect scheduled", zap.String("symbol", symbol), zap.Int("attempt", attempt), zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) serve(ctx context.Context, symbol string, handler func(Event)) (bool, error) {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "teardown") }()
	if err := writeJSON(ctx, conn, Subscribe(symbol)); err != nil {
		return false, err
	}
	handler(Event{Kind: EventOpen})

	pingCtx, cancel := context.WithCancel(ctx)
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		c.pingLoop(pingCtx, conn)
	}()
	err = c.readLoop(ctx, conn, handler)
	cancel()
	<-pingDone
	return true, err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, handler func(Event)) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		handler(Event{Kind: EventMessage, Data: data})
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.pingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadLoopError(err error) {
	if err == nil {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			c.log.Info("feed read loop ended", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
			return
		}
	}
	c.log.Warn("feed read loop ended", zap.Error(err))
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
