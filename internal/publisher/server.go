package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"mngfx-livechart/internal/feed"
	"mngfx-livechart/internal/market"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	DefaultSymbol  = "EURUSD"
	welcomeMessage = "connected to market feed"
)

// reply is written by the connection's writer. A non-empty symbol replaces
// the connection's subscription before the frame is sent.
type reply struct {
	env    feed.Envelope
	symbol string
}

// Server is the market feed websocket endpoint. Each connection receives
// the ticks of the symbol it subscribed to.
type Server struct {
	broker   Broker
	path     string
	log      *zap.Logger
	upgrader websocket.Upgrader
	base     context.Context
	cancel   context.CancelFunc
}

func NewServer(broker Broker, path string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if path == "" {
		path = "/ws/market/"
	}
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		broker: broker,
		path:   path,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		base:   base,
		cancel: cancel,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET(s.path, s.handleWebSocket)
	return router
}

// Close ends every open connection.
func (s *Server) Close() {
	s.cancel()
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("market websocket upgrade failed", zap.Error(err))
		return
	}
	id := uuid.NewString()
	log := s.log.With(zap.String("conn", id))
	defer func() {
		_ = conn.Close()
		log.Debug("market client disconnected")
	}()

	ctx, cancel := context.WithCancel(s.base)
	defer cancel()
	ticks, err := s.broker.Subscribe(ctx)
	if err != nil {
		log.Warn("broker subscribe failed", zap.Error(err))
		return
	}
	if err := writeEnvelope(conn, feed.Envelope{Type: feed.TypeWelcome, Message: welcomeMessage}); err != nil {
		return
	}
	log.Debug("market client connected")

	replies := make(chan reply, 16)
	go s.readPump(ctx, cancel, conn, replies, log)
	s.writePump(ctx, conn, ticks, replies, log)
}

func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, replies chan<- reply, log *zap.Logger) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("market websocket error", zap.Error(err))
			}
			return
		}
		r := handleCommand(data)
		select {
		case replies <- r:
		case <-ctx.Done():
			return
		}
	}
}

func handleCommand(data []byte) reply {
	var cmd feed.SubscribeCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return reply{env: feed.Envelope{Type: feed.TypeError, Message: "invalid message"}}
	}
	if cmd.Action != feed.ActionSubscribe {
		return reply{env: feed.Envelope{Type: feed.TypeError, Message: "unknown action"}}
	}
	symbol := strings.TrimSpace(cmd.Symbol)
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return reply{env: feed.Envelope{Type: feed.TypeSubscribed, Symbol: symbol}, symbol: symbol}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, ticks <-chan market.Tick, replies <-chan reply, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	var symbol string
	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case r := <-replies:
			if r.symbol != "" {
				symbol = r.symbol
				log.Debug("market client subscribed", zap.String("symbol", symbol))
			}
			if err := writeEnvelope(conn, r.env); err != nil {
				return
			}
		case t, ok := <-ticks:
			if !ok {
				return
			}
			if symbol == "" || t.Symbol != symbol {
				continue
			}
			if err := writeEnvelope(conn, feed.TickMessage(t)); err != nil {
				log.Debug("market write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEnvelope(conn *websocket.Conn, env feed.Envelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
