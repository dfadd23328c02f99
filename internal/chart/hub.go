package chart

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	clientBuffer    = 256
	broadcastBuffer = 1024
	controlBuffer   = 64
)

const (
	FrameSnapshot = "snapshot"
	FrameBar      = "bar"
	FrameResize   = "resize"
	FrameReset    = "reset"
	FrameStatus   = "status"
)

const (
	ControlLayout = "layout"
	ControlMode   = "mode"
	ControlSymbol = "symbol"
)

// Frame is pushed to every chart client.
type Frame struct {
	Type      string `json:"type"`
	Bar       *Bar   `json:"bar,omitempty"`
	Bars      []Bar  `json:"bars,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Connected *bool  `json:"connected,omitempty"`
}

// Control is a request sent by a chart client: a container resize, a view
// mode change or a symbol switch.
type Control struct {
	Type           string `json:"type"`
	Width          int    `json:"width,omitempty"`
	Mode           string `json:"mode,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty"`
	Symbol         string `json:"symbol,omitempty"`
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan Frame
}

// Hub exposes the active chart surface to browser clients. Clients get a
// snapshot on connect and incremental frames after that.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	register   chan *hubClient
	unregister chan *hubClient
	broadcast  chan Frame
	controls   chan Control
	done       chan struct{}

	mu        sync.RWMutex
	series    *Series
	symbol    string
	connected bool

	clients map[*hubClient]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		broadcast:  make(chan Frame, broadcastBuffer),
		controls:   make(chan Control, controlBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*hubClient]struct{}),
	}
}

// Controls delivers client requests in arrival order.
func (h *Hub) Controls() <-chan Control {
	return h.controls
}

// NewSurface is a SurfaceFactory. The new surface becomes the one clients see.
func (h *Hub) NewSurface(width, height int) (Surface, error) {
	series := NewSeries(width, height)
	h.mu.Lock()
	h.series = series
	h.mu.Unlock()
	h.publish(Frame{Type: FrameReset, Width: width, Height: height})
	return &hubSurface{hub: h, series: series}, nil
}

// SetStatus records the feed state and tells clients about it.
func (h *Hub) SetStatus(symbol string, connected bool) {
	h.mu.Lock()
	h.symbol = symbol
	h.connected = connected
	h.mu.Unlock()
	h.publish(Frame{Type: FrameStatus, Symbol: symbol, Connected: &connected})
}

func (h *Hub) Snapshot() Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()
	connected := h.connected
	frame := Frame{Type: FrameSnapshot, Symbol: h.symbol, Connected: &connected, Bars: []Bar{}}
	if h.series != nil {
		frame.Bars = h.series.Bars()
		frame.Width, frame.Height = h.series.Size()
	}
	return frame
}

func (h *Hub) publish(frame Frame) {
	select {
	case h.broadcast <- frame:
	default:
		h.log.Warn("chart broadcast queue full", zap.String("frame", frame.Type))
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
			client.send <- h.Snapshot()
			h.log.Debug("chart client connected", zap.String("client", client.id), zap.Int("clients", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case frame := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					h.log.Warn("chart client too slow, dropping", zap.String("client", client.id))
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

func (h *Hub) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/api/candles", h.handleCandles)
	router.GET("/ws/chart", h.handleWebSocket)
	return router
}

func (h *Hub) handleCandles(c *gin.Context) {
	snapshot := h.Snapshot()
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if len(snapshot.Bars) > limit {
			snapshot.Bars = snapshot.Bars[len(snapshot.Bars)-limit:]
		}
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *Hub) handleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("chart websocket upgrade failed", zap.Error(err))
		return
	}
	client := &hubClient{id: uuid.NewString(), conn: conn, send: make(chan Frame, clientBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) readPump(client *hubClient) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		_ = client.conn.Close()
		h.log.Debug("chart client disconnected", zap.String("client", client.id))
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("chart websocket error", zap.String("client", client.id), zap.Error(err))
			}
			return
		}
		h.handleControl(client, message)
	}
}

func (h *Hub) handleControl(client *hubClient, message []byte) {
	var ctrl Control
	if err := json.Unmarshal(message, &ctrl); err != nil {
		h.log.Debug("chart control malformed", zap.String("client", client.id), zap.Error(err))
		return
	}
	switch ctrl.Type {
	case ControlLayout, ControlMode, ControlSymbol:
	default:
		h.log.Debug("chart control ignored", zap.String("client", client.id), zap.String("type", ctrl.Type))
		return
	}
	select {
	case h.controls <- ctrl:
	default:
		h.log.Warn("chart control queue full", zap.String("type", ctrl.Type))
	}
}

func (h *Hub) writePump(client *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(frame); err != nil {
				h.log.Debug("chart write failed", zap.String("client", client.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type hubSurface struct {
	hub    *Hub
	series *Series
}

func (s *hubSurface) Update(bar Bar) error {
	if err := s.series.Update(bar); err != nil {
		return err
	}
	s.hub.publish(Frame{Type: FrameBar, Bar: &bar})
	return nil
}

func (s *hubSurface) Resize(width, height int) {
	s.series.Resize(width, height)
	s.hub.publish(Frame{Type: FrameResize, Width: width, Height: height})
}

func (s *hubSurface) Destroy() {
	s.series.Destroy()
	s.hub.mu.Lock()
	if s.hub.series == s.series {
		s.hub.series = nil
	}
	s.hub.mu.Unlock()
}
