package chart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub.Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chart"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestHubSnapshotThenBars(t *testing.T) {
	hub, srv := startHub(t)
	surface, err := hub.NewSurface(800, 420)
	if err != nil {
		t.Fatalf("new surface: %v", err)
	}
	if err := surface.Update(Bar{Time: 60, Open: 1, High: 1, Low: 1, Close: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	hub.SetStatus("EURUSD", true)

	conn := dialHub(t, srv)
	first := readFrame(t, conn)
	if first.Type != FrameSnapshot {
		t.Fatalf("expected snapshot first, got %s", first.Type)
	}
	if len(first.Bars) == 0 || first.Bars[0].Time != 60 {
		t.Fatalf("snapshot missing bar: %+v", first.Bars)
	}
	if first.Width != 800 || first.Height != 420 {
		t.Fatalf("unexpected snapshot size %dx%d", first.Width, first.Height)
	}

	if err := surface.Update(Bar{Time: 120, Open: 2, High: 2, Low: 2, Close: 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	// Frames published before the client registered may still arrive.
	for i := 0; i < 8; i++ {
		frame := readFrame(t, conn)
		if frame.Type == FrameBar && frame.Bar != nil && frame.Bar.Time == 120 {
			return
		}
	}
	t.Fatalf("bar at 120 never reached the client")
}

func TestHubForwardsControls(t *testing.T) {
	hub, srv := startHub(t)
	conn := dialHub(t, srv)
	_ = readFrame(t, conn)

	msgs := []string{
		`not json`,
		`{"type":"unknown"}`,
		`{"type":"layout","width":1024}`,
		`{"type":"symbol","symbol":"GBPUSD"}`,
	}
	for _, msg := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	want := []Control{{Type: ControlLayout, Width: 1024}, {Type: ControlSymbol, Symbol: "GBPUSD"}}
	for _, w := range want {
		select {
		case got := <-hub.Controls():
			if got != w {
				t.Fatalf("unexpected control %+v want %+v", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %+v", w)
		}
	}
}

func TestHubResetOnNewSurface(t *testing.T) {
	hub, srv := startHub(t)
	old, _ := hub.NewSurface(800, 420)
	_ = old.Update(Bar{Time: 60, Open: 1, High: 1, Low: 1, Close: 1})

	conn := dialHub(t, srv)
	_ = readFrame(t, conn)

	old.Destroy()
	if _, err := hub.NewSurface(800, 420); err != nil {
		t.Fatalf("new surface: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frame := readFrame(t, conn); frame.Type == FrameReset {
			if frame.Width != 800 || frame.Height != 420 {
				t.Fatalf("unexpected reset size %dx%d", frame.Width, frame.Height)
			}
			if snap := hub.Snapshot(); len(snap.Bars) != 0 {
				t.Fatalf("expected empty snapshot after reset, got %d bars", len(snap.Bars))
			}
			return
		}
	}
	t.Fatalf("reset frame not received")
}

func TestHubCandlesEndpoint(t *testing.T) {
	hub, srv := startHub(t)
	surface, _ := hub.NewSurface(800, 420)
	for i := int64(1); i <= 3; i++ {
		_ = surface.Update(Bar{Time: i * 60, Open: 1, High: 1, Low: 1, Close: 1})
	}
	hub.SetStatus("EURUSD", true)

	resp, err := http.Get(srv.URL + "/api/candles?limit=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var frame Frame
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(frame.Bars) != 2 || frame.Bars[0].Time != 120 {
		t.Fatalf("unexpected bars %+v", frame.Bars)
	}
	if frame.Symbol != "EURUSD" || frame.Connected == nil || !*frame.Connected {
		t.Fatalf("unexpected status fields %+v", frame)
	}

	bad, err := http.Get(srv.URL + "/api/candles?limit=zero")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.StatusCode)
	}
}
