package signaling

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/chatstore"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/hub"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/metrics"
)

type testEnv struct {
	ts      *httptest.Server
	hub     *hub.Hub
	metrics *metrics.Metrics
	store   *chatstore.MemoryStore
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv starts a signaling server backed by a real hub and an in-memory
// chat store. mutate may adjust the server config before it is built.
func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	m := metrics.New()
	store := chatstore.NewMemoryStore(chatstore.DefaultCapacity)
	h := hub.New(hub.Config{
		Logger:  discardLogger(),
		Metrics: m,
		Store:   store,
	})

	cfg := Config{
		Hub:     h,
		Logger:  discardLogger(),
		Metrics: m,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: h, metrics: m, store: store}
}

func (e *testEnv) wsURL(query string) string {
	u := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(e.wsURL(""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sendJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return v
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, c *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for i := 0; i < 32; i++ {
		v := readJSON(t, c)
		if v["type"] == typ {
			return v
		}
	}
	t.Fatalf("no %q frame within 32 messages", typ)
	return nil
}

// readAck skips frames until the ack for event arrives.
func readAck(t *testing.T, c *websocket.Conn, event string) map[string]any {
	t.Helper()
	for i := 0; i < 32; i++ {
		v := readUntil(t, c, "ack")
		if v["event"] == event {
			return v
		}
	}
	t.Fatalf("no ack for %q", event)
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
