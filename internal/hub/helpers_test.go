package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/chatstore"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/protocol"
)

type mockConn struct {
	id       string
	mu       sync.Mutex
	received [][]byte
	closed   bool
	sendErr  error
}

func newMockConn(id string) *mockConn { return &mockConn{id: id} }

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) setSendErr(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

func (m *mockConn) isClosed() bool { return !m.Open() }

func (m *mockConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, 0, len(m.received))
	for _, raw := range m.received {
		var v map[string]any
		require.NoError(t, json.Unmarshal(raw, &v), "frame %s", raw)
		out = append(out, v)
	}
	return out
}

func (m *mockConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, v := range m.messages(t) {
		if v["type"] == typ {
			out = append(out, v)
		}
	}
	return out
}

func (m *mockConn) last(t *testing.T, typ string) map[string]any {
	t.Helper()
	all := m.ofType(t, typ)
	require.NotEmpty(t, all, "%s received no %q message", m.id, typ)
	return all[len(all)-1]
}

// acks returns the ack envelopes for event.
func (m *mockConn) acks(t *testing.T, event string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, v := range m.ofType(t, "ack") {
		if v["event"] == event {
			out = append(out, v)
		}
	}
	return out
}

func (m *mockConn) lastAck(t *testing.T, event string) map[string]any {
	t.Helper()
	all := m.acks(t, event)
	require.NotEmpty(t, all, "%s received no ack for %q", m.id, event)
	return all[len(all)-1]
}

// indexOf returns the position of the first message of type typ, or -1.
func (m *mockConn) indexOf(t *testing.T, typ string) int {
	t.Helper()
	for i, v := range m.messages(t) {
		if v["type"] == typ {
			return i
		}
	}
	return -1
}

func (m *mockConn) reset() {
	m.mu.Lock()
	m.received = nil
	m.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T, mutate ...func(*Config)) (*Hub, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cfg := Config{
		Logger: discardLogger(),
		Clock:  clk,
		Store:  chatstore.NewMemoryStore(16),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	return New(cfg), clk
}

// send parses raw like the transport does and hands it to the hub.
func send(t *testing.T, h *Hub, c Conn, raw string) {
	t.Helper()
	msg, err := protocol.Parse([]byte(raw))
	require.NoError(t, err, "parse %s", raw)
	require.NoError(t, h.Handle(c, msg))
}

const (
	testOffer     = `{"type":"offer","sdp":"v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\n"}`
	testAnswer    = `{"type":"answer","sdp":"v=0\r\no=- 2 2 IN IP4 0.0.0.0\r\n"}`
	testCandidate = `{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`
)

func joinBroadcaster(t *testing.T, h *Hub, id string) *mockConn {
	t.Helper()
	c := newMockConn("conn-" + id)
	send(t, h, c, `{"type":"broadcaster_join","broadcasterId":"`+id+`","userInfo":{"displayName":"Host","avatarUrl":"/host.png"}}`)
	return c
}

func joinAnon(t *testing.T, h *Hub, viewerID string) *mockConn {
	t.Helper()
	c := newMockConn("conn-" + viewerID)
	send(t, h, c, `{"type":"viewer_join","viewerId":"`+viewerID+`","streamerId":"b1","userInfo":{"isLoggedIn":false}}`)
	return c
}

func joinNamed(t *testing.T, h *Hub, viewerID, name string) *mockConn {
	t.Helper()
	c := newMockConn("conn-" + viewerID)
	send(t, h, c, `{"type":"viewer_join","viewerId":"`+viewerID+`","streamerId":"b1","userInfo":{"isLoggedIn":true,"displayName":"`+name+`","avatarUrl":"/a.png"}}`)
	return c
}

func displayName(t *testing.T, joined map[string]any) string {
	t.Helper()
	info, ok := joined["userInfo"].(map[string]any)
	require.True(t, ok, "userInfo missing in %v", joined)
	name, _ := info["displayName"].(string)
	return name
}
