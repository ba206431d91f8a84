package hub

import (
	"errors"
	"log/slog"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/protocol"
)

var ErrConnNotOpen = errors.New("hub: connection not open")

// Result is the outcome of one delivery attempt.
type Result struct {
	Conn Conn
	Err  error
}

func (r Result) OK() bool { return r.Err == nil }

func delivered(results []Result) int {
	n := 0
	for _, r := range results {
		if r.OK() {
			n++
		}
	}
	return n
}

func (h *Hub) encode(v any) ([]byte, bool) {
	b, err := protocol.Encode(v)
	if err != nil {
		h.log.Error("encode outbound message", "err", err)
		return nil, false
	}
	return b, true
}

func deliver(conn Conn, payload []byte) Result {
	if !conn.Open() {
		return Result{Conn: conn, Err: ErrConnNotOpen}
	}
	return Result{Conn: conn, Err: conn.Send(payload)}
}

func (h *Hub) reply(conn Conn, v any) []Result {
	b, ok := h.encode(v)
	if !ok {
		return nil
	}
	return []Result{deliver(conn, b)}
}

// toViewer reports false when no session is registered under viewerID.
func (h *Hub) toViewer(viewerID string, v any) (Result, bool) {
	s, ok := h.reg.lookupViewer(viewerID)
	if !ok {
		return Result{}, false
	}
	b, ok := h.encode(v)
	if !ok {
		return Result{}, false
	}
	return deliver(s.Conn, b), true
}

func (h *Hub) toBroadcaster(v any) (Result, bool) {
	if h.reg.broadcaster == nil {
		return Result{}, false
	}
	b, ok := h.encode(v)
	if !ok {
		return Result{}, false
	}
	return deliver(h.reg.broadcaster.Conn, b), true
}

func (h *Hub) toAllViewers(v any) []Result {
	if len(h.reg.viewers) == 0 {
		return nil
	}
	b, ok := h.encode(v)
	if !ok {
		return nil
	}
	out := make([]Result, 0, len(h.reg.viewers))
	for _, s := range h.reg.viewers {
		out = append(out, deliver(s.Conn, b))
	}
	return out
}

// toAudience sends to every viewer and the broadcaster.
func (h *Hub) toAudience(v any) []Result {
	out := h.toAllViewers(v)
	if r, ok := h.toBroadcaster(v); ok {
		out = append(out, r)
	}
	return out
}

func (h *Hub) toAllChatIdentities(v any) []Result {
	if len(h.reg.chat) == 0 {
		return nil
	}
	b, ok := h.encode(v)
	if !ok {
		return nil
	}
	out := make([]Result, 0, len(h.reg.chat))
	for c := range h.reg.chat {
		out = append(out, deliver(c, b))
	}
	return out
}

// reconcileLocked treats every failed delivery as an implicit disconnect of
// its connection. Removing a connection can emit further notifications, whose
// failures are reconciled in the same pass. It returns the pruned
// connections.
func (h *Hub) reconcileLocked(results []Result) []Conn {
	var dead []Conn
	seen := make(map[Conn]struct{})
	for len(results) > 0 {
		r := results[0]
		results = results[1:]
		if r.OK() || r.Conn == nil {
			continue
		}
		if _, ok := seen[r.Conn]; ok {
			continue
		}
		seen[r.Conn] = struct{}{}
		dead = append(dead, r.Conn)

		h.metrics.Inc(metrics.SendFailures)
		h.log.Debug("pruning connection after failed send", "conn_id", r.Conn.ID(), "err", r.Err)
		results = append(results, h.dropConnLocked(r.Conn, "send failed")...)
	}
	if len(dead) > 0 {
		h.metrics.Add(metrics.ConnectionsPruned, uint64(len(dead)))
	}
	return dead
}

// dropConnLocked removes every registration held by conn and notifies the
// remaining connections.
func (h *Hub) dropConnLocked(conn Conn, reason string) []Result {
	var out []Result
	if h.reg.isBroadcaster(conn) {
		out = append(out, h.broadcasterGoneLocked(reason)...)
	}
	if v, ok := h.reg.boundViewer(conn); ok {
		out = append(out, h.viewerGoneLocked(v.ID, reason)...)
	}
	h.reg.leaveChat(conn)
	delete(h.reg.viewerOf, conn)
	return out
}

func (h *Hub) broadcasterGoneLocked(reason string) []Result {
	b := h.reg.unregisterBroadcaster()
	if b == nil {
		return nil
	}
	h.log.Info("broadcaster left", "broadcaster_id", b.ID, "conn_id", b.Conn.ID(), "reason", reason)

	if !h.stream.streaming() {
		return nil
	}
	return h.endStreamLocked("broadcaster disconnected")
}

func (h *Hub) viewerGoneLocked(viewerID, reason string) []Result {
	v := h.reg.unregisterViewer(viewerID)
	if v == nil {
		return nil
	}
	h.log.Info("viewer left", "viewer_id", v.ID, "conn_id", v.Conn.ID(), "reason", reason, slog.Int("viewers", h.reg.viewerCount()))

	var out []Result
	if r, ok := h.toBroadcaster(protocol.NewViewerLeft(v.ID)); ok {
		out = append(out, r)
	}
	return append(out, h.broadcastCountLocked()...)
}

func (h *Hub) broadcastCountLocked() []Result {
	h.lastCount = h.reg.viewerCount()
	return h.toAudience(protocol.NewViewerCount(h.lastCount))
}
