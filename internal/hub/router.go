package hub

import (
	"time"

	"github.com/google/uuid"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/protocol"
)

// Ack error codes produced by the router.
const (
	AckNotAuthorized = "not_authorized"
	AckInvalidState  = "invalid_state"
)

func (h *Hub) onBroadcasterJoin(conn Conn, m *protocol.BroadcasterJoin) []Result {
	id := m.BroadcasterID
	if id == "" {
		id = uuid.NewString()
	}
	b, prev := h.reg.registerBroadcaster(conn, id, m.UserInfo, h.clock.Now())
	if prev != nil && prev.Conn != conn {
		h.log.Info("broadcaster superseded", "broadcaster_id", prev.ID, "conn_id", prev.Conn.ID(), "new_conn_id", conn.ID())
	}
	h.log.Info("broadcaster joined", "broadcaster_id", b.ID, "conn_id", conn.ID(), "viewers", h.reg.viewerCount())

	out := h.reply(conn, protocol.NewBroadcasterJoined(b.ID))
	out = append(out, h.reply(conn, protocol.NewAck(protocol.TypeBroadcasterJoin))...)
	out = append(out, h.toAllViewers(protocol.NewBroadcasterInfo(b.ID, b.UserInfo))...)

	// Viewers that arrived first still need an offer.
	for _, v := range h.reg.viewersByJoin() {
		out = append(out, h.reply(conn, protocol.NewViewerArrived(v.ID, v.StreamerID, v.UserInfo))...)
	}
	out = append(out, h.reply(conn, protocol.NewViewerCount(h.reg.viewerCount()))...)
	return out
}

func (h *Hub) onViewerJoin(conn Conn, m *protocol.ViewerJoin) []Result {
	var out []Result
	if old, ok := h.reg.boundViewer(conn); ok && old.ID != m.ViewerID {
		out = append(out, h.viewerGoneLocked(old.ID, "rejoined as "+m.ViewerID)...)
	}
	if prev, ok := h.reg.lookupViewer(m.ViewerID); ok && prev.Conn != conn {
		h.log.Info("viewer reconnected", "viewer_id", m.ViewerID, "old_conn_id", prev.Conn.ID(), "conn_id", conn.ID())
	}

	v := h.reg.registerViewer(conn, m.ViewerID, m.StreamerID, m.UserInfo, h.clock.Now())
	h.log.Info("viewer joined", "viewer_id", v.ID, "conn_id", conn.ID(), "display_name", v.UserInfo.DisplayName, "ghost", v.Ghost())

	joined := protocol.ViewerJoined{
		Type:       protocol.TypeViewerJoined,
		ViewerID:   v.ID,
		UserInfo:   v.UserInfo,
		StreamerID: v.StreamerID,
	}
	if b := h.reg.broadcaster; b != nil {
		info := b.UserInfo
		joined.BroadcasterID = b.ID
		joined.BroadcasterInfo = &info
	}
	out = append(out, h.reply(conn, joined)...)
	ack := protocol.NewAck(protocol.TypeViewerJoin)
	ack.ViewerID = v.ID
	out = append(out, h.reply(conn, ack)...)
	if b := h.reg.broadcaster; b != nil {
		out = append(out, h.reply(conn, protocol.NewBroadcasterInfo(b.ID, b.UserInfo))...)
	}

	switch h.stream.state {
	case StateStarting:
		out = append(out, h.reply(conn, protocol.NewStreamStart(h.stream.title))...)
	case StateLive:
		out = append(out, h.reply(conn, protocol.NewStreamStart(h.stream.title))...)
		out = append(out, h.reply(conn, protocol.NewStreamStatus(protocol.StatusLive, h.stream.title, true))...)
	}

	if r, ok := h.toBroadcaster(protocol.NewViewerArrived(v.ID, v.StreamerID, v.UserInfo)); ok {
		out = append(out, r)
	}
	return append(out, h.broadcastCountLocked()...)
}

func (h *Hub) onStreamStart(conn Conn, m *protocol.StreamStart) []Result {
	if !h.reg.isBroadcaster(conn) {
		return h.refuse(conn, protocol.TypeStreamStart, AckNotAuthorized)
	}
	if !h.stream.fire(eventStart, h.clock.Now()) {
		return h.refuse(conn, protocol.TypeStreamStart, AckInvalidState)
	}
	if m.Title != "" {
		h.stream.title = m.Title
	}
	h.metrics.Inc(metrics.StreamsStarted)
	h.log.Info("stream starting", "title", h.stream.title, "epoch", h.stream.epoch)

	out := h.reply(conn, protocol.NewAck(protocol.TypeStreamStart))
	out = append(out, h.toAllViewers(protocol.NewStreamStart(h.stream.title))...)

	if h.startingDelay <= 0 {
		return append(out, h.goLiveLocked(h.stream.epoch)...)
	}
	if h.startTimer != nil {
		h.startTimer.Stop()
	}
	epoch := h.stream.epoch
	h.startTimer = time.AfterFunc(h.startingDelay, func() {
		h.apply(func() []Result { return h.goLiveLocked(epoch) })
	})
	return out
}

// goLiveLocked completes the start begun at epoch. It is a no-op once the
// stream has ended or restarted.
func (h *Hub) goLiveLocked(epoch uint64) []Result {
	if h.closed || epoch != h.stream.epoch {
		return nil
	}
	if !h.stream.fire(eventGoLive, h.clock.Now()) {
		return nil
	}
	h.log.Info("stream live", "title", h.stream.title)
	return h.toAllViewers(protocol.NewStreamStatus(protocol.StatusLive, h.stream.title, true))
}

func (h *Hub) onStreamEnd(conn Conn) []Result {
	if !h.reg.isBroadcaster(conn) {
		return h.refuse(conn, protocol.TypeStreamEnd, AckNotAuthorized)
	}
	out := h.reply(conn, protocol.NewAck(protocol.TypeStreamEnd))
	return append(out, h.endStreamLocked("stream ended")...)
}

// endStreamLocked clears the title, tells every viewer the stream ended and
// settles the state machine back to Idle.
func (h *Hub) endStreamLocked(message string) []Result {
	now := h.clock.Now()
	if h.stream.fire(eventEnd, now) {
		h.metrics.Inc(metrics.StreamsEnded)
		h.log.Info("stream ended", "reason", message)
	}
	if h.startTimer != nil {
		h.startTimer.Stop()
		h.startTimer = nil
	}
	h.stream.title = ""
	out := h.toAllViewers(protocol.NewStreamEnd(message))
	h.stream.fire(eventReset, now)
	return out
}

func (h *Hub) onTitleUpdate(conn Conn, m *protocol.TitleUpdate) []Result {
	if !h.reg.isBroadcaster(conn) {
		return h.refuse(conn, protocol.TypeTitleUpdate, AckNotAuthorized)
	}
	h.stream.title = *m.Title
	out := h.reply(conn, protocol.NewAck(protocol.TypeTitleUpdate))
	return append(out, h.toAllViewers(protocol.NewTitleUpdate(h.stream.title, protocol.MillisFrom(h.clock.Now())))...)
}

func (h *Hub) refuse(conn Conn, event protocol.Type, code string) []Result {
	h.log.Warn("refused message", "conn_id", conn.ID(), "type", event, "reason", code)
	return h.reply(conn, protocol.NewNack(event, code))
}

func (h *Hub) dropSignal(conn Conn, typ protocol.Type, reason string, args ...any) []Result {
	h.metrics.Inc(metrics.SignalingDropped)
	h.log.Warn("dropping signaling message", append([]any{"conn_id", conn.ID(), "type", typ, "reason", reason}, args...)...)
	return nil
}

func (h *Hub) onOffer(conn Conn, m *protocol.Offer) []Result {
	b := h.reg.broadcaster
	if b == nil || b.Conn != conn {
		return h.dropSignal(conn, protocol.TypeOffer, "sender is not the broadcaster", "viewer_id", m.ViewerID)
	}
	v, ok := h.reg.lookupViewer(m.ViewerID)
	if !ok {
		return h.dropSignal(conn, protocol.TypeOffer, "unknown viewer", "viewer_id", m.ViewerID)
	}
	if !v.Conn.Open() {
		return h.dropSignal(conn, protocol.TypeOffer, "viewer connection not open", "viewer_id", m.ViewerID)
	}
	r, _ := h.toViewer(v.ID, protocol.OfferEvent{
		Type:          protocol.TypeOffer,
		Offer:         m.Offer,
		BroadcasterID: b.ID,
		ViewerID:      v.ID,
	})
	return []Result{r}
}

// senderViewerID prefers the viewer ID bound to conn over the one claimed in
// the message. Callers identify themselves, so an unbound connection's claim
// is taken as given.
func (h *Hub) senderViewerID(conn Conn, claimed string) string {
	if v, ok := h.reg.boundViewer(conn); ok {
		return v.ID
	}
	return claimed
}

func (h *Hub) onAnswer(conn Conn, m *protocol.Answer) []Result {
	viewerID := h.senderViewerID(conn, m.ViewerID)
	r, ok := h.toBroadcaster(protocol.AnswerEvent{
		Type:     protocol.TypeAnswer,
		Answer:   m.Answer,
		ViewerID: viewerID,
	})
	if !ok {
		return h.dropSignal(conn, protocol.TypeAnswer, "no broadcaster", "viewer_id", viewerID)
	}
	return []Result{r}
}

func (h *Hub) onICECandidate(conn Conn, m *protocol.ICECandidate) []Result {
	if !m.FromBroadcaster() {
		viewerID := h.senderViewerID(conn, m.ViewerID)
		if viewerID == "" {
			return h.dropSignal(conn, protocol.TypeICECandidate, "addressless candidate")
		}
		r, ok := h.toBroadcaster(protocol.ICECandidateEvent{
			Type:      protocol.TypeICECandidate,
			Candidate: m.Candidate,
			ViewerID:  viewerID,
		})
		if !ok {
			return h.dropSignal(conn, protocol.TypeICECandidate, "no broadcaster", "viewer_id", viewerID)
		}
		return []Result{r}
	}

	b := h.reg.broadcaster
	if b == nil || b.Conn != conn {
		return h.dropSignal(conn, protocol.TypeICECandidate, "sender is not the broadcaster", "viewer_id", m.ViewerID)
	}
	r, ok := h.toViewer(m.ViewerID, protocol.ICECandidateEvent{
		Type:          protocol.TypeICECandidate,
		Candidate:     m.Candidate,
		BroadcasterID: b.ID,
	})
	if !ok {
		return h.dropSignal(conn, protocol.TypeICECandidate, "unknown viewer", "viewer_id", m.ViewerID)
	}
	return []Result{r}
}
