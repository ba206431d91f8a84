// Package hub owns the relay's shared state and routes parsed protocol
// messages between connections.
//
// A Hub holds the broadcaster and viewer registry, chat identities, the
// stream state machine and the chat moderator. Every mutation happens under
// one mutex; sends are non-blocking enqueues, so they are performed while the
// lock is held and the relative order of events is the same for every
// receiver. Failed deliveries are reconciled once per operation, after which
// the affected connections are closed outside the lock.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/chatstore"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/identity"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/moderation"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/protocol"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/ratelimit"
)

const (
	DefaultSweepInterval  = 30 * time.Second
	DefaultHistoryLimit   = 50
	DefaultPersistTimeout = 5 * time.Second
	DefaultPersistQueue   = 256
)

// Conn is the hub's view of a client connection. Send must not block: a
// connection whose outbound queue is full reports an error instead.
type Conn interface {
	ID() string
	Send(data []byte) error
	Open() bool
	Close() error
}

type Config struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Moderator *moderation.Moderator
	// Store persists accepted chat messages. Nil disables persistence and
	// history replay.
	Store chatstore.Store
	Clock ratelimit.Clock

	// StartingDelay separates the stream_start broadcast from the
	// stream_status "live" broadcast. Zero sends both immediately.
	StartingDelay  time.Duration
	SweepInterval  time.Duration
	HistoryLimit   int
	PersistTimeout time.Duration
	// PersistQueue bounds chat messages waiting for the store. Messages
	// accepted while it is full are delivered but not saved.
	PersistQueue int
}

type Hub struct {
	log            *slog.Logger
	metrics        *metrics.Metrics
	moderator      *moderation.Moderator
	store          chatstore.Store
	clock          ratelimit.Clock
	startingDelay  time.Duration
	sweepInterval  time.Duration
	historyLimit   int
	persistTimeout time.Duration

	persistQ    chan persistJob
	persistDone chan struct{}

	mu         sync.Mutex
	reg        *registry
	stream     streamState
	startTimer *time.Timer
	lastCount  int
	closed     bool
}

func New(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}
	if cfg.Moderator == nil {
		cfg.Moderator = moderation.New(moderation.Config{Clock: cfg.Clock})
	}
	if cfg.StartingDelay < 0 {
		cfg.StartingDelay = 0
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.PersistQueue <= 0 {
		cfg.PersistQueue = DefaultPersistQueue
	}
	h := &Hub{
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
		moderator:      cfg.Moderator,
		store:          cfg.Store,
		clock:          cfg.Clock,
		startingDelay:  cfg.StartingDelay,
		sweepInterval:  cfg.SweepInterval,
		historyLimit:   cfg.HistoryLimit,
		persistTimeout: cfg.PersistTimeout,
		reg:            newRegistry(identity.NewGhostPool()),
	}
	if h.store != nil {
		h.persistQ = make(chan persistJob, cfg.PersistQueue)
		h.persistDone = make(chan struct{})
		go h.persistLoop()
	}
	return h
}

// Handle dispatches one parsed message from conn. Messages from a single
// connection must be handled sequentially by the caller.
func (h *Hub) Handle(conn Conn, msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.BroadcasterJoin:
		h.apply(func() []Result { return h.onBroadcasterJoin(conn, m) })
	case *protocol.ViewerJoin:
		h.apply(func() []Result { return h.onViewerJoin(conn, m) })
	case *protocol.StreamStart:
		h.apply(func() []Result { return h.onStreamStart(conn, m) })
	case *protocol.StreamEnd:
		h.apply(func() []Result { return h.onStreamEnd(conn) })
	case *protocol.TitleUpdate:
		h.apply(func() []Result { return h.onTitleUpdate(conn, m) })
	case *protocol.Offer:
		h.apply(func() []Result { return h.onOffer(conn, m) })
	case *protocol.Answer:
		h.apply(func() []Result { return h.onAnswer(conn, m) })
	case *protocol.ICECandidate:
		h.apply(func() []Result { return h.onICECandidate(conn, m) })
	case *protocol.ChatJoin:
		h.onChatJoin(conn, m)
	case *protocol.Chat:
		h.onChat(conn, m)
	case *protocol.Heartbeat:
		h.apply(func() []Result {
			return h.reply(conn, protocol.NewHeartbeatAck(protocol.MillisFrom(h.clock.Now())))
		})
	default:
		return fmt.Errorf("hub: unhandled message type %T", msg)
	}
	return nil
}

// Disconnect removes every registration held by conn. It is safe to call
// more than once and for connections that never registered.
func (h *Hub) Disconnect(conn Conn) {
	h.apply(func() []Result { return h.dropConnLocked(conn, "disconnect") })
}

// apply runs fn under the hub lock, reconciles its failed deliveries and
// closes the pruned connections after the lock is released.
func (h *Hub) apply(fn func() []Result) {
	h.mu.Lock()
	dead := h.reconcileLocked(fn())
	h.updateGaugesLocked()
	h.mu.Unlock()

	for _, c := range dead {
		_ = c.Close()
	}
}

func (h *Hub) updateGaugesLocked() {
	h.metrics.SetGauge(metrics.GaugeViewers, int64(h.reg.viewerCount()))
	h.metrics.SetGauge(metrics.GaugeChatMembers, int64(len(h.reg.chat)))
	h.metrics.SetGauge(metrics.GaugeStreamState, int64(h.stream.state))
}

// Mute blocks id from sending chat. id is a viewer ID or, for connections
// that never sent viewer_join, the chat username.
func (h *Hub) Mute(id string)   { h.moderator.Mute(id) }
func (h *Hub) Unmute(id string) { h.moderator.Unmute(id) }
func (h *Hub) Kick(id string)   { h.moderator.Kick(id) }
func (h *Hub) Unkick(id string) { h.moderator.Unkick(id) }

// Status is a point-in-time view of the stream and registry.
type Status struct {
	State         StreamState `json:"state"`
	Title         string      `json:"title"`
	IsStreaming   bool        `json:"isStreaming"`
	BroadcasterID string      `json:"broadcasterId,omitempty"`
	Viewers       int         `json:"viewers"`
	ChatMembers   int         `json:"chatMembers"`
}

func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Status{
		State:       h.stream.state,
		Title:       h.stream.title,
		IsStreaming: h.stream.streaming(),
		Viewers:     h.reg.viewerCount(),
		ChatMembers: len(h.reg.chat),
	}
	if b := h.reg.broadcaster; b != nil {
		st.BroadcasterID = b.ID
	}
	return st
}

func (h *Hub) ViewerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reg.viewerCount()
}

// LookupViewer returns a copy of the viewer's session.
func (h *Hub) LookupViewer(viewerID string) (ViewerSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.reg.lookupViewer(viewerID)
	if !ok {
		return ViewerSession{}, false
	}
	return *v, true
}

// Close stops the pending live transition, if any, and waits for queued
// chat messages to be saved or ctx to expire. Messages accepted afterwards
// are not persisted.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if !h.closed && h.persistQ != nil {
		close(h.persistQ)
	}
	h.closed = true
	if h.startTimer != nil {
		h.startTimer.Stop()
		h.startTimer = nil
	}
	h.mu.Unlock()

	if h.persistDone == nil {
		return nil
	}
	select {
	case <-h.persistDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
