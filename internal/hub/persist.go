package hub

import (
	"context"
	"errors"
	"time"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/chatstore"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/protocol"
)

var errHistoryTimeout = errors.New("hub: timed out waiting for chat history")

// persistJob is either a message to save or a request for a history
// snapshot. Jobs are queued under the hub lock and run one at a time, so the
// store sees messages in accept order and a snapshot reflects exactly the
// messages accepted before it was requested.
type persistJob struct {
	save    *chatstore.Message
	history chan<- historyResult
}

type historyResult struct {
	messages []protocol.ChatEvent
	err      error
}

func (h *Hub) persistLoop() {
	defer close(h.persistDone)
	for job := range h.persistQ {
		ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
		if job.save != nil {
			if _, err := h.store.Save(ctx, *job.save); err != nil {
				h.metrics.Inc(metrics.ChatPersistFailed)
				h.log.Warn("persist chat message", "username", job.save.Username, "err", err)
			}
		} else {
			msgs, err := h.RecentChat(ctx, h.historyLimit)
			job.history <- historyResult{messages: msgs, err: err}
		}
		cancel()
	}
}

// enqueueLocked never blocks; it reports false when the hub is closed or the
// queue is full.
func (h *Hub) enqueueLocked(job persistJob) bool {
	if h.persistQ == nil || h.closed {
		return false
	}
	select {
	case h.persistQ <- job:
		return true
	default:
		return false
	}
}

// saveLocked queues msg for the store. A message that cannot be queued is
// dropped; delivery to chat members has already happened.
func (h *Hub) saveLocked(msg chatstore.Message) {
	if h.store == nil {
		return
	}
	if !h.enqueueLocked(persistJob{save: &msg}) {
		h.metrics.Inc(metrics.ChatPersistDropped)
		h.log.Warn("dropping chat message from persistence", "username", msg.Username, "hub_closed", h.closed)
	}
}

// requestHistoryLocked queues a snapshot request. A nil channel means the
// caller has to load history directly.
func (h *Hub) requestHistoryLocked() <-chan historyResult {
	if h.store == nil {
		return nil
	}
	ch := make(chan historyResult, 1)
	if !h.enqueueLocked(persistJob{history: ch}) {
		return nil
	}
	return ch
}

func (h *Hub) awaitHistory(pending <-chan historyResult) ([]protocol.ChatEvent, error) {
	if pending == nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
		defer cancel()
		return h.RecentChat(ctx, h.historyLimit)
	}
	timer := time.NewTimer(h.persistTimeout)
	defer timer.Stop()
	select {
	case r := <-pending:
		return r.messages, r.err
	case <-timer.C:
		return nil, errHistoryTimeout
	}
}
