package hub

import (
	"context"
	"time"
)

// SweepReport summarizes one lifecycle sweep.
type SweepReport struct {
	Viewers          int
	Broadcaster      bool
	ChatMembers      int
	CountRebroadcast bool
	RateRecords      int
}

// Run sweeps for stale connections every sweep interval until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep := h.Sweep()
			if rep.Viewers > 0 || rep.Broadcaster || rep.ChatMembers > 0 || rep.CountRebroadcast {
				h.log.Info("lifecycle sweep",
					"stale_viewers", rep.Viewers,
					"stale_broadcaster", rep.Broadcaster,
					"stale_chat", rep.ChatMembers,
					"count_rebroadcast", rep.CountRebroadcast,
				)
			}
		}
	}
}

// Sweep evicts registrations whose connection is no longer open and
// re-broadcasts the viewer count if it drifted from the registry.
func (h *Hub) Sweep() SweepReport {
	var rep SweepReport
	h.apply(func() []Result {
		var stale []Conn
		if b := h.reg.broadcaster; b != nil && !b.Conn.Open() {
			stale = append(stale, b.Conn)
			rep.Broadcaster = true
		}
		for _, v := range h.reg.viewers {
			if !v.Conn.Open() {
				stale = append(stale, v.Conn)
				rep.Viewers++
			}
		}
		for c := range h.reg.chat {
			if !c.Open() {
				stale = append(stale, c)
				rep.ChatMembers++
			}
		}

		out := make([]Result, 0, len(stale))
		for _, c := range stale {
			out = append(out, Result{Conn: c, Err: ErrConnNotOpen})
		}
		return out
	})
	h.apply(func() []Result {
		if h.lastCount == h.reg.viewerCount() {
			return nil
		}
		rep.CountRebroadcast = true
		return h.broadcastCountLocked()
	})
	rep.RateRecords = h.moderator.Sweep()
	return rep
}
