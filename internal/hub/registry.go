package hub

import (
	"sort"
	"time"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/identity"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/protocol"
)

type BroadcasterSession struct {
	ID        string
	Conn      Conn
	UserInfo  protocol.UserInfo
	StartedAt time.Time
}

type ViewerSession struct {
	ID         string
	Conn       Conn
	UserInfo   protocol.UserInfo
	StreamerID string
	JoinedAt   time.Time

	// ghost is the allocated anonymous name, released when the session is
	// removed. Empty for authenticated viewers.
	ghost string
}

// Ghost reports whether the viewer holds an allocated anonymous name.
func (v *ViewerSession) Ghost() bool { return v.ghost != "" }

type ChatIdentity struct {
	Role     protocol.Role
	Username string
}

// registry is the connection registry. It is not safe for concurrent use;
// the owning Hub serializes access.
type registry struct {
	ghosts *identity.GhostPool

	broadcaster *BroadcasterSession
	viewers     map[string]*ViewerSession
	// viewerOf maps a connection to the viewer ID it registered.
	viewerOf map[Conn]string
	chat     map[Conn]ChatIdentity
}

func newRegistry(ghosts *identity.GhostPool) *registry {
	return &registry{
		ghosts:   ghosts,
		viewers:  make(map[string]*ViewerSession),
		viewerOf: make(map[Conn]string),
		chat:     make(map[Conn]ChatIdentity),
	}
}

// registerBroadcaster replaces any current broadcaster and returns the one it
// superseded. The superseded connection is left open.
func (r *registry) registerBroadcaster(conn Conn, id string, info protocol.UserInfo, now time.Time) (cur, prev *BroadcasterSession) {
	prev = r.broadcaster
	r.broadcaster = &BroadcasterSession{ID: id, Conn: conn, UserInfo: info, StartedAt: now}
	return r.broadcaster, prev
}

func (r *registry) unregisterBroadcaster() *BroadcasterSession {
	b := r.broadcaster
	r.broadcaster = nil
	return b
}

func (r *registry) isBroadcaster(conn Conn) bool {
	return r.broadcaster != nil && r.broadcaster.Conn == conn
}

// registerViewer stores the session for viewerID, overwriting a previous one
// as a reconnect. Anonymous viewers get a ghost name; a reconnecting
// anonymous viewer keeps the one it already had.
func (r *registry) registerViewer(conn Conn, viewerID, streamerID string, info *protocol.UserInfo, now time.Time) *ViewerSession {
	prev := r.viewers[viewerID]

	if old, ok := r.viewerOf[conn]; ok && old != viewerID {
		if v := r.viewers[old]; v != nil && v.Conn == conn {
			r.unregisterViewer(old)
		}
	}

	v := &ViewerSession{ID: viewerID, Conn: conn, StreamerID: streamerID, JoinedAt: now}
	switch {
	case info != nil && info.IsLoggedIn:
		v.UserInfo = *info
		if prev != nil && prev.ghost != "" {
			_ = r.ghosts.Release(prev.ghost)
		}
	default:
		if prev != nil && prev.ghost != "" {
			v.ghost = prev.ghost
		} else {
			v.ghost = r.ghosts.Allocate()
		}
		v.UserInfo = protocol.UserInfo{DisplayName: v.ghost}
		if info != nil {
			v.UserInfo.AvatarURL = info.AvatarURL
		}
	}

	if prev != nil && prev.Conn != conn && r.viewerOf[prev.Conn] == viewerID {
		delete(r.viewerOf, prev.Conn)
	}
	r.viewers[viewerID] = v
	r.viewerOf[conn] = viewerID
	return v
}

func (r *registry) unregisterViewer(viewerID string) *ViewerSession {
	v, ok := r.viewers[viewerID]
	if !ok {
		return nil
	}
	delete(r.viewers, viewerID)
	if r.viewerOf[v.Conn] == viewerID {
		delete(r.viewerOf, v.Conn)
	}
	if v.ghost != "" {
		_ = r.ghosts.Release(v.ghost)
	}
	return v
}

func (r *registry) lookupViewer(viewerID string) (*ViewerSession, bool) {
	v, ok := r.viewers[viewerID]
	return v, ok
}

// boundViewer returns the session conn registered, if conn still owns it.
func (r *registry) boundViewer(conn Conn) (*ViewerSession, bool) {
	id, ok := r.viewerOf[conn]
	if !ok {
		return nil, false
	}
	v, ok := r.viewers[id]
	if !ok || v.Conn != conn {
		return nil, false
	}
	return v, true
}

func (r *registry) viewerCount() int {
	return len(r.viewers)
}

// viewersByJoin returns the sessions ordered by join time, then ID.
func (r *registry) viewersByJoin() []*ViewerSession {
	out := make([]*ViewerSession, 0, len(r.viewers))
	for _, v := range r.viewers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *registry) joinChat(conn Conn, ident ChatIdentity) {
	r.chat[conn] = ident
}

func (r *registry) leaveChat(conn Conn) bool {
	if _, ok := r.chat[conn]; !ok {
		return false
	}
	delete(r.chat, conn)
	return true
}
