// Package moderation implements the chat admission checks: authorization,
// mute and kick enforcement, per-sender rate limiting, duplicate suppression
// and profanity masking.
package moderation

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/ratelimit"
)

// Reason is the failure kind reported back to the sender in the chat ack.
type Reason string

const (
	ReasonEmptyMessage  Reason = "empty_message"
	ReasonNotAuthorized Reason = "not_authorized"
	ReasonKicked        Reason = "kicked"
	ReasonMuted         Reason = "muted"
	ReasonTooFast       Reason = "too_fast"
	ReasonDuplicate     Reason = "duplicate"
	ReasonTooLong       Reason = "too_long"
)

const (
	DefaultMinInterval     = 1200 * time.Millisecond
	DefaultDuplicateWindow = 6000 * time.Millisecond
	DefaultMaxRunes        = 500
)

// DefaultTerms is the built-in sensitive word list used when none is
// configured.
var DefaultTerms = []string{"fuck", "shit", "bitch", "asshole", "bastard", "cunt", "dick"}

type Config struct {
	MinInterval     time.Duration
	DuplicateWindow time.Duration
	// MaxRunes bounds message length after trimming. <= 0 disables the check.
	MaxRunes int
	Terms    []string
	Clock    ratelimit.Clock
}

// Submission is one chat message as seen by the pipeline.
type Submission struct {
	// Sender is the moderation identity: the viewer ID for signaling-registered
	// viewers, otherwise the chat username.
	Sender string
	// ClaimsBroadcaster is true when the message says role=broadcaster.
	ClaimsBroadcaster bool
	// IsBroadcaster is true when the sending connection is the registered
	// broadcaster.
	IsBroadcaster bool
	Text          string
}

type Decision struct {
	Reason Reason
	// Text is the masked message; empty on rejection.
	Text string
	At   time.Time
}

func (d Decision) OK() bool { return d.Reason == "" }

type record struct {
	lastText   string
	lastSentAt time.Time
}

// Moderator holds ModerationState. Check and the mute/kick mutators share one
// lock, so each Check observes a single consistent moderation state.
type Moderator struct {
	minInterval     time.Duration
	duplicateWindow time.Duration
	maxRunes        int
	clock           ratelimit.Clock
	masker          *Masker

	mu      sync.Mutex
	muted   map[string]struct{}
	kicked  map[string]struct{}
	records map[string]record
}

func New(cfg Config) *Moderator {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = DefaultDuplicateWindow
	}
	if cfg.Terms == nil {
		cfg.Terms = DefaultTerms
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}
	return &Moderator{
		minInterval:     cfg.MinInterval,
		duplicateWindow: cfg.DuplicateWindow,
		maxRunes:        cfg.MaxRunes,
		clock:           cfg.Clock,
		masker:          NewMasker(cfg.Terms),
		muted:           make(map[string]struct{}),
		kicked:          make(map[string]struct{}),
		records:         make(map[string]record),
	}
}

// Check runs the pipeline in order; the first failing check wins. An
// accepted viewer message updates the sender's rate record.
func (m *Moderator) Check(s Submission) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	reject := func(r Reason) Decision { return Decision{Reason: r, At: now} }

	if strings.TrimSpace(s.Text) == "" {
		return reject(ReasonEmptyMessage)
	}
	if s.ClaimsBroadcaster && !s.IsBroadcaster {
		return reject(ReasonNotAuthorized)
	}

	viewer := !(s.ClaimsBroadcaster && s.IsBroadcaster)
	if viewer {
		if _, ok := m.kicked[s.Sender]; ok {
			return reject(ReasonKicked)
		}
		if _, ok := m.muted[s.Sender]; ok {
			return reject(ReasonMuted)
		}
		if rec, ok := m.records[s.Sender]; ok {
			elapsed := now.Sub(rec.lastSentAt)
			if elapsed < m.minInterval {
				return reject(ReasonTooFast)
			}
			if s.Text == rec.lastText && elapsed < m.duplicateWindow {
				return reject(ReasonDuplicate)
			}
		}
	}
	if m.maxRunes > 0 && utf8.RuneCountInString(strings.TrimSpace(s.Text)) > m.maxRunes {
		return reject(ReasonTooLong)
	}

	if viewer {
		m.records[s.Sender] = record{lastText: s.Text, lastSentAt: now}
	}
	return Decision{Text: m.masker.Mask(s.Text), At: now}
}

func (m *Moderator) Mute(id string) {
	m.mu.Lock()
	m.muted[id] = struct{}{}
	m.mu.Unlock()
}

func (m *Moderator) Unmute(id string) {
	m.mu.Lock()
	delete(m.muted, id)
	m.mu.Unlock()
}

// Kick blocks id from chat entirely. It does not close any connection.
func (m *Moderator) Kick(id string) {
	m.mu.Lock()
	m.kicked[id] = struct{}{}
	m.mu.Unlock()
}

func (m *Moderator) Unkick(id string) {
	m.mu.Lock()
	delete(m.kicked, id)
	m.mu.Unlock()
}

func (m *Moderator) IsMuted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.muted[id]
	return ok
}

func (m *Moderator) IsKicked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.kicked[id]
	return ok
}

// Sweep drops rate records that can no longer affect a decision and returns
// how many were removed.
func (m *Moderator) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	horizon := max(m.minInterval, m.duplicateWindow)
	now := m.clock.Now()
	removed := 0
	for id, rec := range m.records {
		if now.Sub(rec.lastSentAt) >= horizon {
			delete(m.records, id)
			removed++
		}
	}
	return removed
}
