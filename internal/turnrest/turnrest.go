// Package turnrest mints short-lived TURN credentials in the coturn "REST
// API" format (draft-uberti-behave-turn-rest):
//
//	username   = <unix_expiry>:<prefix>:<session_id>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// coturn verifies these with `use-auth-secret` and the same shared secret.
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

var (
	ErrMissingSecret = errors.New("turn rest: shared secret is required")
	ErrInvalidTTL    = errors.New("turn rest: ttl must be positive")
	ErrInvalidPrefix = errors.New("turn rest: username prefix must be non-empty and must not contain ':'")
	ErrInvalidID     = errors.New("turn rest: session id must be non-empty and must not contain ':'")
)

type GeneratorConfig struct {
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string

	// Now and NewSessionID default to time.Now and a random UUID.
	Now          func() time.Time
	NewSessionID func() string
}

// Generator is safe for concurrent use.
type Generator struct {
	secret       []byte
	ttl          time.Duration
	prefix       string
	now          func() time.Time
	newSessionID func() string
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.TTL < time.Second {
		return nil, ErrInvalidTTL
	}
	if cfg.UsernamePrefix == "" || strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, ErrInvalidPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = uuid.NewString
	}
	return &Generator{
		secret:       []byte(cfg.SharedSecret),
		ttl:          cfg.TTL,
		prefix:       cfg.UsernamePrefix,
		now:          cfg.Now,
		newSessionID: cfg.NewSessionID,
	}, nil
}

type Credentials struct {
	Username   string    `json:"username"`
	Credential string    `json:"credential"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ForSession mints credentials bound to sessionID, e.g. a viewer ID.
func (g *Generator) ForSession(sessionID string) (Credentials, error) {
	if sessionID == "" || strings.Contains(sessionID, ":") {
		return Credentials{}, ErrInvalidID
	}
	expires := g.now().UTC().Add(g.ttl).Truncate(time.Second)
	username := fmt.Sprintf("%d:%s:%s", expires.Unix(), g.prefix, sessionID)
	return Credentials{
		Username:   username,
		Credential: sign(g.secret, username),
		ExpiresAt:  expires,
	}, nil
}

// New mints credentials for a fresh random session.
func (g *Generator) New() (Credentials, error) {
	return g.ForSession(g.newSessionID())
}

// Apply returns a copy of servers with creds set on every entry that lists a
// turn: or turns: URL. STUN-only entries are left untouched.
func Apply(servers []webrtc.ICEServer, creds Credentials) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(servers))
	for i, s := range servers {
		out[i] = s
		if hasTURNURL(s) {
			out[i].Username = creds.Username
			out[i].Credential = creds.Credential
		}
	}
	return out
}

func hasTURNURL(s webrtc.ICEServer) bool {
	for _, u := range s.URLs {
		u = strings.ToLower(strings.TrimSpace(u))
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
