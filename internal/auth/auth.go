package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/config"
)

type Verifier interface {
	Verify(credential string) error
}

// NewVerifier returns the verifier for cfg.AuthMode. It returns a nil
// Verifier for AuthModeNone; callers treat nil as "admit everyone".
func NewVerifier(cfg config.Config) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeNone, "":
		return nil, nil
	case config.AuthModeAPIKey:
		return APIKeyVerifier{Expected: cfg.APIKey}, nil
	case config.AuthModeJWT:
		return NewJWTVerifier(cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

var ErrMissingCredentials = errors.New("missing credentials")

// CredentialFromQuery reads the credential from the WebSocket URL. Browsers
// cannot set headers on a WebSocket handshake, so this is the usual path.
// Each mode prefers its own parameter but accepts the other.
func CredentialFromQuery(mode config.AuthMode, q url.Values) (string, error) {
	switch mode {
	case config.AuthModeNone:
		return "", nil
	case config.AuthModeAPIKey:
		return firstNonEmpty(q.Get("apiKey"), q.Get("token"))
	case config.AuthModeJWT:
		return firstNonEmpty(q.Get("token"), q.Get("apiKey"))
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
}

// CredentialFromRequest checks the Authorization and X-API-Key headers before
// falling back to the query string.
func CredentialFromRequest(mode config.AuthMode, r *http.Request) (string, error) {
	if mode == config.AuthModeNone {
		return "", nil
	}
	if cred := credentialFromHeaders(r.Header); cred != "" {
		return cred, nil
	}
	return CredentialFromQuery(mode, r.URL.Query())
}

func credentialFromHeaders(h http.Header) string {
	if raw := strings.TrimSpace(h.Get("Authorization")); raw != "" {
		scheme, value, ok := strings.Cut(raw, " ")
		if ok {
			switch strings.ToLower(scheme) {
			case "bearer", "apikey":
				if v := strings.TrimSpace(value); v != "" {
					return v
				}
			}
		}
	}
	return strings.TrimSpace(h.Get("X-API-Key"))
}

func firstNonEmpty(values ...string) (string, error) {
	for _, v := range values {
		if v != "" {
			return v, nil
		}
	}
	return "", ErrMissingCredentials
}
