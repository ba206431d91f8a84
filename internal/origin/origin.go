// Package origin normalises browser Origin headers and applies the service's
// cross-origin policy to HTTP and WebSocket requests.
package origin

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Null is the opaque origin sent by sandboxed frames and file:// pages.
const Null = "null"

// NormalizeHeader validates a browser Origin header and returns it as
// scheme://host[:port] (lower-case, default port dropped) together with the
// host[:port] part used for same-host comparison. "null" is accepted and
// returned as-is with an empty host.
func NormalizeHeader(header string) (normalized, host string, ok bool) {
	header = strings.TrimSpace(header)
	switch header {
	case "":
		return "", "", false
	case Null:
		return Null, "", true
	}

	u, err := url.Parse(header)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}
	host, ok = canonicalAuthority(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// FromRequest normalises r's Origin header. present is false when the header
// is absent, which is the case for same-origin navigations and non-browser
// clients.
func FromRequest(r *http.Request) (normalized, host string, present, ok bool) {
	raw := strings.TrimSpace(r.Header.Get("Origin"))
	if raw == "" {
		return "", "", false, true
	}
	normalized, host, ok = NormalizeHeader(raw)
	return normalized, host, true, ok
}

// IsAllowed reports whether a normalised origin may call a server reached as
// requestHost.
//
// A non-empty allow-list is matched literally ("*" matches everything).
// Without one only same-host origins pass. The scheme is not compared because
// TLS is usually terminated by a proxy in front of the service.
func IsAllowed(normalized, originHost, requestHost string, allowed []string) bool {
	if len(allowed) > 0 {
		for _, a := range allowed {
			if a == "*" || a == normalized {
				return true
			}
		}
		return false
	}

	scheme, _, found := strings.Cut(normalized, "://")
	if !found || (scheme != "http" && scheme != "https") {
		return false
	}
	reqHost, ok := canonicalAuthority(strings.TrimSpace(requestHost), scheme)
	return ok && reqHost == originHost
}

// canonicalAuthority lower-cases host[:port], validates the port, drops the
// scheme's default port and re-brackets IPv6 literals.
func canonicalAuthority(authority, scheme string) (string, bool) {
	hostname, port, ok := splitAuthority(strings.ToLower(authority))
	if !ok || hostname == "" {
		return "", false
	}
	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = strconv.FormatUint(n, 10)
		if (scheme == "http" && n == 80) || (scheme == "https" && n == 443) {
			port = ""
		}
	}
	if port == "" {
		if strings.Contains(hostname, ":") {
			return "[" + hostname + "]", true
		}
		return hostname, true
	}
	return net.JoinHostPort(hostname, port), true
}

// splitAuthority splits host[:port]. IPv6 literals must be bracketed; the
// returned hostname has no brackets.
func splitAuthority(authority string) (hostname, port string, ok bool) {
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", "", false
		}
		rest := authority[end+1:]
		if rest == "" {
			return authority[1:end], "", true
		}
		p, found := strings.CutPrefix(rest, ":")
		if !found || p == "" {
			return "", "", false
		}
		return authority[1:end], p, true
	}
	switch strings.Count(authority, ":") {
	case 0:
		return authority, "", true
	case 1:
		hostname, port, _ = strings.Cut(authority, ":")
		if hostname == "" || port == "" {
			return "", "", false
		}
		return hostname, port, true
	default:
		return "", "", false
	}
}
