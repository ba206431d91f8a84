package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "AERO_ICE_SERVERS_JSON"

	envStunURLs       = "AERO_STUN_URLS"
	envTurnURLs       = "AERO_TURN_URLS"
	envTurnUsername   = "AERO_TURN_USERNAME"
	envTurnCredential = "AERO_TURN_CREDENTIAL"
)

// iceSettings holds the raw ICE inputs. JSON wins over the convenience
// STUN/TURN settings when both are given.
type iceSettings struct {
	JSON           string
	STUNURLs       string
	TURNURLs       string
	TURNUsername   string
	TURNCredential string
}

// servers resolves the settings into the list handed to browsers. When
// turnREST is set, credentials are minted per request and static TURN
// credentials are neither required nor kept.
func (s iceSettings) servers(turnREST bool) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(s.JSON); raw != "" {
		servers, err := ParseICEServersJSON(raw, turnREST)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}
	return ParseICEServersFromConvenienceEnv(s.STUNURLs, s.TURNURLs, s.TURNUsername, s.TURNCredential, turnREST)
}

// iceServerEntry mirrors the browser RTCIceServer dictionary, where urls may
// be a single string or a list.
type iceServerEntry struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential string  `json:"credential,omitempty"`
}

type urlList []string

func (l *urlList) UnmarshalJSON(b []byte) error {
	var one string
	if json.Unmarshal(b, &one) == nil {
		*l = urlList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("urls: want string or array of strings")
	}
	*l = many
	return nil
}

// ParseICEServersJSON parses an RTCIceServer list.
func ParseICEServersJSON(raw string, turnREST bool) ([]webrtc.ICEServer, error) {
	var entries []iceServerEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		server, err := buildICEServer(compact(e.URLs), e.Username, e.Credential, turnREST)
		if err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

// ParseICEServersFromConvenienceEnv builds at most two servers: one for the
// comma-separated STUN URLs and one for the TURN URLs with their shared
// username and credential.
func ParseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential string, turnREST bool) ([]webrtc.ICEServer, error) {
	var out []webrtc.ICEServer

	if urls := splitCommaSeparated(stunURLs); len(urls) > 0 {
		server, err := buildICEServer(urls, "", "", false)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		out = append(out, server)
	}

	if urls := splitCommaSeparated(turnURLs); len(urls) > 0 {
		hasUser := strings.TrimSpace(turnUsername) != ""
		hasCred := strings.TrimSpace(turnCredential) != ""
		if !turnREST && !(hasUser && hasCred) {
			return nil, fmt.Errorf("%s and %s must both be set when %s is set", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		server, err := buildICEServer(urls, turnUsername, turnCredential, turnREST)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		out = append(out, server)
	}

	return out, nil
}

// buildICEServer validates each URL and attaches static credentials. TURN
// URLs need a username and credential unless turnREST supplies them later,
// in which case any static ones are discarded.
func buildICEServer(urls []string, username, credential string, turnREST bool) (webrtc.ICEServer, error) {
	if len(urls) == 0 {
		return webrtc.ICEServer{}, errors.New("missing urls")
	}

	needsCreds := false
	for _, raw := range urls {
		uri, err := stun.ParseURI(raw)
		if err != nil {
			return webrtc.ICEServer{}, fmt.Errorf("invalid url %q: %w", raw, err)
		}
		switch uri.Scheme {
		case stun.SchemeTypeTURN, stun.SchemeTypeTURNS:
			needsCreds = true
		case stun.SchemeTypeSTUN, stun.SchemeTypeSTUNS:
		default:
			return webrtc.ICEServer{}, fmt.Errorf("unsupported url scheme: %q", raw)
		}
	}

	username = strings.TrimSpace(username)
	credential = strings.TrimSpace(credential)
	server := webrtc.ICEServer{URLs: urls}
	switch {
	case needsCreds && turnREST:
		return server, nil
	case needsCreds && username == "":
		return webrtc.ICEServer{}, errors.New("turn urls require username")
	case needsCreds && credential == "":
		return webrtc.ICEServer{}, errors.New("turn urls require credential")
	}
	server.Username = username
	if credential != "" {
		server.Credential = credential
	}
	return server, nil
}

func splitCommaSeparated(value string) []string {
	return compact(strings.Split(value, ","))
}

// compact trims every entry and drops the empty ones.
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
