package config

import (
	"strings"
	"testing"
)

func TestParseICEServersJSON(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersJSON(`[
	  {"urls": "stun:stun.example.com:3478"},
	  {"urls": [" turn:turn.example.com:3478?transport=udp ", ""], "username": "user", "credential": "pass"}
	]`, false)
	if err != nil {
		t.Fatalf("ParseICEServersJSON: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("stun urls = %#v", got)
	}
	if servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("stun server has credentials: %#v", servers[0])
	}
	if got := servers[1].URLs; len(got) != 1 || got[0] != "turn:turn.example.com:3478?transport=udp" {
		t.Fatalf("turn urls = %#v", got)
	}
	if cred, _ := servers[1].Credential.(string); servers[1].Username != "user" || cred != "pass" {
		t.Fatalf("turn credentials = %q/%#v", servers[1].Username, servers[1].Credential)
	}
}

func TestParseICEServersJSON_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "not json", raw: `{`, wantErr: ""},
		{name: "urls wrong type", raw: `[{"urls": 3}]`, wantErr: "urls"},
		{name: "missing urls", raw: `[{"urls": []}]`, wantErr: "iceServers[0]: missing urls"},
		{name: "bad scheme", raw: `[{"urls": "https://example.com"}]`, wantErr: "iceServers[0]"},
		{name: "turn without username", raw: `[{"urls": "turn:t.example.com", "credential": "c"}]`, wantErr: "require username"},
		{name: "turn without credential", raw: `[{"urls": "turns:t.example.com", "username": "u"}]`, wantErr: "require credential"},
		{name: "second entry reported", raw: `[{"urls": "stun:s.example.com"}, {"urls": "turn:t.example.com"}]`, wantErr: "iceServers[1]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseICEServersJSON(tc.raw, false)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%q, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseICEServersJSON_TURNRESTDropsStaticCreds(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`[{"urls": ["turn:turn.example.com:3478?transport=udp"]}]`,
		`[{"urls": ["turn:turn.example.com:3478"], "username": "static", "credential": "static"}]`,
	} {
		servers, err := ParseICEServersJSON(raw, true)
		if err != nil {
			t.Fatalf("ParseICEServersJSON(%s): %v", raw, err)
		}
		if len(servers) != 1 || servers[0].Username != "" || servers[0].Credential != nil {
			t.Fatalf("servers=%#v, want one TURN server without credentials", servers)
		}
	}
}

func TestParseICEServersFromConvenienceEnv(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersFromConvenienceEnv(
		"stun:a.example.com:3478, stun:b.example.com:3478,",
		"turn:turn.example.com:3478?transport=udp",
		"user",
		"pass",
		false,
	)
	if err != nil {
		t.Fatalf("ParseICEServersFromConvenienceEnv: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if got := servers[0].URLs; len(got) != 2 || got[1] != "stun:b.example.com:3478" {
		t.Fatalf("stun urls = %#v", got)
	}
	if servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("stun server has credentials: %#v", servers[0])
	}
	if cred, _ := servers[1].Credential.(string); servers[1].Username != "user" || cred != "pass" {
		t.Fatalf("turn credentials = %q/%#v", servers[1].Username, servers[1].Credential)
	}
}

func TestParseICEServersFromConvenienceEnv_TURNCredentials(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		username  string
		cred      string
		turnREST  bool
		wantError bool
	}{
		{name: "static creds", username: "u", cred: "c"},
		{name: "missing credential", username: "u", wantError: true},
		{name: "missing both", wantError: true},
		{name: "turn rest", turnREST: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			servers, err := ParseICEServersFromConvenienceEnv("", "turn:turn.example.com:3478", tc.username, tc.cred, tc.turnREST)
			if tc.wantError {
				if err == nil {
					t.Fatalf("expected error, got %#v", servers)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(servers) != 1 {
				t.Fatalf("got %d servers, want 1", len(servers))
			}
			if tc.turnREST && (servers[0].Username != "" || servers[0].Credential != nil) {
				t.Fatalf("turn rest server kept static credentials: %#v", servers[0])
			}
		})
	}
}

func TestICESettings_JSONWinsOverConvenienceValues(t *testing.T) {
	t.Parallel()

	servers, err := iceSettings{
		JSON:     `[{"urls": "stun:json.example.com"}]`,
		STUNURLs: "stun:env.example.com",
		TURNURLs: "turn:env.example.com",
	}.servers(false)
	if err != nil {
		t.Fatalf("servers: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:json.example.com" {
		t.Fatalf("servers=%#v, want only the JSON entry", servers)
	}

	_, err = iceSettings{JSON: `[{"urls": "turn:json.example.com"}]`}.servers(false)
	if err == nil || !strings.HasPrefix(err.Error(), envICEServersJSON) {
		t.Fatalf("err=%v, want it prefixed with %s", err, envICEServersJSON)
	}
}
