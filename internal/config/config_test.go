package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Session:       Session{RoomID: "r1", ClientID: "c1"},
		RelayHost:     "localhost:8080",
		RoomServerURL: "http://localhost:8080",
	}
}

func TestRoleDerivedFromHistory(t *testing.T) {
	c := validConfig()
	if c.Role() != RoleInitiator {
		t.Errorf("empty history: role = %s, want initiator", c.Role())
	}

	c.Messages = []string{`{"type":"offer","sdp":"v=0"}`}
	if c.Role() != RoleResponder {
		t.Errorf("history with offer: role = %s, want responder", c.Role())
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := validConfig()
	c.Session.RoomID = ""
	c.ICETransports = "nohost"
	c.ICEServers = []ICEServer{{URLs: []string{"http://example.com"}}}

	err := c.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"missing room ID", "invalid ICE transports", "invalid ICE server URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestRelayOnly(t *testing.T) {
	c := validConfig()
	if c.RelayOnly() {
		t.Error("default config reports relay-only")
	}
	c.ICETransports = ICETransportsRelay
	if !c.RelayOnly() {
		t.Error("relay config does not report relay-only")
	}
}

func TestBuildICEServers(t *testing.T) {
	servers := BuildICEServers("", "", "", "")
	if len(servers) != 1 || len(servers[0].URLs) != len(DefaultSTUNServers) {
		t.Fatalf("default servers = %+v", servers)
	}

	servers = BuildICEServers("stun.example.org:3478", "turn.example.org:3478", "alice", "secret")
	if len(servers) != 2 {
		t.Fatalf("servers = %+v", servers)
	}
	if servers[0].URLs[0] != "stun:stun.example.org:3478" {
		t.Errorf("stun URL = %q", servers[0].URLs[0])
	}
	if servers[1].URLs[0] != "turn:turn.example.org:3478" || servers[1].Username != "alice" || servers[1].Credential != "secret" {
		t.Errorf("turn entry = %+v", servers[1])
	}
}
