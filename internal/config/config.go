// Package config holds the session configuration shared by the CLI, the
// signaling manager and the negotiation adapter.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the party's position in the two-party exchange. It is derived from
// the session history, never chosen.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// ICE transport policies.
const (
	ICETransportsAll   = "all"
	ICETransportsRelay = "relay"
)

// DefaultSTUNServers are used when no STUN server is configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Session is the routing key of every wire message. Immutable once built.
type Session struct {
	RoomID   string
	ClientID string
}

// ICEServer is one STUN or TURN server entry.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Config stores everything a peer needs to join a room.
type Config struct {
	Session Session

	// Messages holds the history the room server returned at join time.
	// Empty for the first party in a room; otherwise it contains the offer.
	Messages []string

	RelayHost     string // host[:port] of the relay WebSocket server
	RelayTLS      bool   // use wss:// and https:// towards the relay
	RoomServerURL string // base URL of the room server, e.g. http://localhost:8080

	ICEServers    []ICEServer
	ICETransports string // ICETransportsAll or ICETransportsRelay
}

// Role derives the party's role from the join history.
func (c Config) Role() Role {
	if len(c.Messages) == 0 {
		return RoleInitiator
	}
	return RoleResponder
}

// RelayOnly reports whether non-relay ICE candidates must be suppressed.
func (c Config) RelayOnly() bool {
	return c.ICETransports == ICETransportsRelay
}

// Validate checks that the fields required to reach the relay are present.
func (c Config) Validate() error {
	var errs []error
	if c.Session.RoomID == "" {
		errs = append(errs, errors.New("missing room ID"))
	}
	if c.Session.ClientID == "" {
		errs = append(errs, errors.New("missing client ID"))
	}
	if c.RelayHost == "" {
		errs = append(errs, errors.New("missing relay host"))
	}
	if c.RoomServerURL == "" {
		errs = append(errs, errors.New("missing room server URL"))
	}
	switch c.ICETransports {
	case "", ICETransportsAll, ICETransportsRelay:
	default:
		errs = append(errs, fmt.Errorf("invalid ICE transports %q (want %q or %q)", c.ICETransports, ICETransportsAll, ICETransportsRelay))
	}
	for _, s := range c.ICEServers {
		for _, u := range s.URLs {
			if !strings.HasPrefix(u, "stun:") && !strings.HasPrefix(u, "turn:") && !strings.HasPrefix(u, "turns:") {
				errs = append(errs, fmt.Errorf("invalid ICE server URL %q", u))
			}
		}
	}
	return errors.Join(errs...)
}

// BuildICEServers assembles the ICE server list from CLI-style inputs: a STUN
// host (or the defaults when empty) and an optional TURN host with credential.
func BuildICEServers(stun, turn, turnUser, turnCredential string) []ICEServer {
	var servers []ICEServer
	if stun != "" {
		servers = append(servers, ICEServer{URLs: []string{"stun:" + strings.TrimPrefix(stun, "stun:")}})
	} else {
		servers = append(servers, ICEServer{URLs: DefaultSTUNServers})
	}
	if turn != "" {
		servers = append(servers, ICEServer{
			URLs:       []string{"turn:" + strings.TrimPrefix(turn, "turn:")},
			Username:   turnUser,
			Credential: turnCredential,
		})
	}
	return servers
}
