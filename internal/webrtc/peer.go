// Package webrtc adapts a pion PeerConnection to the negotiation-object
// contract the signaling manager drives: description and candidate
// operations in the signaling package's own types, plus stream and state
// events reported as plain values.
package webrtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcsignal/internal/config"
	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/util"
)

// Stream describes one remote media track and the stream it belongs to.
type Stream struct {
	ID      string // media stream ID
	TrackID string
	Kind    string // "audio" or "video"
}

// PeerConnection wraps a pion PeerConnection.
type PeerConnection struct {
	pc *webrtc.PeerConnection

	mu              sync.Mutex
	onCandidate     func(*protocol.Candidate)
	onStreamAdded   func(Stream)
	onStreamRemoved func(Stream)
	onSignaling     func(string)
	onICEState      func(string)
}

// NewAPI builds a pion API whose internal logging goes through the pterm
// logger.
func NewAPI() *webrtc.API {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = util.PionLoggerFactory{}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// Configuration maps the session's ICE settings onto a pion configuration.
// Relay-only sessions also restrict pion's own gathering to relay candidates.
func Configuration(cfg config.Config) webrtc.Configuration {
	servers := cfg.ICEServers
	if len(servers) == 0 {
		servers = []config.ICEServer{{URLs: config.DefaultSTUNServers}}
	}

	c := webrtc.Configuration{ICETransportPolicy: webrtc.ICETransportPolicyAll}
	for _, s := range servers {
		entry := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			entry.Credential = s.Credential
		}
		c.ICEServers = append(c.ICEServers, entry)
	}
	if cfg.RelayOnly() {
		c.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	return c
}

// NewPeerConnection creates a PeerConnection for the session.
func NewPeerConnection(api *webrtc.API, cfg config.Config) (*PeerConnection, error) {
	configuration := Configuration(cfg)
	pc, err := api.NewPeerConnection(configuration)
	if err != nil {
		return nil, fmt.Errorf("create PeerConnection: %w", err)
	}
	util.LogInfo("created PeerConnection with %d ICE server(s), transport policy %s",
		len(configuration.ICEServers), configuration.ICETransportPolicy)

	p := &PeerConnection{pc: pc}
	p.wire()
	return p, nil
}

// wire forwards pion's callbacks to whichever handlers are registered at the
// time the event fires.
func (p *PeerConnection) wire() {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		p.mu.Lock()
		fn := p.onCandidate
		p.mu.Unlock()
		if fn == nil {
			return
		}
		if c == nil {
			fn(nil)
			return
		}
		cand := candidateFromPion(c.ToJSON())
		fn(&cand)
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s := Stream{ID: track.StreamID(), TrackID: track.ID(), Kind: track.Kind().String()}

		p.mu.Lock()
		added := p.onStreamAdded
		p.mu.Unlock()
		if added != nil {
			added(s)
		}

		go p.readTrack(s, func() error {
			_, _, err := track.ReadRTP()
			return err
		})
	})

	p.pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		p.mu.Lock()
		fn := p.onSignaling
		p.mu.Unlock()
		if fn != nil {
			fn(state.String())
		}
	})

	p.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		p.mu.Lock()
		fn := p.onICEState
		p.mu.Unlock()
		if fn != nil {
			fn(state.String())
		}
	})
}

// readTrack is the sole reader of a remote track. Packets are counted and
// discarded; the stream is reported removed once a read fails.
func (p *PeerConnection) readTrack(s Stream, read func() error) {
	for read() == nil {
		util.Stats.AddMediaPacket()
	}
	util.LogDebug("remote %s track %s ended", s.Kind, s.TrackID)

	p.mu.Lock()
	removed := p.onStreamRemoved
	p.mu.Unlock()
	if removed != nil {
		removed(s)
	}
}

// OnICECandidate registers the local-candidate handler. A nil candidate
// marks the end of gathering.
func (p *PeerConnection) OnICECandidate(fn func(*protocol.Candidate)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

// OnStreamAdded registers the remote-track handler.
func (p *PeerConnection) OnStreamAdded(fn func(Stream)) {
	p.mu.Lock()
	p.onStreamAdded = fn
	p.mu.Unlock()
}

// OnStreamRemoved registers the handler for remote tracks that ended.
func (p *PeerConnection) OnStreamRemoved(fn func(Stream)) {
	p.mu.Lock()
	p.onStreamRemoved = fn
	p.mu.Unlock()
}

// OnSignalingStateChange registers the signaling-state handler.
func (p *PeerConnection) OnSignalingStateChange(fn func(string)) {
	p.mu.Lock()
	p.onSignaling = fn
	p.mu.Unlock()
}

// OnICEConnectionStateChange registers the connectivity-state handler.
func (p *PeerConnection) OnICEConnectionStateChange(fn func(string)) {
	p.mu.Lock()
	p.onICEState = fn
	p.mu.Unlock()
}

// Close tears down the PeerConnection.
func (p *PeerConnection) Close() error {
	return p.pc.Close()
}
