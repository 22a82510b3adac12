package signaling

import (
	"github.com/1ureka/rtcsignal/internal/config"
	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/util"
	rtc "github.com/1ureka/rtcsignal/internal/webrtc"
)

// setLocalAndSend applies a freshly created description and, once applied,
// delivers it to the peer. The initiator's offer goes to the room server,
// which hands it to the responder at join time; the responder's answer goes
// through the relay.
func (m *Manager) setLocalAndSend(desc protocol.SessionDescription) {
	negotiate(m, "set local description", func(pc PeerConnection) (struct{}, error) {
		return struct{}{}, pc.SetLocalDescription(desc)
	}, func(struct{}) {
		msg, ok := protocol.FromDescription(desc)
		if !ok {
			util.LogError("cannot send %q description", desc.Type)
			return
		}
		if m.role == config.RoleInitiator {
			m.ch.DeliverViaSecondary(msg)
		} else {
			m.ch.DeliverViaPrimary(msg)
		}
	})
}

// onLocalCandidate relays a gathered candidate. Relay-only sessions suppress
// every other candidate type entirely.
func (m *Manager) onLocalCandidate(c *protocol.Candidate) {
	if c == nil {
		util.LogDebug("end of candidates")
		return
	}

	typ := rtc.CandidateType(c.Candidate)
	if m.cfg.RelayOnly() && typ != rtc.CandidateRelay {
		util.LogDebug("suppressing local %s candidate", typ)
		return
	}
	m.ch.Send(*c)
	m.publish(TopicICECandidate, CandidateEvent{Type: typ, Local: true, Candidate: c.Candidate})
}

// watch registers the negotiation object's event handlers. Each event is
// handled on the loop, and only while pc is still the current object.
func (m *Manager) watch(pc PeerConnection) {
	on := func(fn func()) {
		m.post(func() {
			if m.pc != pc {
				return
			}
			fn()
		})
	}

	pc.OnICECandidate(func(c *protocol.Candidate) {
		on(func() { m.onLocalCandidate(c) })
	})
	pc.OnStreamAdded(func(s rtc.Stream) {
		on(func() {
			util.LogInfo("remote %s stream added: %s", s.Kind, s.ID)
			m.publish(TopicRemoteStream, s)
			m.activate()
		})
	})
	pc.OnStreamRemoved(func(s rtc.Stream) {
		on(func() {
			util.LogInfo("remote %s stream removed: %s", s.Kind, s.ID)
			m.publish(TopicRemoteStreamRemoved, s)
		})
	})
	pc.OnSignalingStateChange(func(state string) {
		on(func() {
			util.LogDebug("signaling state changed to: %s", state)
			m.publish(TopicSignalingState, state)
		})
	})
	pc.OnICEConnectionStateChange(func(state string) {
		on(func() {
			util.LogDebug("ICE connection state changed to: %s", state)
			m.publish(TopicICEState, state)
		})
	})
}
