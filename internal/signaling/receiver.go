package signaling

import (
	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/util"
	rtc "github.com/1ureka/rtcsignal/internal/webrtc"
)

// receive handles a message from the relay channel. Until the negotiation
// object exists, messages are held in arrival order.
func (m *Manager) receive(msg protocol.Message) {
	if m.state.load() == Closed {
		return
	}
	if m.pc == nil {
		util.LogDebug("negotiation object not ready; queueing %s", msg.Kind())
		m.pendingInbound.Push(msg)
		return
	}
	m.classify(msg)
}

// classify applies the side effects of one inbound signaling message.
func (m *Manager) classify(msg protocol.Message) {
	if m.state.load() == Closed {
		return
	}
	switch msg := msg.(type) {
	case protocol.Offer, protocol.Answer:
		desc, _ := protocol.Description(msg)
		m.setRemote(desc)

	case protocol.Candidate:
		typ := rtc.CandidateType(msg.Candidate)
		m.publish(TopicICECandidate, CandidateEvent{Type: typ, Local: false, Candidate: msg.Candidate})

		// Candidates are applied after the remote description they belong to.
		if !m.remoteRequested {
			util.LogDebug("holding remote %s candidate until the remote description is set", typ)
			m.deferredCandidates = append(m.deferredCandidates, msg)
			return
		}
		m.addRemoteCandidate(msg)

	case protocol.Bye:
		util.LogInfo("remote hung up")
		m.publish(TopicRemoteHangup, nil)
		m.close(false)

	default:
		util.LogError("unexpected message type %q", msg.Kind())
	}
}
