package signaling

import (
	"errors"
	"sync/atomic"

	"github.com/1ureka/rtcsignal/internal/pubsub"
)

// Topics published on the Event Bus by the Manager.
const (
	// TopicICECandidate carries a CandidateEvent for every local candidate
	// sent and every remote candidate received.
	TopicICECandidate pubsub.Topic = "signaling.ice_candidate"
	// TopicICEState carries the new ICE connection state as a string.
	TopicICEState pubsub.Topic = "signaling.ice_state"
	// TopicSignalingState carries the new signaling state as a string.
	TopicSignalingState pubsub.Topic = "signaling.signaling_state"
	// TopicRemoteHangup has no payload.
	TopicRemoteHangup pubsub.Topic = "signaling.remote_hangup"
	// TopicRemoteStream carries the webrtc.Stream that was added.
	TopicRemoteStream pubsub.Topic = "signaling.remote_stream"
	// TopicRemoteStreamRemoved carries the webrtc.Stream that ended.
	TopicRemoteStreamRemoved pubsub.Topic = "signaling.remote_stream_removed"
	// TopicRemoteVideoPending has no payload. The remote description sends
	// video; wait for TopicRemoteStream.
	TopicRemoteVideoPending pubsub.Topic = "signaling.remote_video_pending"
	// TopicRemoteVideoNone has no payload. The remote side sends no video.
	TopicRemoteVideoNone pubsub.Topic = "signaling.remote_video_none"
	// TopicNegotiationFailure carries a NegotiationFailure.
	TopicNegotiationFailure pubsub.Topic = "signaling.negotiation_failure"
	// TopicSessionState carries the Manager's new State.
	TopicSessionState pubsub.Topic = "signaling.session_state"
)

// ErrNegotiationFailure wraps every error returned by the negotiation object.
var ErrNegotiationFailure = errors.New("negotiation failure")

// CandidateEvent describes an ICE candidate crossing the signaling channel.
type CandidateEvent struct {
	Type      string // host, srflx, prflx, relay or unknown
	Local     bool
	Candidate string
}

// NegotiationFailure reports a rejected negotiation-object operation.
type NegotiationFailure struct {
	Op  string
	Err error // wraps ErrNegotiationFailure
}

// State is the session lifecycle state of a Manager.
type State int32

const (
	Idle State = iota
	Negotiating
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Negotiating:
		return "negotiating"
	case Active:
		return "active"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type atomicState struct{ v atomic.Int32 }

func (a *atomicState) load() State   { return State(a.v.Load()) }
func (a *atomicState) store(s State) { a.v.Store(int32(s)) }
