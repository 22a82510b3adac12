// Package protocol defines the signaling messages exchanged between peers and
// the envelopes that carry them over the relay connection.
package protocol

// Kind is the wire tag of a signaling message.
type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
	KindBye       Kind = "bye"
)

// Message is one of Offer, Answer, Candidate or Bye. The set is closed: only
// types in this package implement it.
type Message interface {
	Kind() Kind
	isMessage()
}

// Offer carries the initiator's session description.
type Offer struct {
	SDP string
}

// Answer carries the responder's session description.
type Answer struct {
	SDP string
}

// Candidate is a trickled ICE candidate.
type Candidate struct {
	Label     int    // media line index
	ID        string // media stream identification tag
	Candidate string // candidate attribute, e.g. "candidate:1 1 udp ... typ host"
}

// Bye ends the session.
type Bye struct{}

func (Offer) Kind() Kind     { return KindOffer }
func (Answer) Kind() Kind    { return KindAnswer }
func (Candidate) Kind() Kind { return KindCandidate }
func (Bye) Kind() Kind       { return KindBye }

func (Offer) isMessage()     {}
func (Answer) isMessage()    {}
func (Candidate) isMessage() {}
func (Bye) isMessage()       {}

// SessionDescription is the form in which descriptions travel between the
// signaling layer and the negotiation object.
type SessionDescription struct {
	Type Kind // KindOffer or KindAnswer
	SDP  string
}

// Description returns the session description carried by an Offer or Answer.
// ok is false for any other message.
func Description(msg Message) (desc SessionDescription, ok bool) {
	switch m := msg.(type) {
	case Offer:
		return SessionDescription{Type: KindOffer, SDP: m.SDP}, true
	case Answer:
		return SessionDescription{Type: KindAnswer, SDP: m.SDP}, true
	}
	return SessionDescription{}, false
}

// FromDescription wraps a session description in the matching message.
func FromDescription(desc SessionDescription) (Message, bool) {
	switch desc.Type {
	case KindOffer:
		return Offer{SDP: desc.SDP}, true
	case KindAnswer:
		return Answer{SDP: desc.SDP}, true
	}
	return nil, false
}
