package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is returned when a payload is not a valid signaling
	// message or envelope.
	ErrMalformedMessage = errors.New("malformed signaling message")
	// ErrUnknownMessageType is returned for a well-formed message whose type
	// tag is not one of offer, answer, candidate or bye.
	ErrUnknownMessageType = errors.New("unknown signaling message type")
)

// wireMessage is the flat JSON shape shared by all message kinds.
type wireMessage struct {
	Type      Kind   `json:"type"`
	SDP       string `json:"sdp,omitempty"`
	Label     *int   `json:"label,omitempty"`
	ID        string `json:"id,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}

// Encode serializes a Message into its JSON wire form.
func Encode(msg Message) ([]byte, error) {
	var w wireMessage
	switch m := msg.(type) {
	case Offer:
		w = wireMessage{Type: KindOffer, SDP: m.SDP}
	case Answer:
		w = wireMessage{Type: KindAnswer, SDP: m.SDP}
	case Candidate:
		label := m.Label
		w = wireMessage{Type: KindCandidate, Label: &label, ID: m.ID, Candidate: m.Candidate}
	case Bye:
		w = wireMessage{Type: KindBye}
	default:
		return nil, fmt.Errorf("encode %T: %w", msg, ErrUnknownMessageType)
	}
	return json.Marshal(w)
}

// Decode parses a JSON wire message.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch w.Type {
	case KindOffer:
		return Offer{SDP: w.SDP}, nil
	case KindAnswer:
		return Answer{SDP: w.SDP}, nil
	case KindCandidate:
		if w.Candidate == "" {
			return nil, fmt.Errorf("%w: candidate message without candidate", ErrMalformedMessage)
		}
		c := Candidate{ID: w.ID, Candidate: w.Candidate}
		if w.Label != nil {
			c.Label = *w.Label
		}
		return c, nil
	case KindBye:
		return Bye{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, w.Type)
	}
}
