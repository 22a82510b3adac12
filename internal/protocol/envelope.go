package protocol

import (
	"encoding/json"
	"fmt"
)

// Relay commands carried in the cmd field of client → relay envelopes.
const (
	CmdRegister = "register"
	CmdSend     = "send"
)

// Envelope is a frame on the persistent relay connection. Client → relay
// frames set Cmd; relay → client frames carry only Msg (and Error when the
// relay rejects something).
type Envelope struct {
	Cmd      string `json:"cmd,omitempty"`
	RoomID   string `json:"roomID,omitempty"`
	ClientID string `json:"clientID,omitempty"`
	Msg      string `json:"msg,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RegisterEnvelope binds a connection to a room and client.
func RegisterEnvelope(roomID, clientID string) ([]byte, error) {
	return json.Marshal(Envelope{Cmd: CmdRegister, RoomID: roomID, ClientID: clientID})
}

// SendEnvelope wraps a message for relaying to the other peer. The message is
// JSON-encoded a second time into the msg string.
func SendEnvelope(msg Message) ([]byte, error) {
	inner, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Cmd: CmdSend, Msg: string(inner)})
}

// DeliveryEnvelope wraps an already-encoded message for delivery to a client.
func DeliveryEnvelope(msg string) ([]byte, error) {
	return json.Marshal(Envelope{Msg: msg})
}

// ErrorEnvelope reports a relay-side failure to a client.
func ErrorEnvelope(reason string) ([]byte, error) {
	return json.Marshal(Envelope{Error: reason})
}

// DecodeEnvelope parses a relay frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: envelope: %v", ErrMalformedMessage, err)
	}
	return env, nil
}
