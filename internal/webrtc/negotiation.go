package webrtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/util"
)

// AddTrack attaches a local track to the connection.
func (p *PeerConnection) AddTrack(track webrtc.TrackLocal) error {
	if _, err := p.pc.AddTrack(track); err != nil {
		return fmt.Errorf("add %s track %s: %w", track.Kind(), track.ID(), err)
	}
	return nil
}

// CreateOffer generates an SDP offer. Like a browser offer created with
// OfferToReceiveAudio and OfferToReceiveVideo, it always asks for audio and
// video: kinds without a local track get a receive-only transceiver.
func (p *PeerConnection) CreateOffer() (protocol.SessionDescription, error) {
	if err := p.ensureReceivers(); err != nil {
		return protocol.SessionDescription{}, err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	return descriptionFromPion(offer)
}

// CreateAnswer generates an SDP answer to the applied remote offer.
func (p *PeerConnection) CreateAnswer() (protocol.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	return descriptionFromPion(answer)
}

// SetLocalDescription applies the local SDP.
func (p *PeerConnection) SetLocalDescription(desc protocol.SessionDescription) error {
	sd, err := descriptionToPion(desc)
	if err != nil {
		return err
	}
	return p.pc.SetLocalDescription(sd)
}

// SetRemoteDescription applies the remote SDP.
func (p *PeerConnection) SetRemoteDescription(desc protocol.SessionDescription) error {
	sd, err := descriptionToPion(desc)
	if err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(sd)
}

// AddICECandidate applies a remote ICE candidate.
func (p *PeerConnection) AddICECandidate(c protocol.Candidate) error {
	return p.pc.AddICECandidate(candidateToPion(c))
}

// RemoteOffersVideo reports whether the applied remote description sends
// video towards this side.
func (p *PeerConnection) RemoteOffersVideo() bool {
	desc := p.pc.RemoteDescription()
	if desc == nil {
		return false
	}
	return OffersVideo(desc.SDP)
}

func (p *PeerConnection) ensureReceivers() error {
	have := map[webrtc.RTPCodecType]bool{}
	for _, t := range p.pc.GetTransceivers() {
		have[t.Kind()] = true
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s receiver: %w", kind, err)
		}
		util.LogDebug("no local %s track; added receive-only transceiver", kind)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func descriptionToPion(desc protocol.SessionDescription) (webrtc.SessionDescription, error) {
	switch desc.Type {
	case protocol.KindOffer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: desc.SDP}, nil
	case protocol.KindAnswer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: desc.SDP}, nil
	}
	return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", desc.Type)
}

func descriptionFromPion(desc webrtc.SessionDescription) (protocol.SessionDescription, error) {
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		return protocol.SessionDescription{Type: protocol.KindOffer, SDP: desc.SDP}, nil
	case webrtc.SDPTypeAnswer:
		return protocol.SessionDescription{Type: protocol.KindAnswer, SDP: desc.SDP}, nil
	}
	return protocol.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", desc.Type.String())
}

func candidateToPion(c protocol.Candidate) webrtc.ICECandidateInit {
	label := uint16(c.Label)
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMLineIndex: &label,
	}
	if c.ID != "" {
		id := c.ID
		init.SDPMid = &id
	}
	return init
}

func candidateFromPion(init webrtc.ICECandidateInit) protocol.Candidate {
	c := protocol.Candidate{Candidate: init.Candidate}
	if init.SDPMLineIndex != nil {
		c.Label = int(*init.SDPMLineIndex)
	}
	if init.SDPMid != nil {
		c.ID = *init.SDPMid
	}
	return c
}
