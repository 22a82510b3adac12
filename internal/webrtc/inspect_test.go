package webrtc

import (
	"io"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcsignal/internal/config"
	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/util"
)

func TestCandidateType(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"candidate:1 1 udp 2130706431 192.168.1.2 54321 typ host", CandidateHost},
		{"candidate:2 1 udp 1694498815 198.51.100.7 50000 typ srflx raddr 192.168.1.2 rport 54321", CandidateSrflx},
		{"candidate:3 1 udp 41885439 203.0.113.5 3478 typ relay raddr 198.51.100.7 rport 50000", CandidateRelay},
		{"1 1 udp 2130706431 192.168.1.2 54321 typ host", CandidateHost},
		// Unparseable address; classified from the typ token.
		{"candidate:4 1 udp 1 not-an-address 9 typ relay", CandidateRelay},
		{"candidate:5 1 udp 1 10.0.0.1 9", CandidateUnknown},
		{"", CandidateUnknown},
	}
	for _, tt := range tests {
		if got := CandidateType(tt.raw); got != tt.want {
			t.Errorf("CandidateType(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

const sdpHeader = "v=0\r\n" +
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n"

const audioSection = "m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sendrecv\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

func videoSection(port, direction string) string {
	s := "m=video " + port + " UDP/TLS/RTP/SAVPF 96\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:1\r\n"
	if direction != "" {
		s += "a=" + direction + "\r\n"
	}
	return s + "a=rtpmap:96 VP8/90000\r\n"
}

func TestOffersVideo(t *testing.T) {
	tests := []struct {
		name string
		sdp  string
		want bool
	}{
		{"audio only", sdpHeader + audioSection, false},
		{"sendrecv video", sdpHeader + audioSection + videoSection("9", "sendrecv"), true},
		{"sendonly video", sdpHeader + videoSection("9", "sendonly"), true},
		{"default direction", sdpHeader + videoSection("9", ""), true},
		{"recvonly video", sdpHeader + audioSection + videoSection("9", "recvonly"), false},
		{"inactive video", sdpHeader + videoSection("9", "inactive"), false},
		{"rejected video", sdpHeader + videoSection("0", "sendrecv"), false},
		{"garbage", "not sdp", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OffersVideo(tt.sdp); got != tt.want {
				t.Errorf("OffersVideo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigurationRelayOnly(t *testing.T) {
	cfg := config.Config{
		ICETransports: config.ICETransportsRelay,
		ICEServers: []config.ICEServer{
			{URLs: []string{"turn:turn.example.org:3478"}, Username: "u", Credential: "secret"},
		},
	}
	c := Configuration(cfg)
	if c.ICETransportPolicy != webrtc.ICETransportPolicyRelay {
		t.Errorf("policy = %s, want relay", c.ICETransportPolicy)
	}
	if len(c.ICEServers) != 1 || c.ICEServers[0].Username != "u" || c.ICEServers[0].Credential != "secret" {
		t.Errorf("ICE servers = %+v", c.ICEServers)
	}

	if got := Configuration(config.Config{}); len(got.ICEServers) != 1 || got.ICETransportPolicy != webrtc.ICETransportPolicyAll {
		t.Errorf("default configuration = %+v", got)
	}
}

func TestCandidateConversionKeepsLabelAndMid(t *testing.T) {
	in := protocol.Candidate{Label: 1, ID: "video", Candidate: "candidate:1 1 udp 1 10.0.0.1 9 typ host"}
	init := candidateToPion(in)
	if *init.SDPMLineIndex != 1 || *init.SDPMid != "video" || init.Candidate != in.Candidate {
		t.Fatalf("candidateToPion = %+v", init)
	}
	if got := candidateFromPion(init); got != in {
		t.Fatalf("candidateFromPion = %+v, want %+v", got, in)
	}

	if init := candidateToPion(protocol.Candidate{Candidate: "x"}); init.SDPMid != nil || *init.SDPMLineIndex != 0 {
		t.Fatalf("empty mid should be omitted: %+v", init)
	}
}

func TestNewPeerConnectionOffersToReceiveAudioAndVideo(t *testing.T) {
	pc, err := NewPeerConnection(NewAPI(), config.Config{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	defer pc.Close()

	offer, err := pc.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Type != protocol.KindOffer {
		t.Fatalf("type = %s", offer.Type)
	}
	// Receive-only on our side means the offer itself does not send video.
	if OffersVideo(offer.SDP) {
		t.Fatal("offer without local tracks claims to send video")
	}
	if len(pc.pc.GetTransceivers()) != 2 {
		t.Fatalf("transceivers = %d, want audio and video", len(pc.pc.GetTransceivers()))
	}
}

func TestReadTrackForwardsPacketsUntilReadFails(t *testing.T) {
	p := &PeerConnection{}
	var removed []Stream
	p.OnStreamRemoved(func(s Stream) { removed = append(removed, s) })

	before := util.Stats.MediaPkts.Load()
	reads := 0
	s := Stream{ID: "s1", TrackID: "v1", Kind: "video"}
	p.readTrack(s, func() error {
		reads++
		if reads > 3 {
			return io.EOF
		}
		return nil
	})

	if reads != 4 {
		t.Fatalf("reads = %d, want 4", reads)
	}
	if n := util.Stats.MediaPkts.Load() - before; n != 3 {
		t.Fatalf("media packets counted = %d, want 3", n)
	}
	if len(removed) != 1 || removed[0] != s {
		t.Fatalf("removed = %v, want [%v]", removed, s)
	}
}
