package webrtc

import (
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
)

// Candidate type names as they appear after "typ" in a candidate attribute.
const (
	CandidateHost    = "host"
	CandidateSrflx   = "srflx"
	CandidatePrflx   = "prflx"
	CandidateRelay   = "relay"
	CandidateUnknown = "unknown"
)

// CandidateType classifies a candidate attribute string as host, srflx,
// prflx or relay.
func CandidateType(raw string) string {
	if c, err := ice.UnmarshalCandidate(strings.TrimPrefix(raw, "candidate:")); err == nil {
		switch c.Type() {
		case ice.CandidateTypeHost:
			return CandidateHost
		case ice.CandidateTypeServerReflexive:
			return CandidateSrflx
		case ice.CandidateTypePeerReflexive:
			return CandidatePrflx
		case ice.CandidateTypeRelay:
			return CandidateRelay
		}
	}

	// Fall back to the "typ" token for attributes the parser rejects, such as
	// candidates with unresolved hostnames.
	fields := strings.Fields(raw)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "typ" {
			switch t := fields[i+1]; t {
			case CandidateHost, CandidateSrflx, CandidatePrflx, CandidateRelay:
				return t
			}
		}
	}
	return CandidateUnknown
}

// OffersVideo reports whether an SDP body has an active video section that
// the sending side transmits on (sendrecv or sendonly, the former being the
// default when no direction attribute is present).
func OffersVideo(body string) bool {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(body)); err != nil {
		return false
	}

	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "video" || md.MediaName.Port.Value == 0 {
			continue
		}
		if _, ok := md.Attribute("recvonly"); ok {
			continue
		}
		if _, ok := md.Attribute("inactive"); ok {
			continue
		}
		return true
	}
	return false
}
