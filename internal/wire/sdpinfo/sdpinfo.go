// Package sdpinfo extracts the fields the receiver needs (origin,
// session name, payload type, sample spec, RTP group/port) from a
// parsed SDP body, using github.com/pion/sdp/v3 to do the actual
// unmarshalling.
package sdpinfo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/sebas/rtprecv/internal/errs"
)

// SampleSpec describes the declared audio format of a stream.
type SampleSpec struct {
	Format   string // e.g. "PCMU", "PCMA", "L16"
	RateHz   uint32
	Channels int
}

// FrameSize returns the number of bytes per audio frame (one sample
// across all channels) as stored in the jitter queue. PCMU/PCMA arrive
// on the wire at one byte per sample but are decoded to linear PCM16
// before being queued (see internal/pcm), so every format lands in the
// queue at two bytes per sample.
func (s SampleSpec) FrameSize() int {
	const bytesPerSample = 2
	if s.Channels <= 0 {
		return bytesPerSample
	}
	return bytesPerSample * s.Channels
}

// Info is the announcement information the discovery loop and session
// creation need.
type Info struct {
	Origin      string // identity key, from the o= line
	SessionName string
	PayloadType uint8
	SampleSpec  SampleSpec
	GroupAddr   string
	Port        int
}

// staticPayloadTypes covers the RFC 3551 static assignments commonly
// seen without an explicit a=rtpmap.
var staticPayloadTypes = map[uint8]SampleSpec{
	0:  {Format: "PCMU", RateHz: 8000, Channels: 1},
	3:  {Format: "GSM", RateHz: 8000, Channels: 1},
	8:  {Format: "PCMA", RateHz: 8000, Channels: 1},
	9:  {Format: "G722", RateHz: 8000, Channels: 1},
	10: {Format: "L16", RateHz: 44100, Channels: 2},
	11: {Format: "L16", RateHz: 44100, Channels: 1},
}

// Parse unmarshals raw SDP bytes and extracts the fields the receiver
// needs. Returns errs.ErrDecode on any malformed or incomplete SDP.
func Parse(body []byte) (Info, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return Info{}, fmt.Errorf("%w: sdp parse: %v", errs.ErrDecode, err)
	}

	if len(desc.MediaDescriptions) == 0 {
		return Info{}, fmt.Errorf("%w: sdp has no media descriptions", errs.ErrDecode)
	}
	md := desc.MediaDescriptions[0]
	if md.MediaName.Media != "audio" {
		return Info{}, fmt.Errorf("%w: unsupported media type %q", errs.ErrDecode, md.MediaName.Media)
	}
	if len(md.MediaName.Formats) == 0 {
		return Info{}, fmt.Errorf("%w: sdp media has no formats", errs.ErrDecode)
	}

	pt64, err := strconv.ParseUint(md.MediaName.Formats[0], 10, 8)
	if err != nil {
		return Info{}, fmt.Errorf("%w: invalid payload type %q: %v", errs.ErrDecode, md.MediaName.Formats[0], err)
	}
	pt := uint8(pt64)

	spec, ok := lookupRTPMap(md, pt)
	if !ok {
		spec, ok = staticPayloadTypes[pt]
		if !ok {
			return Info{}, fmt.Errorf("%w: unknown payload type %d with no rtpmap", errs.ErrDecode, pt)
		}
	}

	groupAddr := connectionAddress(desc, md)
	if groupAddr == "" {
		return Info{}, fmt.Errorf("%w: sdp has no connection address", errs.ErrDecode)
	}

	origin := originKey(desc.Origin)

	return Info{
		Origin:      origin,
		SessionName: string(desc.SessionName),
		PayloadType: pt,
		SampleSpec:  spec,
		GroupAddr:   groupAddr,
		Port:        md.MediaName.Port.Value,
	}, nil
}

// originKey builds the origin identity key from the o= line: identical
// (username, sess-id, address) means the same announced session.
func originKey(o sdp.Origin) string {
	return fmt.Sprintf("%s/%d/%s", o.Username, o.SessionID, o.UnicastAddress)
}

func connectionAddress(desc sdp.SessionDescription, md *sdp.MediaDescription) string {
	if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
		return md.ConnectionInformation.Address.Address
	}
	if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		return desc.ConnectionInformation.Address.Address
	}
	return ""
}

func lookupRTPMap(md *sdp.MediaDescription, pt uint8) (SampleSpec, bool) {
	prefix := strconv.Itoa(int(pt)) + " "
	for _, attr := range md.Attributes {
		if attr.Key != "rtpmap" || !strings.HasPrefix(attr.Value, prefix) {
			continue
		}
		rest := strings.TrimPrefix(attr.Value, prefix)
		parts := strings.Split(rest, "/")
		if len(parts) < 2 {
			continue
		}
		rate, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			continue
		}
		channels := 1
		if len(parts) >= 3 {
			if c, err := strconv.Atoi(parts[2]); err == nil {
				channels = c
			}
		}
		return SampleSpec{Format: strings.ToUpper(parts[0]), RateHz: uint32(rate), Channels: channels}, true
	}
	return SampleSpec{}, false
}
