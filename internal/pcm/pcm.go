// Package pcm decodes G.711 RTP payloads to linear PCM16, the mirror of
// the teacher's encode-direction use of github.com/zaf/g711.
package pcm

import "github.com/zaf/g711"

// NeedsDecode reports whether the given codec format requires decoding
// to linear PCM before it can be pushed into the jitter queue. Formats
// other than PCMU/PCMA are assumed to already be in the sink's native
// sample format and pass through untouched.
func NeedsDecode(format string) bool {
	switch format {
	case "PCMU", "PCMA":
		return true
	default:
		return false
	}
}

// Decode converts a PCMU or PCMA payload to linear PCM16 (little-endian).
// Any other format is returned unchanged.
func Decode(format string, payload []byte) []byte {
	switch format {
	case "PCMU":
		return g711.DecodeUlaw(payload)
	case "PCMA":
		return g711.DecodeAlaw(payload)
	default:
		return payload
	}
}
