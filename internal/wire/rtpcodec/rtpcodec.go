// Package rtpcodec decodes raw RTP datagrams into the fields the ingest
// path needs, wrapping github.com/pion/rtp.
package rtpcodec

import (
	"fmt"

	"github.com/pion/rtp"

	"github.com/sebas/rtprecv/internal/errs"
)

// Packet is the subset of an RTP packet the session cares about.
type Packet struct {
	SSRC        uint32
	PayloadType uint8
	Timestamp   uint32
	Payload     []byte
}

// Decode parses one UDP datagram as an RTP packet. Malformed or
// zero-length datagrams return errs.ErrDecode.
func Decode(buf []byte) (Packet, error) {
	if len(buf) == 0 {
		return Packet{}, fmt.Errorf("%w: empty datagram", errs.ErrDecode)
	}

	var p rtp.Packet
	if err := p.Unmarshal(buf); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", errs.ErrDecode, err)
	}

	return Packet{
		SSRC:        p.SSRC,
		PayloadType: p.PayloadType,
		Timestamp:   p.Timestamp,
		Payload:     p.Payload,
	}, nil
}
