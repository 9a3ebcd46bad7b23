// Package sap parses SAP (Session Announcement Protocol, RFC 2974)
// datagrams down to their goodbye flag and SDP payload.
//
// No third-party Go SAP implementation exists anywhere in the reference
// corpus this module was built from; this is a from-scratch decoder of
// the wire format described by RFC 2974 and exercised by the original
// module-rtp-recv's pa_sap_recv/pa_sap_context contract.
package sap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/sebas/rtprecv/internal/errs"
)

const minHeaderLen = 8 // flags(1) + authlen(1) + msgidhash(2) + ipv4 origin(4)

// Message is a decoded SAP announcement: its goodbye flag, originating
// source, and the raw body handed off to the SDP decoder.
type Message struct {
	Goodbye  bool
	Origin   net.IP
	SDPBytes []byte
}

// Decode parses one SAP datagram. Malformed datagrams return errs.ErrDecode.
func Decode(buf []byte) (Message, error) {
	if len(buf) < minHeaderLen {
		return Message{}, fmt.Errorf("%w: sap datagram too short (%d bytes)", errs.ErrDecode, len(buf))
	}

	flags := buf[0]
	version := flags >> 5
	if version != 1 {
		return Message{}, fmt.Errorf("%w: unsupported sap version %d", errs.ErrDecode, version)
	}

	ipv6 := flags&0x10 != 0
	reserved := flags&0x08 != 0
	goodbye := flags&0x04 != 0
	encrypted := flags&0x02 != 0
	compressed := flags&0x01 != 0

	if reserved {
		return Message{}, fmt.Errorf("%w: reserved sap bit set", errs.ErrDecode)
	}
	if encrypted || compressed {
		return Message{}, fmt.Errorf("%w: encrypted/compressed sap payloads unsupported", errs.ErrDecode)
	}

	authLenWords := int(buf[1])
	off := 4 // past flags(1) + authlen(1) + msgidhash(2)

	originLen := 4
	if ipv6 {
		originLen = 16
	}
	if len(buf) < off+originLen {
		return Message{}, fmt.Errorf("%w: sap datagram truncated before origin", errs.ErrDecode)
	}
	origin := net.IP(append([]byte(nil), buf[off:off+originLen]...))
	off += originLen

	authLen := authLenWords * 4
	if len(buf) < off+authLen {
		return Message{}, fmt.Errorf("%w: sap datagram truncated in auth data", errs.ErrDecode)
	}
	off += authLen

	body := buf[off:]

	// An optional MIME payload-type string ("application/sdp\0") may
	// precede the SDP body. If the remainder doesn't already look like
	// an SDP session description, treat it as that string and skip past
	// its NUL terminator.
	if !bytes.HasPrefix(body, []byte("v=")) {
		if nul := bytes.IndexByte(body, 0); nul >= 0 {
			body = body[nul+1:]
		}
	}

	_ = binary.BigEndian // msg id hash (buf[2:4]) is not currently consulted

	return Message{
		Goodbye:  goodbye,
		Origin:   origin,
		SDPBytes: body,
	}, nil
}
