package discovery

import (
	"testing"
	"time"

	"github.com/sebas/rtprecv/internal/mcast"
	"github.com/sebas/rtprecv/internal/session"
	"github.com/sebas/rtprecv/internal/sink"
	"github.com/sebas/rtprecv/internal/wire/sdpinfo"
)

func buildSAPDatagram(t *testing.T, goodbye bool, sdpBody string) []byte {
	t.Helper()
	flags := byte(1 << 5)
	if goodbye {
		flags |= 0x04
	}
	buf := []byte{flags, 0, 0, 0, 239, 1, 1, 1}
	buf = append(buf, []byte(sdpBody)...)
	return buf
}

func sdpFor(originID int, name string) string {
	return "v=0\r\n" +
		"o=" + name + " " + itoa(originID) + " " + itoa(originID) + " IN IP4 239.1.1.1\r\n" +
		"s=-\r\n" +
		"c=IN IP4 239.1.1.1\r\n" +
		"t=0 0\r\n" +
		"m=audio 5004 RTP/AVP 0\r\n"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newTestLoop(t *testing.T) (*Loop, *session.Registry) {
	t.Helper()
	reg := session.NewRegistry()
	hosts := func(info sdpinfo.Info) sink.Sink { return sink.NewLocalMockSink(0, 0) }

	loop := NewLoop(nil, reg, hosts)
	loop.joinRTP = func(groupAddr string, port int) (*mcast.Endpoint, error) {
		return nil, nil // RTP join is not under test here
	}
	loop.startIngest = func(sess *session.Session, ep *mcast.Endpoint) {
		// No real socket to poll in these tests; discovery-loop behavior
		// (create/refresh/goodbye) doesn't depend on the ingest loop.
	}
	return loop, reg
}

func TestUnknownOriginCreatesSession(t *testing.T) {
	loop, reg := newTestLoop(t)
	buf := buildSAPDatagram(t, false, sdpFor(1, "alice"))

	loop.handleDatagram(buf, time.Unix(1000, 0))

	if got := reg.Len(); got != 1 {
		t.Fatalf("registry Len() = %d, want 1", got)
	}
}

func TestRefreshUpdatesOnlyLastActivity(t *testing.T) {
	loop, reg := newTestLoop(t)
	buf := buildSAPDatagram(t, false, sdpFor(2, "bob"))

	loop.handleDatagram(buf, time.Unix(1000, 0))
	sess, ok := reg.Get("bob/2/239.1.1.1")
	if !ok {
		t.Fatalf("session for bob not created")
	}

	loop.handleDatagram(buf, time.Unix(1010, 0))

	if got := reg.Len(); got != 1 {
		t.Fatalf("registry Len() after refresh = %d, want 1 (no duplicate session)", got)
	}
	if got := sess.LastActivitySec(); got != 1010 {
		t.Errorf("LastActivitySec() = %d, want 1010", got)
	}
}

func TestGoodbyeDestroysSession(t *testing.T) {
	loop, reg := newTestLoop(t)
	create := buildSAPDatagram(t, false, sdpFor(3, "carol"))
	loop.handleDatagram(create, time.Unix(1000, 0))
	loop.handleDatagram(create, time.Unix(1001, 0)) // refresh

	goodbye := buildSAPDatagram(t, true, sdpFor(3, "carol"))
	loop.handleDatagram(goodbye, time.Unix(1002, 0))

	if got := reg.Len(); got != 0 {
		t.Errorf("registry Len() after goodbye = %d, want 0", got)
	}
}

func TestGoodbyeForUnknownOriginIsNoop(t *testing.T) {
	loop, reg := newTestLoop(t)
	goodbye := buildSAPDatagram(t, true, sdpFor(4, "dave"))

	loop.handleDatagram(goodbye, time.Unix(1000, 0))

	if got := reg.Len(); got != 0 {
		t.Fatalf("registry Len() = %d, want 0 (goodbye for unknown origin must not create)", got)
	}
}

func TestMalformedSAPDatagramDropped(t *testing.T) {
	loop, reg := newTestLoop(t)
	loop.handleDatagram([]byte{0x01}, time.Unix(1000, 0))

	if got := reg.Len(); got != 0 {
		t.Errorf("registry Len() = %d, want 0 after malformed datagram", got)
	}
}

func TestMalformedSDPDropped(t *testing.T) {
	loop, reg := newTestLoop(t)
	buf := buildSAPDatagram(t, false, "not sdp at all")

	loop.handleDatagram(buf, time.Unix(1000, 0))

	if got := reg.Len(); got != 0 {
		t.Errorf("registry Len() = %d, want 0 after unparseable sdp", got)
	}
}
