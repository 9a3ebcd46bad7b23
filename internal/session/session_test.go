package session

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/sebas/rtprecv/internal/errs"
	"github.com/sebas/rtprecv/internal/jitter"
	"github.com/sebas/rtprecv/internal/wire/sdpinfo"
)

type fakeSink struct {
	latencyUs   int64
	renderUs    int64
	underruns   int64
	rewindCalls int
	rate        uint32
}

func (f *fakeSink) GetLatency() int64     { return f.latencyUs }
func (f *fakeSink) RenderBufferUs() int64 { return f.renderUs }
func (f *fakeSink) RequestRewind(bytes int, adjustLatency, requestRender, flush bool) {
	f.rewindCalls++
}
func (f *fakeSink) SetRequestedLatency(us int64) int64 { f.latencyUs = us; return us }
func (f *fakeSink) SetResamplerInputRate(hz uint32)    { f.rate = hz }
func (f *fakeSink) UnderrunCount() int64               { return f.underruns }

func newTestSession(t *testing.T, host *fakeSink) *Session {
	t.Helper()
	spec := sdpinfo.SampleSpec{Format: "L16", RateHz: 44100, Channels: 2}
	return New(Params{
		Origin:          "alice/1/239.1.1.1",
		SampleSpec:      spec,
		PayloadType:     127,
		IntendedLatency: 500 * time.Millisecond,
		Capacity:        1 << 20,
		MaxRewind:       1 << 16,
	}, host, time.Unix(1000, 0))
}

func marshalRTP(t *testing.T, pt uint8, ssrc uint32, ts uint32, payload []byte) []byte {
	t.Helper()
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:     2,
			PayloadType: pt,
			Timestamp:   ts,
			SSRC:        ssrc,
		},
		Payload: payload,
	}
	buf, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return buf
}

func TestIntendedLatencyClampedToTwiceSinkLatency(t *testing.T) {
	host := &fakeSink{latencyUs: 400_000} // 400ms, more than half of 500ms intended
	s := newTestSession(t, host)

	if got, want := s.intendedLatency, int64(800_000); got != want {
		t.Errorf("intendedLatency = %d, want %d (clamped to 2x sink latency)", got, want)
	}
}

func TestIngestLatchesSsrcAndTimestampOnFirstPacket(t *testing.T) {
	host := &fakeSink{}
	s := newTestSession(t, host)

	buf := marshalRTP(t, 127, 0xabc, 1000, []byte{1, 2, 3, 4})
	if err := s.Ingest(buf, time.Unix(1001, 0)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if s.ssrc != 0xabc {
		t.Errorf("ssrc = %#x, want %#x", s.ssrc, 0xabc)
	}
	if !s.firstPacketSeen {
		t.Error("firstPacketSeen = false after first packet")
	}
}

func TestIngestDropsPayloadTypeMismatch(t *testing.T) {
	host := &fakeSink{}
	s := newTestSession(t, host)

	buf := marshalRTP(t, 0, 0xabc, 1000, []byte{1, 2, 3, 4})
	err := s.Ingest(buf, time.Unix(1001, 0))
	if err == nil {
		t.Fatal("Ingest() error = nil, want errs.ErrPayloadMismatch")
	}
	if !errors.Is(err, errs.ErrPayloadMismatch) {
		t.Errorf("Ingest() error = %v, want errs.ErrPayloadMismatch", err)
	}
}

func TestIngestDropsSsrcMismatchAfterFirstPacket(t *testing.T) {
	host := &fakeSink{}
	s := newTestSession(t, host)

	first := marshalRTP(t, 127, 0xabc, 1000, []byte{1, 2, 3, 4})
	if err := s.Ingest(first, time.Unix(1001, 0)); err != nil {
		t.Fatalf("Ingest() first packet error = %v", err)
	}

	second := marshalRTP(t, 127, 0xdead, 1004, []byte{5, 6, 7, 8})
	err := s.Ingest(second, time.Unix(1002, 0))
	if !errors.Is(err, errs.ErrSsrcMismatch) {
		t.Errorf("Ingest() error = %v, want errs.ErrSsrcMismatch", err)
	}
}

func TestIngestPCMUDecodesToPCM16BeforeQueuing(t *testing.T) {
	host := &fakeSink{}
	spec := sdpinfo.SampleSpec{Format: "PCMU", RateHz: 8000, Channels: 1}
	s := New(Params{
		Origin:          "alice/1/239.1.1.1",
		SampleSpec:      spec,
		PayloadType:     0,
		IntendedLatency: 500 * time.Millisecond,
		Capacity:        1 << 20,
		MaxRewind:       1 << 16,
	}, host, time.Unix(1000, 0))

	// 160 bytes of mu-law is 160 samples (20ms at 8kHz), which decodes to
	// 320 bytes of linear PCM16 -- the frame size the queue actually uses.
	ulaw := make([]byte, 160)
	for i := range ulaw {
		ulaw[i] = 0xFF
	}
	writeIndexBefore := s.queue.WriteIndex()

	buf := marshalRTP(t, 0, 0xabc, 1000, ulaw)
	if err := s.Ingest(buf, time.Unix(1001, 0)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if got, want := s.queue.WriteIndex()-writeIndexBefore, int64(320); got != want {
		t.Errorf("queue write index advanced by %d bytes, want %d (decoded PCM16 length)", got, want)
	}
	if got, want := s.expectedTS, uint32(1000+160); got != want {
		t.Errorf("expectedTS = %d, want %d (advances by decoded sample count, not byte count)", got, want)
	}
}

func TestIngestUpdatesLastActivitySec(t *testing.T) {
	host := &fakeSink{}
	s := newTestSession(t, host)

	buf := marshalRTP(t, 127, 0xabc, 1000, []byte{1, 2, 3, 4})
	now := time.Unix(5000, 0)
	if err := s.Ingest(buf, now); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if got := s.LastActivitySec(); got != 5000 {
		t.Errorf("LastActivitySec() = %d, want 5000", got)
	}
}

func TestTimestampDeltaWrapChoosesSmallerMagnitude(t *testing.T) {
	got := timestampDelta(0xFFFFFF00, 0x00000100)
	if got != 512 {
		t.Errorf("timestampDelta() = %d, want 512", got)
	}
}

func TestTimestampDeltaNoWrap(t *testing.T) {
	got := timestampDelta(1000, 1288)
	if got != 288 {
		t.Errorf("timestampDelta() = %d, want 288", got)
	}
}

func TestTimestampDeltaMatchesWrapSymmetryLaw(t *testing.T) {
	cases := []struct{ expected, packet uint32 }{
		{0, 100},
		{100, 0},
		{0xFFFFFFFF, 0},
		{0, 0xFFFFFFFF},
		{0x80000000, 0x7FFFFFFF},
	}
	for _, c := range cases {
		got := timestampDelta(c.expected, c.packet)
		diff := c.packet - c.expected        // uint32 subtraction wraps mod 2^32
		wrapped := diff + (1 << 31)          // uint32 addition wraps mod 2^32
		want := int64(wrapped) - (1 << 31)
		if got != want {
			t.Errorf("timestampDelta(%d, %d) = %d, want %d", c.expected, c.packet, got, want)
		}
	}
}

func TestRetuneIncreasesRateWhenLatencyAboveIntended(t *testing.T) {
	host := &fakeSink{}
	s := newTestSession(t, host)
	s.currentRate = 44100
	s.intendedLatency = 500_000

	// Replace the prefilled queue with an empty one, then fill it with
	// exactly 600ms of audio and nothing read, so latency (600ms)
	// exceeds intended (500ms).
	frameSize := s.SampleSpec.FrameSize()
	s.queue = jitter.New(1<<20, frameSize, 0)
	s.queue.SetMaxRewind(1 << 16)
	bytesFor600ms := int(float64(600_000) / 1_000_000 * float64(44100) * float64(frameSize))
	s.queue.Push(make([]byte, bytesFor600ms))
	s.smoother.Put(time.Unix(1000, 0).UnixMicro(), float64(s.queue.WriteIndex()))
	s.smoother.Put(time.Unix(1001, 0).UnixMicro(), float64(s.queue.WriteIndex()))

	changed := s.RetuneIfDue(time.Unix(1006, 0))
	if !changed {
		t.Fatal("RetuneIfDue() = false, want true")
	}
	if host.rate <= 44100 {
		t.Errorf("new rate = %d, want > 44100 (latency above intended should increase rate)", host.rate)
	}
}

func TestRetuneSkippedBeforeIntervalElapses(t *testing.T) {
	host := &fakeSink{}
	s := newTestSession(t, host)
	s.lastRateUpdate = time.Unix(1000, 0)

	changed := s.RetuneIfDue(time.Unix(1002, 0))
	if changed {
		t.Error("RetuneIfDue() = true before RateUpdateInterval elapsed")
	}
}

