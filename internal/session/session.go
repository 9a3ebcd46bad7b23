// Package session implements the per-stream RTP ingest state machine
// (Session) and the origin-keyed session registry (Registry).
package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/rtprecv/internal/audiotime"
	"github.com/sebas/rtprecv/internal/errs"
	"github.com/sebas/rtprecv/internal/jitter"
	"github.com/sebas/rtprecv/internal/pcm"
	"github.com/sebas/rtprecv/internal/sink"
	"github.com/sebas/rtprecv/internal/smoother"
	"github.com/sebas/rtprecv/internal/wire/rtpcodec"
	"github.com/sebas/rtprecv/internal/wire/sdpinfo"
)

const (
	// RateUpdateInterval gates the periodic resampler retune.
	RateUpdateInterval = 5 * time.Second
	// RateFixCap is the fraction of the current rate a single retune may
	// adjust by before the measurement is treated as bad and dropped.
	RateFixCap = 0.20
	// SmootherHistory and SmootherHorizon mirror pa_smoother_new's
	// defaults in the original module (5s history, 2s horizon).
	SmootherHistory = 5 * time.Second
	SmootherHorizon = 2 * time.Second
)

// localLoopCookie is this process's RTP-loop-detection SSRC, generated
// once at startup, mirroring media.GenerateSSRC() in the teacher repo.
var localLoopCookie = generateCookie()

func generateCookie() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0x12345678
	}
	return binary.BigEndian.Uint32(b[:])
}

// Session is one announced, live RTP stream: its declared format, the
// jitter queue and time smoother that absorb clock drift, and the
// latched wire identity (ssrc, expected timestamp) learned from the
// stream itself.
type Session struct {
	// id correlates log lines for this session; it is never used for
	// equality or lookup, which stays keyed by Origin.
	id uuid.UUID

	Origin     string
	SampleSpec sdpinfo.SampleSpec

	mu sync.Mutex

	payloadType      uint8
	ssrc             uint32
	expectedTS       uint32
	firstPacketSeen  bool
	queue            *jitter.Queue
	smoother         *smoother.Smoother
	intendedLatency  int64 // microseconds
	sinkLatency      int64 // microseconds
	lastRateUpdate   time.Time
	currentRate      uint32

	lastActivitySec atomic.Int64

	adapter *sink.Adapter
	host    sink.Sink
}

// Params bundles the immutable, SDP-declared configuration a new
// Session is created with.
type Params struct {
	Origin          string
	SampleSpec      sdpinfo.SampleSpec
	PayloadType     uint8
	IntendedLatency time.Duration
	Capacity        int
	MaxRewind       int
}

// New creates a session with a pre-seeded jitter queue, attaching host
// as its playback sink. intended_latency is clamped to at least twice
// the sink's reported latency per spec.md's Session invariant.
func New(p Params, host sink.Sink, now time.Time) *Session {
	sinkLatencyUs := host.GetLatency()
	intendedUs := p.IntendedLatency.Microseconds()
	if min := 2 * sinkLatencyUs; intendedUs < min {
		intendedUs = min
	}

	frameSize := p.SampleSpec.FrameSize()
	prefillUs := intendedUs - sinkLatencyUs
	if prefillUs < 0 {
		prefillUs = 0
	}
	prefill := int(audiotime.UsToBytes(prefillUs, frameSize, p.SampleSpec.RateHz))

	s := &Session{
		id:              uuid.New(),
		Origin:          p.Origin,
		SampleSpec:      p.SampleSpec,
		payloadType:     p.PayloadType,
		queue:           jitter.New(p.Capacity, frameSize, prefill),
		smoother:        smoother.New(SmootherHistory.Microseconds(), SmootherHorizon.Microseconds()),
		intendedLatency: intendedUs,
		sinkLatency:     sinkLatencyUs,
		currentRate:     p.SampleSpec.RateHz,
		host:            host,
	}
	s.queue.SetMaxRewind(p.MaxRewind)
	s.lastActivitySec.Store(now.Unix())

	s.adapter = sink.NewAdapter(s.queue, s.bytesToUs, s.resamplerDelayUs, s.kill)

	slog.Info("[Session] created",
		"id", s.id.String(),
		"origin", s.Origin,
		"payload_type", s.payloadType,
		"rate", s.SampleSpec.RateHz,
		"channels", s.SampleSpec.Channels,
		"intended_latency_us", intendedUs,
		"sink_latency_us", sinkLatencyUs,
	)
	return s
}

// Adapter returns the playback adapter bridging this session's queue to
// its host sink.
func (s *Session) Adapter() *sink.Adapter { return s.adapter }

// PayloadType returns the RTP payload type this session accepts.
func (s *Session) PayloadType() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloadType
}

// LastActivitySec atomically loads the last-activity watermark, in
// monotonic wall-clock seconds. Safe to call from any goroutine.
func (s *Session) LastActivitySec() int64 { return s.lastActivitySec.Load() }

// touch atomically records activity at t.
func (s *Session) touch(t time.Time) { s.lastActivitySec.Store(t.Unix()) }

// Refresh updates only last_activity_sec, per spec: a refresh never
// recreates resources even if the SDP details differ.
func (s *Session) Refresh(now time.Time) { s.touch(now) }

func (s *Session) bytesToUs(n int) int64 {
	return audiotime.BytesToUs(int64(n), s.SampleSpec.FrameSize(), s.SampleSpec.RateHz)
}

func (s *Session) resamplerDelayUs() int64 {
	return s.host.RenderBufferUs()
}

// kill is the adapter's kill callback. It only logs the teardown; it does
// not remove the session from its registry or detach its adapter.
func (s *Session) kill() {
	slog.Info("[Session] killed by sink teardown", "id", s.id.String(), "origin", s.Origin)
}

// Close detaches the playback adapter, canceling the per-session ingest
// goroutine's context so it stops polling its RTP socket and closes it.
// The registry calls this whenever it removes a session (Destroy on
// goodbye, ReapExpired on liveness timeout) so no session outlives its
// entry.
func (s *Session) Close() {
	s.adapter.Detach()
}

// Ingest runs the ten-step per-packet algorithm against one raw RTP
// datagram, at wall-clock time now. Every failure disposition is
// "drop and keep going" except loop detection, which is logged but
// still accepted.
func (s *Session) Ingest(buf []byte, now time.Time) error {
	pkt, err := rtpcodec.Decode(buf)
	if err != nil {
		return fmt.Errorf("%w: ingest decode", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pkt.PayloadType != s.payloadType {
		return fmt.Errorf("%w: got %d want %d", errs.ErrPayloadMismatch, pkt.PayloadType, s.payloadType)
	}

	if !s.firstPacketSeen {
		s.ssrc = pkt.SSRC
		s.expectedTS = pkt.Timestamp
		s.firstPacketSeen = true
		if pkt.SSRC == localLoopCookie {
			slog.Warn("[Session] loop detected, accepting anyway", "id", s.id.String(), "origin", s.Origin, "ssrc", pkt.SSRC)
		}
	} else if pkt.SSRC != s.ssrc {
		return fmt.Errorf("%w: got %#x want %#x", errs.ErrSsrcMismatch, pkt.SSRC, s.ssrc)
	}

	frameSize := s.SampleSpec.FrameSize()
	delta := timestampDelta(s.expectedTS, pkt.Timestamp)
	s.queue.Seek(delta*int64(frameSize), true)

	s.smoother.Put(now.UnixMicro(), float64(s.queue.WriteIndex()))

	payload := pkt.Payload
	if pcm.NeedsDecode(s.SampleSpec.Format) {
		payload = pcm.Decode(s.SampleSpec.Format, payload)
	}

	overrun := s.queue.Push(payload)
	if overrun {
		slog.Warn("[Session] jitter queue overrun, sought forward", "id", s.id.String(), "origin", s.Origin, "bytes", len(payload))
	}

	s.expectedTS = pkt.Timestamp + uint32(len(payload)/max(frameSize, 1))
	s.touch(now)

	if s.queue.Len() > 0 && s.host.UnderrunCount() > 0 {
		s.host.RequestRewind(0, false, true, false)
	}

	return nil
}

// timestampDelta picks the smaller-magnitude interpretation of the
// signed 32-bit difference packet-expected across the wrap boundary:
// ((packet - expected + 2^31) mod 2^32) - 2^31.
func timestampDelta(expected, packet uint32) int64 {
	naive := int64(packet) - int64(expected)
	wrapComplement := naive + (1 << 32)
	if naive >= 0 {
		wrapComplement = naive - (1 << 32)
	}
	// On a tie (exactly 2^31 apart) the negative value is chosen, as the
	// formula above gives.
	if absInt64(naive) < absInt64(wrapComplement) ||
		(absInt64(naive) == absInt64(wrapComplement) && naive < 0) {
		return naive
	}
	return wrapComplement
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// RetuneIfDue runs the periodic rate-retune algorithm if at least
// RateUpdateInterval has elapsed since the last one, and reports
// whether a retune happened.
func (s *Session) RetuneIfDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastRateUpdate.IsZero() && now.Sub(s.lastRateUpdate) < RateUpdateInterval {
		return false
	}

	frameSize := s.SampleSpec.FrameSize()
	rate := s.SampleSpec.RateHz

	// The smoother tracks the write index in bytes; convert to microseconds.
	wiBytes := s.smoother.Estimate(now.UnixMicro())
	wiUs := float64(audiotime.BytesToUs(int64(wiBytes), frameSize, rate))
	riUs := float64(audiotime.BytesToUs(s.queue.ReadIndex(), frameSize, rate))

	renderDelay := s.resamplerDelayUs()
	sinkDelay := s.host.GetLatency()
	riUs -= float64(renderDelay + sinkDelay)
	if riUs < 0 {
		riUs = 0
	}

	latency := wiUs - riUs
	if latency < 0 {
		latency = 0
	}

	deviation := latency - float64(s.intendedLatency)
	if deviation < 0 {
		deviation = -deviation
	}

	intervalSec := RateUpdateInterval.Seconds()
	fix := deviation * float64(rate) / (intervalSec * 1_000_000)

	if fix > RateFixCap*float64(rate) {
		slog.Warn("[Session] rate fix exceeds safety cap, skipping retune",
			"id", s.id.String(), "origin", s.Origin, "fix", fix, "cap", RateFixCap*float64(rate))
		return false
	}

	newRate := s.currentRate
	if latency < float64(s.intendedLatency) {
		newRate -= uint32(fix)
	} else {
		newRate += uint32(fix)
	}

	s.currentRate = newRate
	s.lastRateUpdate = now
	s.host.SetResamplerInputRate(newRate)

	slog.Debug("[Session] rate retuned",
		"id", s.id.String(), "origin", s.Origin,
		"latency_us", latency, "intended_us", s.intendedLatency, "new_rate", newRate)

	return true
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
