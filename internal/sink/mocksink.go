package sink

import (
	"log/slog"
	"sync/atomic"
)

// LocalMockSink is a minimal in-process Sink: it reports a fixed
// latency and render-buffer size, counts rewinds and underruns, and
// logs resampler retunes, so the receiver is runnable and testable
// standalone without a real host audio engine.
type LocalMockSink struct {
	latencyUs     int64
	renderBufUs   int64
	underrunCount atomic.Int64
	rewindCount   atomic.Int64
	rate          atomic.Uint32
}

// NewLocalMockSink creates a mock sink reporting the given fixed output
// latency and render-buffer length, in microseconds.
func NewLocalMockSink(latencyUs, renderBufUs int64) *LocalMockSink {
	return &LocalMockSink{latencyUs: latencyUs, renderBufUs: renderBufUs}
}

// GetLatency returns the sink's fixed reported latency.
func (m *LocalMockSink) GetLatency() int64 { return m.latencyUs }

// RenderBufferUs returns the sink's fixed render-buffer length.
func (m *LocalMockSink) RenderBufferUs() int64 { return m.renderBufUs }

// RequestRewind records the request and resets the underrun counter,
// mirroring how a real mixer would clear it after re-rendering.
func (m *LocalMockSink) RequestRewind(bytes int, adjustLatency, requestRender, flush bool) {
	m.rewindCount.Add(1)
	m.underrunCount.Store(0)
	slog.Debug("[LocalMockSink] rewind requested", "bytes", bytes, "adjust_latency", adjustLatency, "flush", flush)
}

// SetRequestedLatency accepts whatever is asked and reports it granted.
func (m *LocalMockSink) SetRequestedLatency(us int64) int64 {
	m.latencyUs = us
	return us
}

// SetResamplerInputRate records the retuned rate.
func (m *LocalMockSink) SetResamplerInputRate(hz uint32) {
	m.rate.Store(hz)
	slog.Debug("[LocalMockSink] resampler retuned", "rate", hz)
}

// UnderrunCount reports how many underruns have occurred since the last
// rewind.
func (m *LocalMockSink) UnderrunCount() int64 { return m.underrunCount.Load() }

// NoteUnderrun lets a test or a future mixer implementation record that
// playback produced silence because the queue was empty.
func (m *LocalMockSink) NoteUnderrun() { m.underrunCount.Add(1) }

// Rate reports the most recently retuned resampler input rate, or 0 if
// none has happened yet.
func (m *LocalMockSink) Rate() uint32 { return m.rate.Load() }
