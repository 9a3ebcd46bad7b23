// Package sink defines the host audio sink contract this module
// consumes, and the playback adapter that bridges a session's jitter
// queue to it.
package sink

import (
	"context"
	"sync/atomic"
)

// Sink is the host audio engine contract: the capability surface a
// playback adapter needs from whatever plays the decoded audio back.
type Sink interface {
	// GetLatency reports the sink's own output latency in microseconds.
	GetLatency() int64
	// RenderBufferUs reports the length of the sink's pre-queue render
	// buffer in microseconds (the audio already handed to the mixer but
	// not yet played).
	RenderBufferUs() int64
	// RequestRewind asks the host to re-render, typically after new
	// audio arrives to overwrite silence produced during an underrun.
	RequestRewind(bytes int, adjustLatency, requestRender, flush bool)
	// SetRequestedLatency asks the sink for a given latency and returns
	// what it actually granted.
	SetRequestedLatency(us int64) (actualUs int64)
	// SetResamplerInputRate retunes the resampler feeding this sink.
	SetResamplerInputRate(hz uint32)
	// UnderrunCount reports the sink's current underrun count; a non-zero
	// value makes the session request a rewind once new audio is queued
	// (LocalMockSink counts underruns and resets the count on RequestRewind).
	UnderrunCount() int64
}

// Queue is the subset of *jitter.Queue the adapter needs, kept as an
// interface so it can be faked in tests without a real queue.
type Queue interface {
	Pop(n int) ([]byte, bool)
	Rewind(n int)
	SetMaxRewind(n int)
	Len() int
}

// Adapter bridges a session's jitter queue to a host Sink as a small,
// variant-free capability record — the Design Note in spec.md §9 calls
// for this instead of an inheritance hierarchy, since the host never
// observes the adapter's identity, only its six operations.
type Adapter struct {
	queue            Queue
	bytesToUs        func(bytes int) int64
	resamplerDelayUs func() int64
	kill             func()

	attached atomic.Bool
	cancel   context.CancelFunc
}

// NewAdapter builds an adapter over queue. bytesToUs converts a byte
// count to microseconds using the session's sample spec.
// resamplerDelayUs reports whatever extra latency the resampler adds
// downstream of the queue. kill is run by Kill on sink-input teardown.
func NewAdapter(queue Queue, bytesToUs func(int) int64, resamplerDelayUs func() int64, kill func()) *Adapter {
	return &Adapter{
		queue:            queue,
		bytesToUs:        bytesToUs,
		resamplerDelayUs: resamplerDelayUs,
		kill:             kill,
	}
}

// Pop peeks and drops n bytes from the queue; ok is false on empty (the
// host mixer is expected to insert silence and count an underrun).
func (a *Adapter) Pop(n int) (data []byte, ok bool) {
	return a.queue.Pop(n)
}

// Rewind moves the read index backward by n bytes for re-render.
func (a *Adapter) Rewind(n int) {
	a.queue.Rewind(n)
}

// SetMaxRewind forwards the host's max-rewind hint to the queue.
func (a *Adapter) SetMaxRewind(n int) {
	a.queue.SetMaxRewind(n)
}

// GetLatency reports bytes_to_us(queue.length) plus whatever delay the
// resampler adds downstream.
func (a *Adapter) GetLatency() int64 {
	return a.bytesToUs(a.queue.Len()) + a.resamplerDelayUs()
}

// Attach registers the session's I/O loop with the host. run is
// launched in its own goroutine and must return when ctx is canceled;
// this is the Go-idiomatic stand-in for registering a socket fd in a
// shared poll set, since this module gives each attached session its
// own blocking-read goroutine instead of a host-driven poll loop.
func (a *Adapter) Attach(run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.attached.Store(true)
	go run(ctx)
}

// Detach unregisters the session's I/O loop.
func (a *Adapter) Detach() {
	if a.cancel != nil {
		a.cancel()
	}
	a.attached.Store(false)
}

// Attached reports whether Attach has been called without a matching Detach.
func (a *Adapter) Attached() bool {
	return a.attached.Load()
}

// Kill is invoked by the host on sink-input teardown; it runs the kill
// callback given to NewAdapter and nothing else.
func (a *Adapter) Kill() {
	a.kill()
}
