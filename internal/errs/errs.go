// Package errs defines the sentinel error kinds used across the receiver.
package errs

import "errors"

// Sentinel errors, wrapped with context via fmt.Errorf("...: %w", err) at
// call sites. Compare with errors.Is.
var (
	// ErrConfig covers bad module arguments or an invalid SAP address.
	ErrConfig = errors.New("config error")

	// ErrSocket covers a syscall failure during multicast socket setup.
	ErrSocket = errors.New("socket error")

	// ErrCapacity is returned when MAX_SESSIONS would be exceeded.
	ErrCapacity = errors.New("capacity error")

	// ErrDecode covers a malformed RTP/SAP/SDP datagram.
	ErrDecode = errors.New("decode error")

	// ErrPayloadMismatch means the RTP payload type didn't match the session's.
	ErrPayloadMismatch = errors.New("payload type mismatch")

	// ErrSsrcMismatch means the RTP SSRC didn't match the latched one.
	ErrSsrcMismatch = errors.New("ssrc mismatch")

	// ErrQueueOverrun means a push would have overflowed the jitter queue.
	ErrQueueOverrun = errors.New("queue overrun")

	// ErrRateFixTooLarge means the computed rate fix exceeded the safety cap.
	ErrRateFixTooLarge = errors.New("rate fix too large")

	// ErrSessionNotFound means the requested origin has no live session.
	ErrSessionNotFound = errors.New("session not found")
)
