// Package audiotime converts between byte counts and microseconds given
// a frame size and sample rate, the same arithmetic the original module
// does via pa_bytes_to_usec/pa_usec_to_bytes.
package audiotime

// BytesToUs converts a byte count to microseconds given the number of
// bytes per frame and the sample rate in Hz.
func BytesToUs(bytes int64, frameSize int, rateHz uint32) int64 {
	if frameSize <= 0 || rateHz == 0 {
		return 0
	}
	frames := bytes / int64(frameSize)
	return frames * 1_000_000 / int64(rateHz)
}

// UsToBytes converts microseconds to a byte count, rounded down to a
// whole number of frames, given the frame size and sample rate.
func UsToBytes(us int64, frameSize int, rateHz uint32) int64 {
	if frameSize <= 0 || rateHz == 0 {
		return 0
	}
	frames := us * int64(rateHz) / 1_000_000
	return frames * int64(frameSize)
}
