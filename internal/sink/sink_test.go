package sink

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeQueue struct {
	popBytes  []byte
	popOK     bool
	rewound   int
	maxRewind int
	length    int
}

func (f *fakeQueue) Pop(n int) ([]byte, bool) { return f.popBytes, f.popOK }
func (f *fakeQueue) Rewind(n int)             { f.rewound += n }
func (f *fakeQueue) SetMaxRewind(n int)       { f.maxRewind = n }
func (f *fakeQueue) Len() int                 { return f.length }

func TestAdapterPopForwardsToQueue(t *testing.T) {
	q := &fakeQueue{popBytes: []byte{1, 2, 3}, popOK: true}
	a := NewAdapter(q, func(int) int64 { return 0 }, func() int64 { return 0 }, func() {})

	data, ok := a.Pop(3)
	if !ok || len(data) != 3 {
		t.Fatalf("Pop() = %v, %v, want 3 bytes, true", data, ok)
	}
}

func TestAdapterGetLatencyCombinesQueueAndResampler(t *testing.T) {
	q := &fakeQueue{length: 100}
	a := NewAdapter(q, func(n int) int64 { return int64(n) * 10 }, func() int64 { return 5 }, func() {})

	if got, want := a.GetLatency(), int64(1005); got != want {
		t.Errorf("GetLatency() = %d, want %d", got, want)
	}
}

func TestAdapterAttachRunsAndDetachCancels(t *testing.T) {
	q := &fakeQueue{}
	a := NewAdapter(q, func(int) int64 { return 0 }, func() int64 { return 0 }, func() {})

	var canceled atomic.Bool
	started := make(chan struct{})
	a.Attach(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		canceled.Store(true)
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("Attach() did not start the run function")
	}

	if !a.Attached() {
		t.Error("Attached() = false after Attach()")
	}

	a.Detach()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if canceled.Load() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !canceled.Load() {
		t.Error("Detach() did not cancel the run function's context")
	}
	if a.Attached() {
		t.Error("Attached() = true after Detach()")
	}
}

func TestAdapterKillInvokesCallback(t *testing.T) {
	q := &fakeQueue{}
	var killed bool
	a := NewAdapter(q, func(int) int64 { return 0 }, func() int64 { return 0 }, func() { killed = true })

	a.Kill()

	if !killed {
		t.Error("Kill() did not invoke the kill callback")
	}
}

func TestLocalMockSinkRewindResetsUnderrunCount(t *testing.T) {
	m := NewLocalMockSink(500, 0)
	m.NoteUnderrun()
	m.NoteUnderrun()
	if got := m.UnderrunCount(); got != 2 {
		t.Fatalf("UnderrunCount() = %d, want 2", got)
	}

	m.RequestRewind(0, false, true, false)

	if got := m.UnderrunCount(); got != 0 {
		t.Errorf("UnderrunCount() after RequestRewind() = %d, want 0", got)
	}
}

func TestLocalMockSinkSetResamplerInputRate(t *testing.T) {
	m := NewLocalMockSink(500, 0)
	m.SetResamplerInputRate(44982)
	if got := m.Rate(); got != 44982 {
		t.Errorf("Rate() = %d, want 44982", got)
	}
}
