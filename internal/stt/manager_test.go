package stt

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"vrmchat/internal/speech"
	"vrmchat/internal/wire"
)

type recvEvent struct {
	res speech.Result
	err error
}

type fakeStream struct {
	ctx       context.Context
	mu        sync.Mutex
	sent      [][]byte
	closed    bool
	events    chan recvEvent
	closeSend chan struct{}
}

func newFakeStream(ctx context.Context) *fakeStream {
	return &fakeStream{
		ctx:       ctx,
		events:    make(chan recvEvent, 16),
		closeSend: make(chan struct{}),
	}
}

func (s *fakeStream) Send(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closeSend)
	}
	return nil
}

// Recv unblocks on context cancellation the way a gRPC stream does.
func (s *fakeStream) Recv() (speech.Result, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return speech.Result{}, io.EOF
		}
		return ev.res, ev.err
	case <-s.ctx.Done():
		return speech.Result{}, s.ctx.Err()
	}
}

func (s *fakeStream) sentChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeRecognizer struct {
	mu      sync.Mutex
	streams []*fakeStream
}

func (r *fakeRecognizer) OpenStream(ctx context.Context) (speech.RecognizeStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := newFakeStream(ctx)
	r.streams = append(r.streams, s)
	return s, nil
}

func (r *fakeRecognizer) opened() []*fakeStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*fakeStream, len(r.streams))
	copy(out, r.streams)
	return out
}

type eventCollector struct {
	mu     sync.Mutex
	events []wire.TranscriptEvent
}

func (c *eventCollector) emit(ev wire.TranscriptEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) snapshot() []wire.TranscriptEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.TranscriptEvent, len(c.events))
	copy(out, c.events)
	return out
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestChunksForwardInOrder(t *testing.T) {
	rec := &fakeRecognizer{}
	col := &eventCollector{}
	m := NewManager(rec, col.emit, time.Second)
	defer m.CloseAll(context.Background())

	ctx := context.Background()
	m.HandleAudio(ctx, []byte("c1"))
	m.HandleAudio(ctx, []byte("c2"))
	m.HandleAudio(ctx, []byte("c3"))

	waitFor(t, func() bool {
		streams := rec.opened()
		return len(streams) == 1 && len(streams[0].sentChunks()) == 3
	}, "chunks did not reach the stream")

	chunks := rec.opened()[0].sentChunks()
	for i, want := range []string{"c1", "c2", "c3"} {
		if string(chunks[i]) != want {
			t.Fatalf("chunk %d = %q, want %q", i, chunks[i], want)
		}
	}
	if m.Count() != 1 {
		t.Fatalf("sessions = %d, want 1", m.Count())
	}
}

func TestEndMarkerWithoutSessionIsIgnored(t *testing.T) {
	rec := &fakeRecognizer{}
	col := &eventCollector{}
	m := NewManager(rec, col.emit, time.Second)

	m.HandleAudio(context.Background(), EndMarker)
	time.Sleep(20 * time.Millisecond)
	if len(rec.opened()) != 0 {
		t.Fatal("end marker must not open a stream")
	}
	if m.Count() != 0 {
		t.Fatalf("sessions = %d, want 0", m.Count())
	}
}

func TestFinalAfterEndClosesSession(t *testing.T) {
	rec := &fakeRecognizer{}
	col := &eventCollector{}
	m := NewManager(rec, col.emit, time.Second)
	defer m.CloseAll(context.Background())

	ctx := context.Background()
	m.HandleAudio(ctx, []byte("audio"))
	waitFor(t, func() bool { return len(rec.opened()) == 1 }, "no stream opened")
	stream := rec.opened()[0]

	stream.events <- recvEvent{res: speech.Result{Transcript: "partial", IsFinal: false}}
	waitFor(t, func() bool { return len(col.snapshot()) == 1 }, "interim not emitted")
	if ev := col.snapshot()[0]; ev.IsFinal || ev.IsEnd {
		t.Fatalf("interim flags: %+v", ev)
	}

	m.HandleAudio(ctx, EndMarker)
	waitFor(t, func() bool {
		select {
		case <-stream.closeSend:
			return true
		default:
			return false
		}
	}, "CloseSend not called")

	stream.events <- recvEvent{res: speech.Result{Transcript: "hello world", IsFinal: true}}
	waitFor(t, func() bool { return len(col.snapshot()) == 2 }, "final not emitted")

	final := col.snapshot()[1]
	if final.Transcript != "hello world" || !final.IsFinal || !final.IsEnd {
		t.Fatalf("final event: %+v", final)
	}
	waitFor(t, func() bool { return m.Count() == 0 }, "session not removed after final")
}

func TestFinalBeforeEndIsNotEnd(t *testing.T) {
	rec := &fakeRecognizer{}
	col := &eventCollector{}
	m := NewManager(rec, col.emit, time.Second)
	defer m.CloseAll(context.Background())

	m.HandleAudio(context.Background(), []byte("audio"))
	waitFor(t, func() bool { return len(rec.opened()) == 1 }, "no stream opened")

	rec.opened()[0].events <- recvEvent{res: speech.Result{Transcript: "done", IsFinal: true}}
	waitFor(t, func() bool { return len(col.snapshot()) == 1 }, "final not emitted")

	ev := col.snapshot()[0]
	if !ev.IsFinal || ev.IsEnd {
		t.Fatalf("final before end: %+v", ev)
	}
	if m.Count() != 1 {
		t.Fatal("session should stay open without an end request")
	}
}

func TestChunkAfterEndStartsNewSession(t *testing.T) {
	rec := &fakeRecognizer{}
	col := &eventCollector{}
	m := NewManager(rec, col.emit, time.Second)
	defer m.CloseAll(context.Background())

	ctx := context.Background()
	m.HandleAudio(ctx, []byte("first"))
	waitFor(t, func() bool { return len(rec.opened()) == 1 }, "first stream not opened")
	m.HandleAudio(ctx, EndMarker)

	// The ending session is still draining; new audio opens a second one.
	m.HandleAudio(ctx, []byte("second"))
	waitFor(t, func() bool { return len(rec.opened()) == 2 }, "second stream not opened")

	waitFor(t, func() bool {
		chunks := rec.opened()[1].sentChunks()
		return len(chunks) == 1 && string(chunks[0]) == "second"
	}, "second chunk routed to the wrong session")
	if m.Count() != 2 {
		t.Fatalf("sessions = %d, want 2", m.Count())
	}
}

func TestWatchdogEmitsSyntheticFinal(t *testing.T) {
	rec := &fakeRecognizer{}
	col := &eventCollector{}
	m := NewManager(rec, col.emit, 20*time.Millisecond)
	defer m.CloseAll(context.Background())

	ctx := context.Background()
	m.HandleAudio(ctx, []byte("audio"))
	waitFor(t, func() bool { return len(rec.opened()) == 1 }, "no stream opened")
	m.HandleAudio(ctx, EndMarker)

	waitFor(t, func() bool { return len(col.snapshot()) == 1 }, "synthetic final not emitted")
	ev := col.snapshot()[0]
	if ev.Transcript != "" || !ev.IsFinal || !ev.IsEnd {
		t.Fatalf("synthetic final: %+v", ev)
	}
	waitFor(t, func() bool { return m.Count() == 0 }, "session not torn down by watchdog")

	// No second end event may follow.
	time.Sleep(60 * time.Millisecond)
	if got := len(col.snapshot()); got != 1 {
		t.Fatalf("events = %d, want exactly 1", got)
	}
}

func TestDoubleEndMarkerIsIdempotent(t *testing.T) {
	rec := &fakeRecognizer{}
	col := &eventCollector{}
	m := NewManager(rec, col.emit, 20*time.Millisecond)
	defer m.CloseAll(context.Background())

	ctx := context.Background()
	m.HandleAudio(ctx, []byte("audio"))
	waitFor(t, func() bool { return len(rec.opened()) == 1 }, "no stream opened")
	m.HandleAudio(ctx, EndMarker)
	m.HandleAudio(ctx, EndMarker)

	waitFor(t, func() bool { return m.Count() == 0 }, "session not torn down")
	time.Sleep(60 * time.Millisecond)
	if got := len(col.snapshot()); got != 1 {
		t.Fatalf("events = %d, want exactly 1 after duplicate end markers", got)
	}
}

func TestCloseAllTearsDownEverything(t *testing.T) {
	rec := &fakeRecognizer{}
	col := &eventCollector{}
	m := NewManager(rec, col.emit, time.Second)

	ctx := context.Background()
	m.HandleAudio(ctx, []byte("a"))
	m.HandleAudio(ctx, EndMarker)
	m.HandleAudio(ctx, []byte("b"))
	waitFor(t, func() bool { return len(rec.opened()) == 2 }, "streams not opened")

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.CloseAll(closeCtx)

	if m.Count() != 0 {
		t.Fatalf("sessions = %d, want 0 after CloseAll", m.Count())
	}

	// Audio after shutdown must not start new sessions.
	m.HandleAudio(ctx, []byte("late"))
	time.Sleep(20 * time.Millisecond)
	if len(rec.opened()) != 2 {
		t.Fatal("closed manager opened a new stream")
	}
}
