// Package stt multiplexes streaming recognition sessions over one audio
// socket. At most one session accepts audio at a time; a session that has
// been asked to end keeps draining results while a newer session may already
// be accepting chunks.
package stt

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"vrmchat/internal/speech"
	"vrmchat/internal/wire"
	"vrmchat/pkg/logger"
)

// EndMarker is the in-band frame that asks the current session to finish.
var EndMarker = []byte("sttend")

const audioQueueSize = 64

// Manager owns the recognition sessions of one connection. All exported
// methods are safe for concurrent use, though the socket read loop is the
// only expected caller of HandleAudio.
type Manager struct {
	recognizer   speech.Recognizer
	emit         func(wire.TranscriptEvent)
	finalTimeout time.Duration

	mu       sync.Mutex
	sessions map[int]*session
	nextID   int
	latest   int
	closed   bool
	wg       sync.WaitGroup
}

func NewManager(recognizer speech.Recognizer, emit func(wire.TranscriptEvent), finalTimeout time.Duration) *Manager {
	return &Manager{
		recognizer:   recognizer,
		emit:         emit,
		finalTimeout: finalTimeout,
		sessions:     make(map[int]*session),
	}
}

// HandleAudio routes one inbound frame. An end marker asks the latest open
// session to finish; any other payload is an audio chunk for the latest open
// session, starting a fresh session when none is accepting.
func (m *Manager) HandleAudio(ctx context.Context, payload []byte) {
	if bytes.Equal(payload, EndMarker) {
		m.requestEnd()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	s := m.sessions[m.latest]
	if s == nil || s.endRequested {
		s = m.startSessionLocked(ctx)
	}
	m.mu.Unlock()
	if s == nil {
		return
	}

	chunk := make([]byte, len(payload))
	copy(chunk, payload)
	select {
	case s.audio <- chunk:
	case <-s.done:
	}
}

// requestEnd is idempotent: a second marker while the session is already
// ending is ignored, as is a marker with no session at all.
func (m *Manager) requestEnd() {
	m.mu.Lock()
	s := m.sessions[m.latest]
	if s == nil || s.endRequested {
		m.mu.Unlock()
		return
	}
	s.endRequested = true
	m.mu.Unlock()

	select {
	case s.audio <- nil:
	case <-s.done:
	}
}

func (m *Manager) startSessionLocked(ctx context.Context) *session {
	m.nextID++
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		id:     m.nextID,
		m:      m,
		audio:  make(chan []byte, audioQueueSize),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	m.sessions[s.id] = s
	m.latest = s.id
	m.wg.Add(1)
	go s.run(sctx)
	return s
}

// Count reports the number of live sessions, ending ones included.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll tears down every session and waits for their goroutines until ctx
// expires.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	list := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	for _, s := range list {
		s.teardown()
	}

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		logger.Warn("stt: teardown wait expired with sessions still draining")
	}
}

type session struct {
	id     int
	m      *Manager
	audio  chan []byte
	done   chan struct{}
	cancel context.CancelFunc

	// Guarded by m.mu.
	endRequested bool
	finalSeen    bool
	tornDown     bool
	watchdog     *time.Timer
}

func (s *session) run(ctx context.Context) {
	defer s.m.wg.Done()
	defer s.teardown()

	stream, err := s.m.recognizer.OpenStream(ctx)
	if err != nil {
		logger.Error("stt: open stream: %v", err)
		return
	}

	go s.forward(stream)

	for {
		res, err := stream.Recv()
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				logger.Error("stt: recv: %v", err)
			}
			return
		}

		s.m.mu.Lock()
		if s.finalSeen {
			// The watchdog already emitted the end event.
			s.m.mu.Unlock()
			return
		}
		end := res.IsFinal && s.endRequested
		if end {
			s.finalSeen = true
			if s.watchdog != nil {
				s.watchdog.Stop()
			}
		}
		s.m.mu.Unlock()

		s.m.emit(wire.TranscriptEvent{Transcript: res.Transcript, IsFinal: res.IsFinal, IsEnd: end})
		if end {
			return
		}
	}
}

// forward drains the audio queue into the stream. A nil chunk is the end
// sentinel: it half-closes the stream and arms the no-final watchdog.
func (s *session) forward(stream speech.RecognizeStream) {
	for {
		select {
		case <-s.done:
			return
		case chunk := <-s.audio:
			if chunk == nil {
				if err := stream.CloseSend(); err != nil {
					logger.Error("stt: close send: %v", err)
				}
				s.m.mu.Lock()
				if !s.finalSeen && !s.tornDown {
					s.watchdog = time.AfterFunc(s.m.finalTimeout, s.watchdogFire)
				}
				s.m.mu.Unlock()
				return
			}
			if err := stream.Send(chunk); err != nil {
				logger.Error("stt: send: %v", err)
				return
			}
		}
	}
}

// watchdogFire synthesizes the end event when the backend never produced a
// final result after the end request.
func (s *session) watchdogFire() {
	s.m.mu.Lock()
	if s.finalSeen || s.tornDown {
		s.m.mu.Unlock()
		return
	}
	s.finalSeen = true
	s.m.mu.Unlock()

	s.m.emit(wire.TranscriptEvent{Transcript: "", IsFinal: true, IsEnd: true})
	s.teardown()
}

// teardown is idempotent and never blocks, so it is safe to call from the
// session's own goroutines.
func (s *session) teardown() {
	s.m.mu.Lock()
	if s.tornDown {
		s.m.mu.Unlock()
		return
	}
	s.tornDown = true
	delete(s.m.sessions, s.id)
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	close(s.done)
	s.m.mu.Unlock()

	s.cancel()
}
