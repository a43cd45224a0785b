package core

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredrone/internal/metrics"
	"github.com/vovakirdan/wiredrone/internal/proto"
)

// ErrCallTimeout resolves calls whose deadline passed before a reply came.
var ErrCallTimeout = errors.New("call timed out")

// Session is the connection state shared by the inbound and outbound paths:
// one lock guards both the callback registry and the room directory.
//
// Frames passed to Dispatch run to completion, handlers included, on the
// caller's goroutine. Handlers are never called with the lock held.
type Session struct {
	mu      sync.Mutex
	calls   *Registry
	rooms   *Directory
	onError func(error)

	log     *zerolog.Logger
	metrics *metrics.Metrics
}

// NewSession creates an empty session whose rooms publish through p.
func NewSession(p Publisher, logger *zerolog.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Session{
		calls:   NewRegistry(),
		rooms:   NewDirectory(p),
		log:     logger,
		metrics: m,
	}
}

// SetErrorHandler installs the handler for errors not tied to a request.
func (s *Session) SetErrorHandler(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Register stores cont and returns its correlation id. A positive timeout
// resolves the call with ErrCallTimeout if no reply arrives in time; that
// continuation runs on the timer's goroutine.
func (s *Session) Register(cont Continuation, timeout time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.calls.Register(cont)
	if timeout > 0 {
		s.calls.SetTimer(id, time.AfterFunc(timeout, func() { s.expire(id) }))
	}
	s.metrics.SetPendingCalls(s.calls.Len())
	return id
}

// Cancel drops a pending call without invoking it, for requests that never
// reached the wire.
func (s *Session) Cancel(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.calls.Take(id)
	s.metrics.SetPendingCalls(s.calls.Len())
	return ok
}

// Pending returns the number of calls awaiting a reply.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls.Len()
}

// AbortAll resolves every pending call with an abort error.
func (s *Session) AbortAll(reason error) int {
	s.mu.Lock()
	conts := s.calls.Drain()
	s.metrics.SetPendingCalls(0)
	s.mu.Unlock()

	n := abort(conts, reason)
	s.metrics.CallsAborted(n)
	return n
}

// Room returns the room for name, creating it if needed.
func (s *Session) Room(name string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms.GetOrCreate(name)
}

// FindRoom looks up a tracked room.
func (s *Session) FindRoom(name string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms.Find(name)
}

// RemoveRoom stops tracking a room. It is idempotent.
func (s *Session) RemoveRoom(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms.Remove(name)
	return ok
}

// Rooms returns every tracked room sorted by name.
func (s *Session) Rooms() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms.Rooms()
}

// ResetRooms clears membership and subscription state of every room.
func (s *Session) ResetRooms() {
	for _, room := range s.Rooms() {
		room.Reset()
	}
}

func (s *Session) expire(id int64) {
	s.mu.Lock()
	cont, ok := s.calls.Take(id)
	s.metrics.SetPendingCalls(s.calls.Len())
	s.mu.Unlock()
	if !ok {
		return
	}

	s.metrics.CallTimedOut()
	s.log.Debug().Int64("callback", id).Msg("call timed out")
	cont.invoke(&proto.Envelope{Callback: id, HasCallback: true, Err: ErrCallTimeout})
}

func (s *Session) errorHandler() func(error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onError
}
