package core

import (
	"sort"
	"time"

	"github.com/vovakirdan/wiredrone/internal/proto"
)

// Continuation receives the reply to a request.
type Continuation func(env *proto.Envelope)

func (c Continuation) invoke(env *proto.Envelope) {
	if c != nil {
		c(env)
	}
}

type pendingCall struct {
	cont  Continuation
	timer *time.Timer
}

// Registry correlates outbound requests with their replies. Ids start at 1
// and are never reused by the same Registry. Registry is not safe for
// concurrent use; Session serializes access to it.
type Registry struct {
	nextID  int64
	pending map[int64]*pendingCall
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[int64]*pendingCall)}
}

// Register stores cont and returns its correlation id.
func (r *Registry) Register(cont Continuation) int64 {
	r.nextID++
	r.pending[r.nextID] = &pendingCall{cont: cont}
	return r.nextID
}

// SetTimer attaches a deadline timer to a pending call. The timer is stopped
// when the call is removed.
func (r *Registry) SetTimer(id int64, timer *time.Timer) bool {
	call, ok := r.pending[id]
	if !ok {
		return false
	}
	call.timer = timer
	return true
}

// Take removes the call without invoking it.
func (r *Registry) Take(id int64) (Continuation, bool) {
	call, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	delete(r.pending, id)
	if call.timer != nil {
		call.timer.Stop()
	}
	return call.cont, true
}

// Resolve removes the call and invokes it with env. Unknown ids return false.
func (r *Registry) Resolve(id int64, env *proto.Envelope) bool {
	cont, ok := r.Take(id)
	if !ok {
		return false
	}
	cont.invoke(env)
	return true
}

// Drain removes every pending call and returns the continuations in id
// order.
func (r *Registry) Drain() []Continuation {
	ids := make([]int64, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	conts := make([]Continuation, 0, len(ids))
	for _, id := range ids {
		if cont, ok := r.Take(id); ok {
			conts = append(conts, cont)
		}
	}
	return conts
}

// AbortAll resolves every pending call with an abort envelope and empties the
// registry. It returns how many calls were aborted.
func (r *Registry) AbortAll(reason error) int {
	return abort(r.Drain(), reason)
}

// Len returns the number of pending calls.
func (r *Registry) Len() int {
	return len(r.pending)
}

// abort resolves drained continuations in order with one abort envelope.
func abort(conts []Continuation, reason error) int {
	env := AbortEnvelope(reason)
	for _, cont := range conts {
		cont.invoke(env)
	}
	return len(conts)
}

// AbortEnvelope builds the synthetic reply used for aborted calls.
func AbortEnvelope(reason error) *proto.Envelope {
	return &proto.Envelope{Err: &proto.AbortError{Reason: reason}}
}
