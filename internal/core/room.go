package core

import (
	"context"
	"errors"
	"sync"

	"github.com/vovakirdan/wiredrone/internal/proto"
)

// ErrNoPublisher is returned by Room.Publish on a room without a client.
var ErrNoPublisher = errors.New("room has no publisher")

// Publisher sends fire-and-forget messages to a room.
type Publisher interface {
	Publish(ctx context.Context, room string, message any) error
}

// RoomHandlers receives room events. Nil fields are skipped. Handlers run on
// the dispatching goroutine and may call back into the client.
type RoomHandlers struct {
	OnJoined      func(room *Room, err error)
	OnMessage     func(room *Room, message proto.Value, member *proto.Member)
	OnMembers     func(room *Room, members []proto.Member)
	OnMemberJoin  func(room *Room, member proto.Member)
	OnMemberLeave func(room *Room, member proto.Member)
}

type subscription int

const (
	subIdle subscription = iota
	subPending
	subActive
)

// Room is a subscribed channel with its local view of the member list.
type Room struct {
	name      string
	publisher Publisher

	mu       sync.RWMutex
	members  []proto.Member
	handlers RoomHandlers
	sub      subscription
}

// NewRoom constructs a room with no members.
func NewRoom(name string, publisher Publisher) *Room {
	return &Room{
		name:      name,
		publisher: publisher,
	}
}

func (r *Room) Name() string {
	return r.name
}

// Handle installs the room's handlers, replacing any previous ones. The zero
// value unregisters them.
func (r *Room) Handle(h RoomHandlers) {
	r.mu.Lock()
	r.handlers = h
	r.mu.Unlock()
}

// Handlers returns the currently installed handlers.
func (r *Room) Handlers() RoomHandlers {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers
}

// Members returns a copy of the known members in arrival order.
func (r *Room) Members() []proto.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]proto.Member(nil), r.members...)
}

// Member looks up a known member by id.
func (r *Room) Member(id string) (proto.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.members[i], true
	}
	return proto.Member{}, false
}

// Publish sends message to this room.
func (r *Room) Publish(ctx context.Context, message any) error {
	if r.publisher == nil {
		return ErrNoPublisher
	}
	return r.publisher.Publish(ctx, r.name, message)
}

// Subscribed reports whether the service acknowledged the subscription on
// the current connection.
func (r *Room) Subscribed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sub == subActive
}

// BeginSubscribe moves an idle room to pending. It returns false when a
// subscription is already pending or active.
func (r *Room) BeginSubscribe() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != subIdle {
		return false
	}
	r.sub = subPending
	return true
}

// EndSubscribe records the outcome of a subscribe request.
func (r *Room) EndSubscribe(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.sub = subActive
		return
	}
	r.sub = subIdle
}

// Reset forgets membership and subscription state. Used when the connection
// ends, since the service keeps nothing from the old session.
func (r *Room) Reset() {
	r.mu.Lock()
	r.members = nil
	r.sub = subIdle
	r.mu.Unlock()
}

func (r *Room) detach() {
	r.mu.Lock()
	r.handlers = RoomHandlers{}
	r.members = nil
	r.sub = subIdle
	r.mu.Unlock()
}

func (r *Room) senderOf(clientID string) *proto.Member {
	if clientID == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(clientID); i >= 0 {
		m := r.members[i]
		return &m
	}
	return nil
}

func (r *Room) replaceMembers(members []proto.Member) []proto.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append([]proto.Member(nil), members...)
	return append([]proto.Member(nil), r.members...)
}

// addMember replaces a member with the same id in place, otherwise appends.
func (r *Room) addMember(m proto.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(m.ID); i >= 0 {
		r.members[i] = m
		return
	}
	r.members = append(r.members, m)
}

// removeMember drops every member with the given id and returns the first
// one removed.
func (r *Room) removeMember(id string) (proto.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		removed proto.Member
		found   bool
	)
	kept := r.members[:0]
	for _, m := range r.members {
		if m.ID == id {
			if !found {
				removed, found = m, true
			}
			continue
		}
		kept = append(kept, m)
	}
	r.members = kept
	return removed, found
}

func (r *Room) indexOf(id string) int {
	for i, m := range r.members {
		if m.ID == id {
			return i
		}
	}
	return -1
}
