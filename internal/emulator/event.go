package emulator

import "github.com/vovakirdan/wiredrone/internal/proto"

// EventKind is a notification the hub emits to clients.
type EventKind int

const (
	// EventReply acknowledges a command that carried a callback.
	EventReply EventKind = iota
	// EventRoomMessage relays a published message.
	EventRoomMessage
	// EventMembers delivers the member snapshot of an observable room.
	EventMembers
	// EventMemberJoined announces a new member of an observable room.
	EventMemberJoined
	// EventMemberLeft announces a member leaving an observable room.
	EventMemberLeft
	// EventError reports a rejected command without a callback.
	EventError
)

// Event is sent to clients to describe what happened.
type Event struct {
	Kind     EventKind
	Room     string
	Callback int64
	ClientID string
	Message  Message
	Members  []proto.Member
	Member   proto.Member
	Error    *Error
}
