package proto

import "strings"

const (
	TypeHandshake    = "handshake"
	TypeAuthenticate = "authenticate"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypePublish      = "publish"

	TypeObservableMembers     = "observable_members"
	TypeObservableMemberJoin  = "observable_member_join"
	TypeObservableMemberLeave = "observable_member_leave"

	// ObservablePrefix marks rooms that report presence.
	ObservablePrefix = "observable-"
)

// IsObservable reports whether the service tracks presence for the room.
func IsObservable(room string) bool {
	return strings.HasPrefix(room, ObservablePrefix)
}

// Handshake opens a session on a channel.
type Handshake struct {
	Type       string `json:"type"`
	Channel    string `json:"channel"`
	ClientData Value  `json:"client_data,omitzero"`
	Callback   int64  `json:"callback"`
}

// Authenticate presents a signed token for the current client id.
type Authenticate struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	Callback int64  `json:"callback"`
}

// Subscribe requests delivery of a room's events.
type Subscribe struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	Callback int64  `json:"callback"`
}

// Unsubscribe stops delivery of a room's events.
type Unsubscribe struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	Callback int64  `json:"callback"`
}

// Publish sends a message to a room. It is never acknowledged.
type Publish struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Message any    `json:"message"`
}

// Member is a room participant as reported by presence events.
type Member struct {
	ID         string `json:"id"`
	AuthData   Value  `json:"authData,omitzero"`
	ClientData Value  `json:"clientData,omitzero"`
}

// Event is a frame written by the service side. The emulator uses it; the
// client only ever decodes these into an Envelope.
type Event struct {
	Type     string `json:"type,omitempty"`
	Room     string `json:"room,omitempty"`
	Callback int64  `json:"callback,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Message  Value  `json:"message,omitzero"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}
