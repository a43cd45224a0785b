package emulator

import "github.com/vovakirdan/wiredrone/internal/proto"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandHandshake opens a session on a channel.
	CommandHandshake CommandKind = iota
	// CommandAuthenticate presents a JWT for the session.
	CommandAuthenticate
	// CommandSubscribe joins a room.
	CommandSubscribe
	// CommandUnsubscribe leaves a room.
	CommandUnsubscribe
	// CommandPublish relays a message to a room.
	CommandPublish
)

func (k CommandKind) String() string {
	switch k {
	case CommandHandshake:
		return proto.TypeHandshake
	case CommandAuthenticate:
		return proto.TypeAuthenticate
	case CommandSubscribe:
		return proto.TypeSubscribe
	case CommandUnsubscribe:
		return proto.TypeUnsubscribe
	case CommandPublish:
		return proto.TypePublish
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind       CommandKind
	Callback   int64
	Channel    string
	ClientData proto.Value
	Token      string
	Room       string
	Message    Message
}
