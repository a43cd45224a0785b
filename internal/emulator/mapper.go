package emulator

import (
	"time"

	"github.com/vovakirdan/wiredrone/internal/proto"
)

func requestToCommand(req *proto.Request) (*Command, *Error) {
	switch req.Type {
	case proto.TypeHandshake:
		return &Command{
			Kind:       CommandHandshake,
			Callback:   req.Callback,
			Channel:    req.Channel,
			ClientData: req.ClientData,
		}, nil
	case proto.TypeAuthenticate:
		if req.Token == "" {
			return nil, newError(ErrCodeBadRequest, "token is required")
		}
		return &Command{
			Kind:     CommandAuthenticate,
			Callback: req.Callback,
			Token:    req.Token,
		}, nil
	case proto.TypeSubscribe:
		return &Command{
			Kind:     CommandSubscribe,
			Callback: req.Callback,
			Room:     req.Room,
		}, nil
	case proto.TypeUnsubscribe:
		return &Command{
			Kind:     CommandUnsubscribe,
			Callback: req.Callback,
			Room:     req.Room,
		}, nil
	case proto.TypePublish:
		return &Command{
			Kind: CommandPublish,
			Room: req.Room,
			Message: Message{
				Room:      req.Room,
				Body:      req.Message,
				CreatedAt: time.Now(),
			},
		}, nil
	default:
		return nil, newError(ErrCodeBadRequest, "unknown message type")
	}
}

func frameFromEvent(event *Event) proto.Event {
	switch event.Kind {
	case EventReply:
		return proto.Event{Callback: event.Callback, ClientID: event.ClientID}
	case EventRoomMessage:
		return proto.Event{
			Type:     proto.TypePublish,
			Room:     event.Room,
			Message:  event.Message.Body,
			ClientID: event.ClientID,
		}
	case EventMembers:
		return proto.Event{
			Type: proto.TypeObservableMembers,
			Room: event.Room,
			Data: event.Members,
		}
	case EventMemberJoined:
		return proto.Event{
			Type: proto.TypeObservableMemberJoin,
			Room: event.Room,
			Data: event.Member,
		}
	case EventMemberLeft:
		return proto.Event{
			Type: proto.TypeObservableMemberLeave,
			Room: event.Room,
			Data: event.Member,
		}
	default:
		msg := "internal error"
		if event.Error != nil {
			msg = event.Error.Message
		}
		return proto.Event{Callback: event.Callback, Error: msg}
	}
}
