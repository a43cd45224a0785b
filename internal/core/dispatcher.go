package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vovakirdan/wiredrone/internal/proto"
)

// Kind is the routing decision for one inbound envelope.
type Kind int

const (
	// KindIgnored covers everything the client does not act on.
	KindIgnored Kind = iota
	// KindReplyError is an error reply to a pending call.
	KindReplyError
	// KindReply is a reply to a pending call.
	KindReply
	// KindConnectionError is an error not tied to any request.
	KindConnectionError
	// KindRoomEvent is an event for a tracked room.
	KindRoomEvent
)

func (k Kind) String() string {
	switch k {
	case KindReplyError:
		return "reply_error"
	case KindReply:
		return "reply"
	case KindConnectionError:
		return "connection_error"
	case KindRoomEvent:
		return "room_event"
	default:
		return "ignored"
	}
}

var errMissingMemberID = errors.New("member without id")

// Classify decides how an envelope is routed. The first matching rule wins:
// replies (erroneous or not) by correlation id, then connection errors, then
// events for rooms in the directory.
func (s *Session) Classify(env *proto.Envelope) Kind {
	kind, _ := s.classify(env)
	return kind
}

func (s *Session) classify(env *proto.Envelope) (Kind, *Room) {
	switch {
	case env == nil:
		return KindIgnored, nil
	case env.HasCallback && env.Err != nil:
		return KindReplyError, nil
	case env.HasCallback:
		return KindReply, nil
	case env.Err != nil:
		return KindConnectionError, nil
	case env.Type != "" && env.Room != "":
		if room, ok := s.FindRoom(env.Room); ok {
			return KindRoomEvent, room
		}
	}
	return KindIgnored, nil
}

// DispatchFrame decodes a raw frame and dispatches it. Malformed frames are
// dropped and their decoding error returned for logging only.
func (s *Session) DispatchFrame(data []byte) error {
	env, err := proto.Decode(data)
	if err != nil {
		s.metrics.FrameDropped("decode")
		s.log.Debug().Err(err).Int("size", len(data)).Msg("dropping malformed frame")
		return err
	}
	s.Dispatch(env)
	return nil
}

// Dispatch routes one envelope to a pending call, the connection error
// handler or a room. It never panics on wire input.
func (s *Session) Dispatch(env *proto.Envelope) {
	kind, room := s.classify(env)
	s.metrics.FrameReceived(kind.String())

	switch kind {
	case KindReplyError, KindReply:
		s.mu.Lock()
		cont, ok := s.calls.Take(env.Callback)
		s.metrics.SetPendingCalls(s.calls.Len())
		s.mu.Unlock()
		if !ok {
			s.metrics.FrameDropped("unknown_callback")
			s.log.Debug().Int64("callback", env.Callback).Msg("reply for unknown callback")
			return
		}
		cont.invoke(env)
	case KindConnectionError:
		if handler := s.errorHandler(); handler != nil {
			handler(env.Err)
		}
	case KindRoomEvent:
		s.dispatchRoom(room, env)
	case KindIgnored:
		if env != nil && env.Room != "" {
			s.metrics.FrameDropped("unknown_room")
		}
	}
}

func (s *Session) dispatchRoom(room *Room, env *proto.Envelope) {
	logger := s.log.With().Str("room", room.Name()).Str("type", env.Type).Logger()

	switch env.Type {
	case proto.TypePublish:
		member := room.senderOf(env.ClientID)
		if h := room.Handlers(); h.OnMessage != nil {
			h.OnMessage(room, env.Message, member)
		}

	case proto.TypeObservableMembers:
		members, err := decodeMembers(env.Data)
		if err != nil {
			s.metrics.FrameDropped("bad_payload")
			logger.Debug().Err(err).Msg("dropping member snapshot")
			return
		}
		snapshot := room.replaceMembers(members)
		if h := room.Handlers(); h.OnMembers != nil {
			h.OnMembers(room, snapshot)
		}

	case proto.TypeObservableMemberJoin:
		member, err := decodeMember(env.Data)
		if err != nil {
			s.metrics.FrameDropped("bad_payload")
			logger.Debug().Err(err).Msg("dropping member join")
			return
		}
		room.addMember(member)
		if h := room.Handlers(); h.OnMemberJoin != nil {
			h.OnMemberJoin(room, member)
		}

	case proto.TypeObservableMemberLeave:
		member, err := decodeMember(env.Data)
		if err != nil {
			s.metrics.FrameDropped("bad_payload")
			logger.Debug().Err(err).Msg("dropping member leave")
			return
		}
		if removed, ok := room.removeMember(member.ID); ok {
			member = removed
		}
		if h := room.Handlers(); h.OnMemberLeave != nil {
			h.OnMemberLeave(room, member)
		}

	default:
		logger.Debug().Msg("ignoring unknown room event")
	}
}

func decodeMember(v proto.Value) (proto.Member, error) {
	var m proto.Member
	if err := v.Decode(&m); err != nil {
		return proto.Member{}, fmt.Errorf("decode member: %w", err)
	}
	if m.ID == "" {
		return proto.Member{}, errMissingMemberID
	}
	return m, nil
}

// decodeMembers parses a snapshot. Entries without an id are skipped.
func decodeMembers(v proto.Value) ([]proto.Member, error) {
	var raws []json.RawMessage
	if err := v.Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	members := make([]proto.Member, 0, len(raws))
	for _, raw := range raws {
		m, err := decodeMember(proto.RawValue(raw))
		if err != nil {
			continue
		}
		members = append(members, m)
	}
	return members, nil
}
