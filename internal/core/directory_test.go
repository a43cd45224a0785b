package core

import (
	"context"
	"testing"

	"github.com/vovakirdan/wiredrone/internal/proto"
)

type recordingPublisher struct {
	rooms    []string
	messages []any
}

func (p *recordingPublisher) Publish(_ context.Context, room string, message any) error {
	p.rooms = append(p.rooms, room)
	p.messages = append(p.messages, message)
	return nil
}

func TestDirectoryGetOrCreateReturnsSameRoom(t *testing.T) {
	d := NewDirectory(nil)

	first, created := d.GetOrCreate("general")
	if !created {
		t.Fatalf("expected first call to create the room")
	}
	second, created := d.GetOrCreate("general")
	if created {
		t.Fatalf("expected second call to reuse the room")
	}
	if first != second {
		t.Fatalf("expected identical room instances")
	}
	if d.Len() != 1 {
		t.Fatalf("expected one room, got %d", d.Len())
	}
}

func TestDirectoryFindAndRemove(t *testing.T) {
	d := NewDirectory(nil)
	if _, ok := d.Find("ghost"); ok {
		t.Fatalf("unexpected room")
	}

	room, _ := d.GetOrCreate("general")
	room.Handle(RoomHandlers{OnMessage: func(*Room, proto.Value, *proto.Member) {}})
	room.addMember(proto.Member{ID: "a"})

	if _, ok := d.Remove("general"); !ok {
		t.Fatalf("expected remove to find the room")
	}
	if _, ok := d.Remove("general"); ok {
		t.Fatalf("second remove should be a no-op")
	}
	if _, ok := d.Find("general"); ok {
		t.Fatalf("room still tracked after remove")
	}
	if room.Handlers().OnMessage != nil {
		t.Fatalf("handlers should be cleared on remove")
	}
	if len(room.Members()) != 0 {
		t.Fatalf("members should be cleared on remove")
	}

	again, created := d.GetOrCreate("general")
	if !created || again == room {
		t.Fatalf("expected a fresh room after remove")
	}
}

func TestDirectoryRoomsSorted(t *testing.T) {
	d := NewDirectory(nil)
	for _, name := range []string{"c", "a", "b"} {
		d.GetOrCreate(name)
	}
	rooms := d.Rooms()
	if len(rooms) != 3 || rooms[0].Name() != "a" || rooms[1].Name() != "b" || rooms[2].Name() != "c" {
		t.Fatalf("unexpected order: %v", rooms)
	}
}

func TestRoomPublishUsesPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDirectory(pub)
	room, _ := d.GetOrCreate("general")

	if err := room.Publish(context.Background(), "hello"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(pub.rooms) != 1 || pub.rooms[0] != "general" || pub.messages[0] != "hello" {
		t.Fatalf("unexpected publish: %+v", pub)
	}

	orphan := NewRoom("orphan", nil)
	if err := orphan.Publish(context.Background(), "x"); err != ErrNoPublisher {
		t.Fatalf("expected ErrNoPublisher, got %v", err)
	}
}

func TestRoomSubscriptionState(t *testing.T) {
	room := NewRoom("general", nil)
	if !room.BeginSubscribe() {
		t.Fatalf("idle room should begin subscribing")
	}
	if room.BeginSubscribe() {
		t.Fatalf("pending room should not begin again")
	}
	room.EndSubscribe(true)
	if !room.Subscribed() {
		t.Fatalf("expected subscribed room")
	}
	room.addMember(proto.Member{ID: "a"})

	room.Reset()
	if room.Subscribed() || len(room.Members()) != 0 {
		t.Fatalf("reset should clear state")
	}
	if !room.BeginSubscribe() {
		t.Fatalf("reset room should begin subscribing")
	}
	room.EndSubscribe(false)
	if room.Subscribed() {
		t.Fatalf("failed subscribe should leave the room idle")
	}
}
