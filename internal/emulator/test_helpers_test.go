package emulator

import (
	"context"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func startHub(t *testing.T, cfg Config) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(cfg, nil, nil)
	go hub.Run(ctx)
	return hub
}

// join registers a client and completes its handshake on channel "ch".
func join(t *testing.T, hub *Hub, id string) *Client {
	t.Helper()

	c := NewClient(id)
	hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandHandshake, Callback: 1, Channel: "ch"}
	ev := mustEvent(t, c.Events, EventReply)
	if ev.ClientID != id || ev.Callback != 1 {
		t.Fatalf("unexpected handshake reply: %+v", ev)
	}
	return c
}

func subscribe(t *testing.T, c *Client, room string, callback int64) {
	t.Helper()

	c.Commands <- &Command{Kind: CommandSubscribe, Room: room, Callback: callback}
	ev := mustEvent(t, c.Events, EventReply)
	if ev.Callback != callback {
		t.Fatalf("unexpected subscribe reply: %+v", ev)
	}
}

func memberIDs(ev *Event) []string {
	ids := make([]string, 0, len(ev.Members))
	for _, m := range ev.Members {
		ids = append(ids, m.ID)
	}
	return ids
}
