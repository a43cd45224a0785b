package emulator

import (
	"context"
	"strconv"
	"testing"

	"github.com/vovakirdan/wiredrone/internal/proto"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(Config{}, nil, nil)
	go hub.Run(ctx)

	handshake := func(c *Client) {
		hub.RegisterClient(c)
		c.Commands <- &Command{Kind: CommandHandshake, Channel: "bench"}
		c.Commands <- &Command{Kind: CommandSubscribe, Room: "bench"}
	}

	sender := NewClient("sender")
	handshake(sender)
	go func() {
		for range sender.Events {
		}
	}()

	clients := make([]*Client, 0, recipients)
	for i := 0; i < recipients; i++ {
		c := NewClient("c" + strconv.Itoa(i))
		handshake(c)
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	body := proto.RawValue([]byte(`"payload"`))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{
			Kind:    CommandPublish,
			Message: Message{Room: "bench", Body: body},
		}
		for {
			ev := <-target.Events
			if ev.Kind == EventRoomMessage {
				break
			}
		}
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
