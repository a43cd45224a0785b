package emulator

import (
	"sync"

	"github.com/vovakirdan/wiredrone/internal/auth"
	"github.com/vovakirdan/wiredrone/internal/proto"
)

const clientBuffer = 64

// Client is one WebSocket session as seen by the hub. Fields other than the
// channels are owned by the hub goroutine.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event
	Rooms    map[string]struct{}

	channel    string
	handshaken bool
	clientData proto.Value
	claims     *auth.Claims

	closeOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, clientBuffer),
		Events:   make(chan *Event, clientBuffer),
		Rooms:    make(map[string]struct{}),
	}
}

// Member is the presence record other clients see.
func (c *Client) Member() proto.Member {
	m := proto.Member{ID: c.ID, ClientData: c.clientData}
	if c.claims != nil && c.claims.Data != nil {
		if v, err := proto.NewValue(c.claims.Data); err == nil {
			m.AuthData = v
		}
	}
	return m
}

func (c *Client) authenticated() bool {
	return c.claims != nil
}

// closeCommands ends the command stream; the hub unregisters the client once
// every queued command is processed.
func (c *Client) closeCommands() {
	c.closeOnce.Do(func() { close(c.Commands) })
}
