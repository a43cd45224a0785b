package emulator

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredrone/internal/auth"
	"github.com/vovakirdan/wiredrone/internal/metrics"
	"github.com/vovakirdan/wiredrone/internal/proto"
)

// Config controls how the hub admits sessions.
type Config struct {
	// Channel, when set, is the only channel a handshake may name.
	Channel string
	// RequireAuth rejects subscribe and publish before authenticate.
	RequireAuth bool
	// PublishRate caps publishes per minute on one connection. Zero is
	// unlimited.
	PublishRate int
	// JWT validates authenticate tokens. Nil disables authenticate.
	JWT *auth.JWTConfig
}

// ErrHubStopped is returned by calls made after Run returned.
var ErrHubStopped = errors.New("hub stopped")

// RoomInfo summarises a live room.
type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Hub owns every client and room. All state changes happen on the goroutine
// running Run.
type Hub struct {
	cfg     Config
	log     *zerolog.Logger
	metrics *metrics.Metrics

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	calls      chan func()
	done       chan struct{}

	clients map[*Client]struct{}
	rooms   map[string]*Room
}

// NewHub creates a hub. Call Run to start it.
func NewHub(cfg Config, logger *zerolog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		cfg:        cfg,
		log:        logger,
		metrics:    m,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, clientBuffer),
		calls:      make(chan func()),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]*Room),
	}
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.ConnectionOpened()
			h.log.Debug().Str("conn_id", c.ID).Msg("client registered")
			go h.pump(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case in := <-h.commands:
			h.handle(in.client, in.cmd)
		case fn := <-h.calls:
			fn()
		}
	}
}

// Rooms lists live rooms sorted by name.
func (h *Hub) Rooms(ctx context.Context) ([]RoomInfo, error) {
	var out []RoomInfo
	err := h.do(ctx, func() {
		out = make([]RoomInfo, 0, len(h.rooms))
		for name, room := range h.rooms {
			out = append(out, RoomInfo{Name: name, Members: len(room.clients)})
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Publish relays body to every member of room on behalf of the service
// itself, so the event carries no client_id. It returns the number of
// recipients.
func (h *Hub) Publish(ctx context.Context, room string, body proto.Value) (int, error) {
	var n int
	err := h.do(ctx, func() {
		r, ok := h.rooms[room]
		if !ok {
			return
		}
		n = len(r.clients)
		h.broadcast(r, &Event{
			Kind:    EventRoomMessage,
			Room:    room,
			Message: Message{Room: room, Body: body, CreatedAt: time.Now()},
		}, nil)
	})
	return n, err
}

// do runs fn on the hub goroutine and waits for it.
func (h *Hub) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.calls <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterClient adds c to the hub and starts consuming its commands.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient ends c's command stream. Commands already queued are
// still processed, then c leaves its rooms and its Events channel is closed.
func (h *Hub) UnregisterClient(c *Client) {
	c.closeCommands()
}

func (h *Hub) pump(c *Client) {
	for cmd := range c.Commands {
		if cmd == nil {
			continue
		}
		select {
		case h.commands <- clientCommand{client: c, cmd: cmd}:
		case <-h.done:
			return
		}
	}
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for name := range c.Rooms {
		h.leave(c, name)
	}
	delete(h.clients, c)
	close(c.Events)
	h.metrics.ConnectionClosed()
	h.log.Debug().Str("conn_id", c.ID).Msg("client unregistered")
}

func (h *Hub) handle(c *Client, cmd *Command) {
	h.metrics.FrameReceived(cmd.Kind.String())

	if cmd.Kind != CommandHandshake && !c.handshaken {
		h.reject(c, cmd, newError(ErrCodeNotHandshaken, "handshake required"))
		return
	}

	switch cmd.Kind {
	case CommandHandshake:
		h.handshake(c, cmd)
	case CommandAuthenticate:
		h.authenticate(c, cmd)
	case CommandSubscribe:
		h.subscribe(c, cmd)
	case CommandUnsubscribe:
		h.unsubscribe(c, cmd)
	case CommandPublish:
		h.publish(c, cmd)
	}
}

func (h *Hub) handshake(c *Client, cmd *Command) {
	switch {
	case c.handshaken:
		h.reject(c, cmd, newError(ErrCodeBadRequest, "already handshaken"))
		return
	case cmd.Channel == "":
		h.reject(c, cmd, newError(ErrCodeBadRequest, "channel is required"))
		return
	case h.cfg.Channel != "" && cmd.Channel != h.cfg.Channel:
		h.reject(c, cmd, newError(ErrCodeInvalidChannel, "invalid channel"))
		return
	}

	c.handshaken = true
	c.channel = cmd.Channel
	c.clientData = cmd.ClientData
	h.log.Info().Str("conn_id", c.ID).Str("channel", c.channel).Msg("handshake")
	h.reply(c, cmd, c.ID)
}

func (h *Hub) authenticate(c *Client, cmd *Command) {
	if h.cfg.JWT == nil {
		h.reject(c, cmd, newError(ErrCodeAuthDisabled, "authentication is disabled"))
		return
	}
	claims, err := auth.ValidateToken(h.cfg.JWT, cmd.Token)
	if err != nil {
		h.log.Debug().Err(err).Str("conn_id", c.ID).Msg("invalid token")
		h.reject(c, cmd, newError(ErrCodeUnauthorized, "invalid token"))
		return
	}
	if err := claims.Verify(c.ID, c.channel); err != nil {
		h.reject(c, cmd, newError(ErrCodeUnauthorized, err.Error()))
		return
	}

	c.claims = claims
	h.log.Info().Str("conn_id", c.ID).Msg("authenticated")
	h.reply(c, cmd, "")
}

func (h *Hub) subscribe(c *Client, cmd *Command) {
	name := cmd.Room
	if name == "" {
		h.reject(c, cmd, newError(ErrCodeBadRequest, "room is required"))
		return
	}
	if !h.allowed(c, name, false) {
		h.reject(c, cmd, newError(ErrCodeUnauthorized, "unauthorized"))
		return
	}
	if _, joined := c.Rooms[name]; joined {
		h.reject(c, cmd, newError(ErrCodeAlreadyJoined, "already subscribed"))
		return
	}

	room, ok := h.rooms[name]
	if !ok {
		room = NewRoom(name)
		h.rooms[name] = room
	}
	room.AddClient(c)
	c.Rooms[name] = struct{}{}
	h.reply(c, cmd, "")

	if !proto.IsObservable(name) {
		return
	}
	clients := room.Clients()
	members := make([]proto.Member, 0, len(clients))
	for _, other := range clients {
		members = append(members, other.Member())
	}
	h.send(c, &Event{Kind: EventMembers, Room: name, Members: members})
	h.broadcast(room, &Event{Kind: EventMemberJoined, Room: name, Member: c.Member()}, c)
}

func (h *Hub) unsubscribe(c *Client, cmd *Command) {
	if _, joined := c.Rooms[cmd.Room]; !joined {
		h.reject(c, cmd, newError(ErrCodeNotInRoom, "not subscribed"))
		return
	}
	h.leave(c, cmd.Room)
	h.reply(c, cmd, "")
}

func (h *Hub) leave(c *Client, name string) {
	delete(c.Rooms, name)
	room, ok := h.rooms[name]
	if !ok || !room.RemoveClient(c) {
		return
	}
	if proto.IsObservable(name) {
		h.broadcast(room, &Event{Kind: EventMemberLeft, Room: name, Member: c.Member()}, nil)
	}
	if room.Empty() {
		delete(h.rooms, name)
	}
}

func (h *Hub) publish(c *Client, cmd *Command) {
	name := cmd.Message.Room
	if name == "" {
		h.reject(c, cmd, newError(ErrCodeBadRequest, "room is required"))
		return
	}
	if !h.allowed(c, name, true) {
		h.reject(c, cmd, newError(ErrCodeUnauthorized, "unauthorized"))
		return
	}
	room, ok := h.rooms[name]
	if !ok {
		return
	}
	msg := cmd.Message
	msg.From = c.ID
	h.broadcast(room, &Event{Kind: EventRoomMessage, Room: name, ClientID: c.ID, Message: msg}, nil)
}

// allowed applies token permissions when the client authenticated, and the
// hub-wide RequireAuth switch otherwise.
func (h *Hub) allowed(c *Client, room string, publish bool) bool {
	if c.authenticated() {
		if publish {
			return c.claims.CanPublish(room)
		}
		return c.claims.CanSubscribe(room)
	}
	return !h.cfg.RequireAuth
}

func (h *Hub) reply(c *Client, cmd *Command, clientID string) {
	if cmd.Callback == 0 {
		return
	}
	h.send(c, &Event{Kind: EventReply, Callback: cmd.Callback, ClientID: clientID})
}

func (h *Hub) reject(c *Client, cmd *Command, err *Error) {
	h.log.Debug().
		Str("conn_id", c.ID).
		Str("type", cmd.Kind.String()).
		Str("code", err.Code).
		Msg("command rejected")
	h.send(c, &Event{Kind: EventError, Room: cmd.Room, Callback: cmd.Callback, Error: err})
}

func (h *Hub) send(c *Client, ev *Event) {
	if !deliver(c, ev) {
		h.metrics.FrameDropped("slow_consumer")
		h.log.Warn().Str("conn_id", c.ID).Msg("dropping event for slow client")
	}
}

func (h *Hub) broadcast(room *Room, ev *Event, skip *Client) {
	if dropped := room.Broadcast(ev, skip); dropped > 0 {
		for i := 0; i < dropped; i++ {
			h.metrics.FrameDropped("slow_consumer")
		}
		h.log.Warn().Str("room", room.Name).Int("dropped", dropped).Msg("dropping events for slow clients")
	}
}
