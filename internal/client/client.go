package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredrone/internal/core"
	"github.com/vovakirdan/wiredrone/internal/metrics"
	"github.com/vovakirdan/wiredrone/internal/proto"
	"github.com/vovakirdan/wiredrone/internal/transport"
)

var (
	// ErrNotConnected is returned by operations that need a completed
	// handshake.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by Connect on a live connection.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrClosed aborts calls pending when Disconnect is called.
	ErrClosed = errors.New("connection closed")
	// ErrEmptyRoom is returned for an empty room name.
	ErrEmptyRoom = errors.New("room name is required")
	// ErrMissingClientID is reported when a handshake reply carries no id.
	ErrMissingClientID = errors.New("handshake reply without client_id")
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config holds the session parameters sent in the handshake.
type Config struct {
	Channel string
	// ClientData is attached to the handshake and shown to other members
	// of observable rooms. Nil omits it.
	ClientData any
	// CallTimeout bounds the wait for a reply. Zero waits forever.
	CallTimeout time.Duration
}

// Handlers receives connection-level events. Nil fields are skipped.
type Handlers struct {
	OnConnected     func(clientID string, err error)
	OnError         func(err error)
	OnDisconnected  func(err error)
	OnAuthenticated func(err error)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithHandlers installs connection-level handlers.
func WithHandlers(h Handlers) Option {
	return func(c *Client) {
		c.handlers = h
	}
}

// WithMetrics records client activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client multiplexes requests, room events and presence over one transport.
type Client struct {
	cfg     Config
	tr      transport.Transport
	session *core.Session
	log     *zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	state    State
	gen      uint64
	open     bool
	clientID string
	handlers Handlers
}

// New builds a disconnected client.
func New(cfg Config, tr transport.Transport, opts ...Option) *Client {
	nop := zerolog.Nop()
	c := &Client{
		cfg: cfg,
		tr:  tr,
		log: &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = core.NewSession(c, c.log, c.metrics)
	c.session.SetErrorHandler(c.connectionError)
	return c
}

// SetHandlers replaces the connection-level handlers. The zero value
// unregisters them.
func (c *Client) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ClientID returns the id assigned by the last handshake, or "" before it
// completes.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Room returns a tracked room.
func (c *Client) Room(name string) (*core.Room, bool) {
	return c.session.FindRoom(name)
}

// Connect opens the transport and sends the handshake. It returns once the
// socket is open; the handshake outcome is reported to OnConnected. Rooms
// tracked from an earlier session are subscribed again after the handshake.
// A Disconnect issued while dialing closes the new socket and Connect
// returns ErrClosed.
func (c *Client) Connect(ctx context.Context) error {
	clientData, err := c.clientData()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.log.Info().Str("channel", c.cfg.Channel).Msg("connecting")

	l := &listener{c: c, gen: gen, ctx: ctx, clientData: clientData}
	err = c.tr.Connect(ctx, l)
	if err == nil && l.openErr != nil {
		err = l.openErr
		_ = c.tr.Close()
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("connect failed")
		if c.transition(gen) {
			c.teardown(err)
		}
		return err
	}
	return nil
}

// Disconnect closes the transport, aborts pending calls and reports
// OnDisconnected(nil). It is a no-op when already disconnected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	if !c.transition(gen) {
		return nil
	}
	err := c.tr.Close()
	c.teardown(nil)
	return err
}

// Authenticate presents a token for the current client id. The outcome is
// reported to OnAuthenticated.
func (c *Client) Authenticate(ctx context.Context, token string) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return c.call(ctx, proto.TypeAuthenticate,
		func(id int64) any {
			return proto.Authenticate{Type: proto.TypeAuthenticate, Token: token, Callback: id}
		},
		func(env *proto.Envelope) {
			if h := c.currentHandlers(); h.OnAuthenticated != nil {
				h.OnAuthenticated(env.Err)
			}
		})
}

// Subscribe returns the room for name, subscribing on first use. Calling it
// again with the same name returns the same room without a new request.
// Rooms requested before the handshake completes are subscribed right after
// it.
func (c *Client) Subscribe(ctx context.Context, name string) (*core.Room, error) {
	if name == "" {
		return nil, ErrEmptyRoom
	}
	room, _ := c.session.Room(name)
	if c.State() != StateConnected {
		return room, nil
	}
	return room, c.subscribe(ctx, room)
}

// SubscribeWith is Subscribe with handlers installed before the request is
// sent, so no event can be missed.
func (c *Client) SubscribeWith(ctx context.Context, name string, h core.RoomHandlers) (*core.Room, error) {
	if name == "" {
		return nil, ErrEmptyRoom
	}
	room, _ := c.session.Room(name)
	room.Handle(h)
	if c.State() != StateConnected {
		return room, nil
	}
	return room, c.subscribe(ctx, room)
}

// Unsubscribe stops tracking a room and clears its handlers. Unknown names
// are ignored.
func (c *Client) Unsubscribe(ctx context.Context, name string) error {
	if !c.session.RemoveRoom(name) {
		return nil
	}
	if c.State() != StateConnected {
		return nil
	}
	return c.call(ctx, proto.TypeUnsubscribe,
		func(id int64) any {
			return proto.Unsubscribe{Type: proto.TypeUnsubscribe, Room: name, Callback: id}
		},
		func(env *proto.Envelope) {
			if env.Err != nil && !errors.Is(env.Err, proto.ErrAborted) {
				c.log.Warn().Err(env.Err).Str("room", name).Msg("unsubscribe failed")
			}
		})
}

// Publish sends message to a room. Nothing acknowledges it.
func (c *Client) Publish(ctx context.Context, room string, message any) error {
	if room == "" {
		return ErrEmptyRoom
	}
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return c.write(ctx, proto.TypePublish, proto.Publish{Type: proto.TypePublish, Room: room, Message: message})
}

func (c *Client) subscribe(ctx context.Context, room *core.Room) error {
	if !room.BeginSubscribe() {
		return nil
	}
	name := room.Name()
	err := c.call(ctx, proto.TypeSubscribe,
		func(id int64) any {
			return proto.Subscribe{Type: proto.TypeSubscribe, Room: name, Callback: id}
		},
		func(env *proto.Envelope) {
			room.EndSubscribe(env.Err == nil)
			if env.Err != nil {
				c.log.Warn().Err(env.Err).Str("room", name).Msg("subscribe failed")
			} else {
				c.log.Debug().Str("room", name).Msg("subscribed")
			}
			if h := room.Handlers(); h.OnJoined != nil {
				h.OnJoined(room, env.Err)
			}
		})
	if err != nil {
		room.EndSubscribe(false)
	}
	return err
}

// call registers cont, then sends the command built for its id. When the
// command cannot be sent the call is dropped and the error returned.
func (c *Client) call(ctx context.Context, typ string, build func(id int64) any, cont core.Continuation) error {
	id := c.session.Register(cont, c.cfg.CallTimeout)
	if err := c.write(ctx, typ, build(id)); err != nil {
		c.session.Cancel(id)
		return err
	}
	return nil
}

func (c *Client) write(ctx context.Context, typ string, cmd any) error {
	data, err := proto.Encode(cmd)
	if err != nil {
		return err
	}
	if err := c.tr.Send(ctx, data); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	c.metrics.FrameSent(typ)
	return nil
}

func (c *Client) clientData() (proto.Value, error) {
	if c.cfg.ClientData == nil {
		return proto.Value{}, nil
	}
	return proto.NewValue(c.cfg.ClientData)
}

// opened runs on OnOpen and sends the handshake.
func (c *Client) opened(ctx context.Context, gen uint64, clientData proto.Value) error {
	return c.call(ctx, proto.TypeHandshake,
		func(id int64) any {
			return proto.Handshake{
				Type:       proto.TypeHandshake,
				Channel:    c.cfg.Channel,
				ClientData: clientData,
				Callback:   id,
			}
		},
		func(env *proto.Envelope) { c.handshakeDone(gen, env) })
}

func (c *Client) handshakeDone(gen uint64, env *proto.Envelope) {
	err := env.Err
	if err == nil && env.ClientID == "" {
		err = ErrMissingClientID
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("handshake failed")
		c.notifyConnected("", err)
		if !errors.Is(err, proto.ErrAborted) && c.transition(gen) {
			_ = c.tr.Close()
			c.teardown(err)
		}
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.clientID = env.ClientID
	c.state = StateConnected
	c.mu.Unlock()

	c.log.Info().Str("client_id", env.ClientID).Msg("connected")

	ctx := context.Background()
	for _, room := range c.session.Rooms() {
		if err := c.subscribe(ctx, room); err != nil {
			c.log.Warn().Err(err).Str("room", room.Name()).Msg("resubscribe failed")
		}
	}

	c.notifyConnected(env.ClientID, nil)
}

// transition moves the given generation to Disconnected. It returns false
// when that generation already ended.
func (c *Client) transition(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state == StateDisconnected {
		return false
	}
	c.state = StateDisconnected
	c.clientID = ""
	if c.open {
		c.open = false
		c.metrics.ConnectionClosed()
	}
	return true
}

// teardown aborts pending calls, forgets room state and reports the
// disconnect.
func (c *Client) teardown(err error) {
	reason := err
	if reason == nil {
		reason = ErrClosed
	}
	if n := c.session.AbortAll(reason); n > 0 {
		c.log.Debug().Int("calls", n).Msg("aborted pending calls")
	}
	c.session.ResetRooms()

	if err != nil {
		c.log.Warn().Err(err).Msg("disconnected")
	} else {
		c.log.Info().Msg("disconnected")
	}
	if h := c.currentHandlers(); h.OnDisconnected != nil {
		h.OnDisconnected(err)
	}
}

func (c *Client) closed(gen uint64, err error) {
	if c.transition(gen) {
		c.teardown(err)
	}
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.state != StateDisconnected
}

func (c *Client) connectionError(err error) {
	c.log.Warn().Err(err).Msg("service error")
	if h := c.currentHandlers(); h.OnError != nil {
		h.OnError(err)
	}
}

func (c *Client) notifyConnected(clientID string, err error) {
	if h := c.currentHandlers(); h.OnConnected != nil {
		h.OnConnected(clientID, err)
	}
}

func (c *Client) currentHandlers() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

// listener binds transport callbacks to one connection generation so a late
// callback from an old socket cannot affect a newer session.
type listener struct {
	c          *Client
	gen        uint64
	ctx        context.Context
	clientData proto.Value
	openErr    error
}

// OnOpen sends the handshake unless Disconnect ended this generation while
// the transport was still dialing.
func (l *listener) OnOpen() {
	l.c.mu.Lock()
	live := l.c.gen == l.gen && l.c.state == StateConnecting
	if live {
		l.c.open = true
	}
	l.c.mu.Unlock()
	if !live {
		l.openErr = ErrClosed
		return
	}
	l.c.metrics.ConnectionOpened()
	l.openErr = l.c.opened(l.ctx, l.gen, l.clientData)
}

func (l *listener) OnText(data []byte) {
	if !l.c.current(l.gen) {
		return
	}
	_ = l.c.session.DispatchFrame(data)
}

func (l *listener) OnClose(err error) {
	l.c.closed(l.gen, err)
}
