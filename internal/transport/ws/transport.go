package ws

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredrone/internal/proto"
	"github.com/vovakirdan/wiredrone/internal/transport"
)

var (
	// ErrNotOpen is returned by Send without an open session.
	ErrNotOpen = errors.New("websocket not open")
	// ErrAlreadyOpen is returned by Connect while a session is open.
	ErrAlreadyOpen = errors.New("websocket already open")
)

// Config holds dial settings.
type Config struct {
	URL          string
	WriteTimeout time.Duration
	ReadLimit    int64
	DialOptions  *websocket.DialOptions
}

// Transport implements transport.Transport on a coder/websocket connection.
type Transport struct {
	cfg Config
	log *zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

var _ transport.Transport = (*Transport)(nil)

// New builds a transport for cfg.URL.
func New(cfg Config, logger *zerolog.Logger) *Transport {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Transport{cfg: cfg, log: logger}
}

// Connect dials the service, reports OnOpen and starts the read loop.
func (t *Transport) Connect(ctx context.Context, l transport.Listener) error {
	t.mu.Lock()
	open := t.conn != nil
	t.mu.Unlock()
	if open {
		return ErrAlreadyOpen
	}

	conn, _, err := websocket.Dial(ctx, t.cfg.URL, t.cfg.DialOptions)
	if err != nil {
		return &proto.TransportError{Op: "dial", Err: err}
	}
	if t.cfg.ReadLimit > 0 {
		conn.SetReadLimit(t.cfg.ReadLimit)
	}

	readCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "duplicate connect")
		return ErrAlreadyOpen
	}
	t.conn = conn
	t.cancel = cancel
	t.mu.Unlock()

	t.log.Debug().Str("url", t.cfg.URL).Msg("websocket open")
	l.OnOpen()

	go t.readLoop(readCtx, conn, l)
	return nil
}

// Send writes one text frame.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	if t.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.WriteTimeout)
		defer cancel()
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return &proto.TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close performs a normal closure of the current session.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn, cancel := t.conn, t.cancel
	t.conn, t.cancel = nil, nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "bye")
	cancel()
	if err != nil && closeError(err) != nil {
		return &proto.TransportError{Op: "close", Err: err}
	}
	return nil
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn, l transport.Listener) {
	err := t.read(ctx, conn, l)

	t.mu.Lock()
	owned := t.conn == conn
	if owned {
		t.conn = nil
		if t.cancel != nil {
			t.cancel()
		}
		t.cancel = nil
	}
	t.mu.Unlock()

	// Close already detached the connection; whatever Read returned is the
	// result of our own shutdown.
	if !owned {
		l.OnClose(nil)
		return
	}

	err = closeError(err)
	if err != nil {
		t.log.Warn().Err(err).Msg("websocket closed with error")
		conn.Close(websocket.StatusInternalError, "read failed")
	}
	l.OnClose(err)
}

func (t *Transport) read(ctx context.Context, conn *websocket.Conn, l transport.Listener) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			t.log.Debug().Int("size", len(data)).Msg("ignoring binary frame")
			continue
		}
		l.OnText(data)
	}
}

// closeError maps expected shutdowns to nil and everything else to a
// TransportError.
func closeError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return &proto.TransportError{Op: "read", Err: err}
}
