package transport

import "context"

// Listener receives the events of one transport session.
type Listener interface {
	// OnOpen is called once the socket is usable, before any OnText.
	OnOpen()
	// OnText delivers text frames in arrival order.
	OnText(data []byte)
	// OnClose is called once when the session ends. A nil error means a
	// clean close.
	OnClose(err error)
}

// Transport is a bidirectional text channel to the service.
type Transport interface {
	// Connect opens a new session reporting to l. It returns once the
	// socket is open or the attempt failed.
	Connect(ctx context.Context, l Listener) error
	// Send writes one text frame.
	Send(ctx context.Context, data []byte) error
	// Close ends the current session.
	Close() error
}
