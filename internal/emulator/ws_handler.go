package emulator

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredrone/internal/metrics"
	"github.com/vovakirdan/wiredrone/internal/proto"
	"github.com/vovakirdan/wiredrone/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to hub clients.
type WSHandler struct {
	hub     *Hub
	log     *zerolog.Logger
	metrics *metrics.Metrics
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *Hub, logger *zerolog.Logger, m *metrics.Metrics) *WSHandler {
	return &WSHandler{hub: hub, log: logger, metrics: m}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := NewClient(utils.NewID())
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.hub.cfg.PublishRate, time.Minute)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, limiter *rateLimiter) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		req, err := proto.DecodeRequest(data)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("malformed frame")
			h.metrics.FrameDropped("decode")
			if writeErr := wsjson.Write(ctx, conn, proto.Event{Error: "malformed frame"}); writeErr != nil {
				return writeErr
			}
			continue
		}

		cmd, protoErr := requestToCommand(req)
		if protoErr == nil && cmd.Kind == CommandPublish && !limiter.allow() {
			h.metrics.FrameDropped("rate_limited")
			protoErr = newError(ErrCodeRateLimited, "rate limit exceeded")
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Event{
				Callback: req.Callback,
				Error:    protoErr.Message,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			frame := frameFromEvent(event)
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
			h.metrics.FrameSent(frameLabel(frame))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func frameLabel(frame proto.Event) string {
	switch {
	case frame.Type != "":
		return frame.Type
	case frame.Error != "":
		return "error"
	default:
		return "reply"
	}
}
