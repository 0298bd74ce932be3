package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/campuslms/chatcore/internal/auth"
	"github.com/campuslms/chatcore/internal/config"
	"github.com/campuslms/chatcore/internal/core"
	"github.com/campuslms/chatcore/internal/proto"
	"github.com/campuslms/chatcore/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub    *core.Hub
	auth   *auth.Service
	chat   config.ChatConfig
	frames *core.RateLimiter
	log    *zerolog.Logger

	closing context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	closed bool
	conns  sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, chat config.ChatConfig, logger *zerolog.Logger) *WSHandler {
	closing, stop := context.WithCancel(context.Background())
	return &WSHandler{
		hub:     hub,
		auth:    authService,
		chat:    chat,
		frames:  core.NewRateLimiter(time.Minute, chat.FrameLimitPerMinute, nil),
		log:     logger,
		closing: closing,
		stop:    stop,
	}
}

// Close refuses new upgrades, ends every open socket with StatusGoingAway and
// waits for the handlers to return.
func (h *WSHandler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.stop()

	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track registers a live socket; it fails once Close has started.
func (h *WSHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns.Add(1)
	return true
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if !h.track() {
		writeJSONError(w, stdhttp.StatusServiceUnavailable, "server shutting down")
		return
	}
	defer h.conns.Done()

	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		writeJSONError(w, stdhttp.StatusUnauthorized, "missing token")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws authentication failed")
		writeJSONError(w, stdhttp.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(utils.NewID(), *user, h.chat.ClientBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.Disconnect(client)
	defer h.frames.Forget(client.ID)

	h.log.Info().Str("conn_id", client.ID).Int64("user_id", client.UserID).Msg("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stopClosing := context.AfterFunc(h.closing, func() {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	})
	defer stopClosing()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if h.closing.Err() != nil {
		status = websocket.StatusGoingAway
		reason = "server shutting down"
	} else if err != nil && !errors.Is(err, context.Canceled) {
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

	h.log.Info().Str("conn_id", client.ID).Int64("user_id", client.UserID).Msg("ws disconnected")
	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !h.frames.Allow(client.ID) {
			h.log.Debug().Str("conn_id", client.ID).Msg("inbound frame limit exceeded")
			if err := writeError(ctx, conn, &proto.Error{Code: core.ErrCodeRateLimited, Message: "too many frames, slow down"}); err != nil {
				return err
			}
			continue
		}

		var inbound proto.Inbound
		if typ != websocket.MessageText || json.Unmarshal(payload, &inbound) != nil {
			if err := writeError(ctx, conn, badRequest("frame is not a JSON envelope")); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(client, inbound)
		if protoErr != nil {
			h.log.Debug().Str("conn_id", client.ID).Str("type", inbound.Type).Str("code", protoErr.Code).Msg("rejected inbound frame")
			if err := writeError(ctx, conn, protoErr); err != nil {
				return err
			}
			continue
		}

		// Rejections are delivered to the client as error events by the hub.
		_ = h.hub.Handle(ctx, client, cmd)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			outbound, err := outboundFromEvent(event)
			if err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("map ws event")
				continue
			}
			if err := wsjson.Write(ctx, conn, outbound); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, perr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: perr})
}

func writeJSONError(w stdhttp.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
