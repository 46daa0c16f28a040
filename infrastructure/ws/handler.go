// Package ws is the WebSocket transport of the pairing service.
// It turns frames into commands and writes outbound envelopes, it holds no pairing state.
package ws

import (
	"chat-match/contract"
	"chat-match/domain"
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const clientIDParam = "client_id"

type Handler struct {
	log        *slog.Logger
	dispatcher contract.Dispatcher
	registry   contract.IRegistry
	decoder    *FrameDecoder
	upgrader   websocket.Upgrader
	settings   Settings
}

func NewHandler(log *slog.Logger, dispatcher contract.Dispatcher, registry contract.IRegistry, settings Settings) *Handler {
	h := &Handler{
		log:        log,
		dispatcher: dispatcher,
		registry:   registry,
		decoder:    NewFrameDecoder(settings.MaxMessageLength),
		settings:   settings,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return settings.allowOrigin(r.Header.Get("Origin"))
		},
	}
	return h
}

// ServeHTTP upgrades the request and serves the connection until the peer leaves.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Upgrade refused", "origin", r.Header.Get("Origin"), "error", err)
		return
	}

	conn := domain.ConnectionID(uuid.NewString())
	client := NewClient(conn, socket, h.log, h.settings)
	h.registry.Register(conn, client)
	go client.WriteLoop()

	// The request context lives as long as this handler, or until the server's base context is canceled.
	ctx := r.Context()
	defer func() {
		h.dispatchUntilAccepted(ctx, domain.DisconnectCommand{Conn: conn})
		h.registry.Unregister(conn)
	}()

	if err = h.dispatcher.Dispatch(ctx, domain.ConnectCommand{
		Conn:        conn,
		ClientLabel: r.URL.Query().Get(clientIDParam),
	}); err != nil {
		h.log.Warn("Connection rejected", "conn", conn.Suffix(), "error", err)
		return
	}

	client.ReadLoop(func(data []byte) {
		cmd := h.decoder.Decode(conn, data)
		if err := h.dispatcher.Dispatch(ctx, cmd); err != nil {
			h.log.Warn("Event rejected", "conn", conn.Suffix(), "error", err)
		}
	})
}

// dispatchUntilAccepted retries cmd until the dispatcher takes it or ctx is done.
// Losing a disconnect would leave the connection in the pairing structures forever.
func (h *Handler) dispatchUntilAccepted(ctx context.Context, cmd domain.Command) {
	for attempt := 1; ; attempt++ {
		err := h.dispatcher.Dispatch(ctx, cmd)
		if err == nil || ctx.Err() != nil {
			return
		}
		h.log.Warn("Dispatch retried", "conn", cmd.ConnectionID().Suffix(), "attempt", attempt, "error", err)
	}
}
