package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/bearound/booking-funnel/internal/funnel"
	httpmiddleware "github.com/bearound/booking-funnel/internal/http/middleware"
	"github.com/bearound/booking-funnel/pkg/logging"
)

const watchWriteTimeout = 10 * time.Second

var errOriginNotAllowed = errors.New("watch: origin not allowed")

// watchMessage is one frame sent to a watcher.
type watchMessage struct {
	Type    string          `json:"type"`
	Session *funnel.Session `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type watchInbound struct {
	Type string `json:"type"`
}

// WatchHandler streams session snapshots over a WebSocket.
type WatchHandler struct {
	ctrl    *funnel.Controller
	origins httpmiddleware.Origins
	logger  *logging.Logger
}

// NewWatchHandler creates a handler accepting upgrades from allowedOrigins
// ("*" or an empty list accepts any origin).
func NewWatchHandler(ctrl *funnel.Controller, allowedOrigins []string, logger *logging.Logger) *WatchHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WatchHandler{
		ctrl:    ctrl,
		origins: httpmiddleware.ParseOrigins(allowedOrigins),
		logger:  logger,
	}
}

// Watch handles GET /api/sessions/{id}/watch.
func (h *WatchHandler) Watch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.ctrl.Get(r.Context(), id); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	server := websocket.Server{
		Handshake: h.handshake,
		Handler: func(conn *websocket.Conn) {
			h.serveWS(conn, id)
		},
	}
	server.ServeHTTP(w, r)
}

func (h *WatchHandler) handshake(config *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(config, r)
	if err != nil {
		return err
	}
	config.Origin = origin
	if h.origins.Empty() {
		return nil
	}
	if origin == nil || !h.origins.Allows(origin.Scheme+"://"+origin.Host) {
		return errOriginNotAllowed
	}
	return nil
}

func (h *WatchHandler) serveWS(conn *websocket.Conn, id string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, stop, err := h.ctrl.Watch(ctx, id)
	var sendMu sync.Mutex
	send := func(msg watchMessage) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
		return websocket.JSON.Send(conn, msg)
	}
	if err != nil {
		_, msg := funnel.Classify(err)
		_ = send(watchMessage{Type: "error", Error: msg})
		return
	}
	defer stop()
	h.logger.Debug("watch: connection opened", "session_id", id)

	go func() {
		defer cancel()
		for {
			var msg watchInbound
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				if err := send(watchMessage{Type: "pong"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("watch: connection closed", "session_id", id)
			return
		case s, ok := <-updates:
			if !ok {
				_ = send(watchMessage{Type: "closed"})
				return
			}
			if err := send(watchMessage{Type: "session", Session: s}); err != nil {
				h.logger.Debug("watch: send failed", "session_id", id, "error", err)
				return
			}
		}
	}
}
