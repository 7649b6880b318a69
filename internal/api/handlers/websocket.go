package handlers

import (
	"log/slog"
	"net/http"

	"github.com/dom/accounts/internal/api/middleware"
	"github.com/dom/accounts/internal/api/response"
	"github.com/dom/accounts/internal/events"
	"github.com/dom/accounts/internal/logger"
	"github.com/dom/accounts/internal/service"
	ws "github.com/gorilla/websocket"
)

type SessionEventsHandler struct {
	hub      *events.Hub
	upgrader ws.Upgrader
	log      *slog.Logger
}

// NewSessionEventsHandler accepts same-origin connections, plus allowedOrigin
// when it is set.
func NewSessionEventsHandler(hub *events.Hub, allowedOrigin string, log *slog.Logger) *SessionEventsHandler {
	h := &SessionEventsHandler{
		hub: hub,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log,
	}
	if allowedOrigin != "" {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		}
	}
	return h
}

// Handle streams the caller's session events until the connection closes.
func (h *SessionEventsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, service.ErrUnauthorized.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Err(err))
		return
	}

	client := events.NewClient(h.hub, conn, user.ID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
