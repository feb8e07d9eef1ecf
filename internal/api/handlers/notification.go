package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/cloo-solutions/botstudio/internal/realtime"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type NotificationService interface {
	List(ctx context.Context, p domain.Principal, unreadOnly bool, in service.ListInput) (*pagination.Page[*domain.Notification], error)
	MarkRead(ctx context.Context, p domain.Principal, id string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, p domain.Principal) (int64, error)
	Delete(ctx context.Context, p domain.Principal, id string) error
	UnreadCount(ctx context.Context, workspaceID, userID string) (int64, error)
}

// StreamHub takes ownership of an upgraded connection.
type StreamHub interface {
	Attach(conn *websocket.Conn, workspaceID, userID string, unread int64) *realtime.Client
}

type NotificationHandler struct {
	svc      NotificationService
	hub      StreamHub
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewNotificationHandler(svc NotificationService, hub StreamHub, log logrus.FieldLogger) *NotificationHandler {
	return &NotificationHandler{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Callers authenticate with an API key, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.WithField("component", "notification_stream"),
	}
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	in, ok := listInput(w, r)
	if !ok {
		return
	}

	unreadOnly := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "unread must be a boolean")
			return
		}
		unreadOnly = v
	}

	page, err := h.svc.List(r.Context(), p, unreadOnly, in)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, pageResponse(page, func(n *domain.Notification) *domain.Notification { return n }))
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	n, err := h.svc.UnreadCount(r.Context(), p.WorkspaceID, p.UserID)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, &UnreadCountResponse{Count: n})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	n, err := h.svc.MarkRead(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, n)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	n, err := h.svc.MarkAllRead(r.Context(), p)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, &MarkAllReadResponse{Updated: n})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream upgrades to a websocket that receives the caller's notifications.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		api.Error(w, http.StatusBadRequest, "websocket upgrade required")
		return
	}

	unread, err := h.svc.UnreadCount(r.Context(), p.WorkspaceID, p.UserID)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	h.hub.Attach(conn, p.WorkspaceID, p.UserID, unread)
}
