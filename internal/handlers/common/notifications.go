package common

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"possale/internal/auth"
	"possale/internal/logging"
	"possale/internal/models"
	"possale/internal/response"
	"possale/internal/store"
	"possale/internal/websocket"
)

// Handler serves the staff notification inbox and its event stream.
type Handler struct {
	Store  *store.Store
	Hub    *websocket.Hub
	Tokens *auth.StreamTokens
	Log    *logrus.Logger
}

// StreamToken is returned by POST /api/v1/stream-token.
type StreamToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ListNotifications returns the full inbox, newest first. This is the
// authoritative fetch clients reconcile against after a reconnect.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Store.ListNotifications(r.Context(), r.URL.Query().Get("unread") == "true")
	if err != nil {
		logging.LogError(h.Log, "common", "ListNotifications", "list", nil, err)
		response.Error(w, err)
		return
	}
	response.JSONMeta(w, notes, len(notes), 1, len(notes))
}

func parseID(w http.ResponseWriter, id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		response.Err(w, "invalid notification id", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, u models.NotificationUpdate) {
	if u.ID != 0 {
		ok, err := h.Store.NotificationExists(r.Context(), u.ID)
		if err != nil {
			response.Error(w, err)
			return
		}
		if !ok {
			response.ErrCode(w, "notification not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
	}
	changed, err := h.Store.ApplyNotificationUpdate(r.Context(), u)
	if err != nil {
		logging.LogError(h.Log, "common", "update", string(u.Action), u, err)
		response.Error(w, err)
		return
	}
	if changed {
		h.Hub.PublishUpdate(u)
	}
	response.JSON(w, u)
}

// MarkNotificationRead marks a single notification as read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request, id string) {
	n, ok := parseID(w, id)
	if !ok {
		return
	}
	h.update(w, r, models.NotificationUpdate{Action: models.ActionRead, ID: n})
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, models.NotificationUpdate{Action: models.ActionReadAll})
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request, id string) {
	n, ok := parseID(w, id)
	if !ok {
		return
	}
	h.update(w, r, models.NotificationUpdate{Action: models.ActionDelete, ID: n})
}

func (h *Handler) DeleteAllNotifications(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, models.NotificationUpdate{Action: models.ActionDeleteAll})
}

// IssueStreamToken hands the logged-in user a short-lived token for the
// websocket upgrade.
func (h *Handler) IssueStreamToken(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		response.ErrCode(w, "Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}
	token, expires, err := h.Tokens.Issue(id)
	if err != nil {
		logging.LogError(h.Log, "common", "IssueStreamToken", "issue", id.Username, err)
		response.Err(w, "could not issue stream token", http.StatusInternalServerError)
		return
	}
	response.JSON(w, StreamToken{Token: token, ExpiresAt: expires})
}

// Stream authenticates the token query parameter and hands the connection
// to the hub.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	id, err := h.Tokens.Parse(r.URL.Query().Get("token"))
	if err != nil {
		response.ErrCode(w, "invalid stream token", "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}
	h.Hub.Serve(w, r, id.Username)
}
