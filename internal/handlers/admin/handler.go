package admin

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"possale/internal/audit"
	"possale/internal/auth"
	"possale/internal/logging"
	"possale/internal/models"
	"possale/internal/pos"
	"possale/internal/response"
	"possale/internal/store"
	"possale/internal/validation"
)

// Handler holds dependencies for login and counter administration.
type Handler struct {
	DB       *sql.DB
	Settings *store.Settings
	Audit    *audit.Logger
	Validate *validator.Validate
	Log      *logrus.Logger
	// SecureCookies marks the session cookie Secure. Off only for plain
	// HTTP development setups and tests.
	SecureCookies bool
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required"`
}

// POSSettingsRequest is the body of PUT /api/v1/settings/pos.
type POSSettingsRequest struct {
	UndoLimitMinutes  int `json:"undo_limit_minutes" validate:"required,min=1,max=60"`
	LowStockThreshold int `json:"low_stock_threshold" validate:"min=0"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := response.DecodeBody(r, v); err != nil {
		response.ErrCode(w, "invalid JSON body", "VALIDATION_ERROR", http.StatusBadRequest)
		return false
	}
	ve := &validation.ValidationErrors{}
	validation.FromStruct(ve, h.Validate, v)
	if ve.HasErrors() {
		response.Error(w, ve)
		return false
	}
	return true
}

// HandleLogin authenticates a user and creates a session.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := auth.CheckPassword(r.Context(), h.DB, req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		response.ErrCode(w, "Account temporarily locked due to too many failed login attempts. Try again later.", "LOCKED", http.StatusForbidden)
		return
	case errors.Is(err, auth.ErrAccountInactive):
		response.ErrCode(w, "Account deactivated", "FORBIDDEN", http.StatusForbidden)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		response.ErrCode(w, "Invalid username or password", "UNAUTHORIZED", http.StatusUnauthorized)
		return
	case err != nil:
		logging.LogError(h.Log, "admin", "HandleLogin", "check password", req.Username, err)
		response.Err(w, "internal error", http.StatusInternalServerError)
		return
	}

	token, expires, err := auth.CreateSession(r.Context(), h.DB, id.UserID)
	if err != nil {
		logging.LogError(h.Log, "admin", "HandleLogin", "create session", req.Username, err)
		response.Err(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	h.Audit.Record(r.Context(), id.Username, audit.ActionLogin, "auth", id.Username, "Logged in from "+audit.GetClientIP(r))
	response.JSON(w, id)
}

// HandleLogout ends the session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		auth.DeleteSession(r.Context(), h.DB, cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	response.JSON(w, map[string]string{"status": "ok"})
}

// HandleMe returns the current user's identity.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		response.ErrCode(w, "Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}
	response.JSON(w, id)
}

// GetPOSSettings returns the undo limit and low-stock threshold.
func (h *Handler) GetPOSSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Settings.POSSettings(r.Context())
	if err != nil {
		logging.LogError(h.Log, "admin", "GetPOSSettings", "load", nil, err)
		response.Error(w, err)
		return
	}
	response.JSON(w, s)
}

// PutPOSSettings updates the counter settings. Admin only. A new undo limit
// applies to sales committed afterwards.
func (h *Handler) PutPOSSettings(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	if !auth.CanManageSettings(id.Role) {
		response.Error(w, pos.ErrForbidden)
		return
	}
	var req POSSettingsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := pos.ValidateUndoLimit(req.UndoLimitMinutes); err != nil {
		response.Error(w, err)
		return
	}
	s := models.POSSettings{UndoLimitMinutes: req.UndoLimitMinutes, LowStockThreshold: req.LowStockThreshold}
	if err := h.Settings.SavePOSSettings(r.Context(), s); err != nil {
		logging.LogError(h.Log, "admin", "PutPOSSettings", "save", s, err)
		response.Error(w, err)
		return
	}
	h.Audit.Record(r.Context(), id.Username, audit.ActionUpdate, "settings", "pos", "Updated POS settings")
	response.JSON(w, s)
}

// ListAudit returns recent audit entries. Admin only.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	if id.Role != auth.RoleAdmin {
		response.Error(w, pos.ErrForbidden)
		return
	}
	entries, err := h.Audit.List(r.Context(), r.URL.Query().Get("module"), 200)
	if err != nil {
		logging.LogError(h.Log, "admin", "ListAudit", "list", nil, err)
		response.Error(w, err)
		return
	}
	response.JSONMeta(w, entries, len(entries), 1, 200)
}
