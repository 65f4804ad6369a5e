package handler

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/push"
	"github.com/dukerupert/larder/internal/store"
)

type NotificationHandler struct {
	pushStore *store.PushStore
	sender    push.Sender
	vapidKey  string
	logger    *slog.Logger
}

// NewNotificationHandler serves devices and preferences. Devices are only
// accepted for platforms sender can reach; sender is nil when push is off.
// vapidKey is the public key browsers subscribe with.
func NewNotificationHandler(db *sql.DB, sender push.Sender, vapidKey string, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{pushStore: store.NewPushStore(db), sender: sender, vapidKey: vapidKey, logger: logger}
}

type deviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// RegisterDevice handles POST /api/notifications/devices
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeMessage(w, http.StatusBadRequest, "token is required")
		return
	}
	switch req.Platform {
	case model.PlatformWeb:
		if req.P256dh == "" || req.Auth == "" {
			writeMessage(w, http.StatusBadRequest, "web devices need p256dh and auth keys")
			return
		}
	case model.PlatformAndroid, model.PlatformIOS:
	default:
		writeMessage(w, http.StatusBadRequest, "platform must be web, android or ios")
		return
	}
	if !push.Supports(h.sender, req.Platform) {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("push notifications are not configured for %s", req.Platform))
		return
	}

	d, err := h.pushStore.RegisterDevice(r.Context(), auth.UserID(r.Context()), req.Token, req.Platform, req.P256dh, req.Auth)
	if err != nil {
		writeError(w, r, h.logger, "register device", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// UnregisterDevice handles DELETE /api/notifications/devices
func (h *NotificationHandler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeMessage(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := h.pushStore.UnregisterDevice(r.Context(), auth.UserID(r.Context()), strings.TrimSpace(req.Token)); err != nil {
		writeError(w, r, h.logger, "unregister device", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDevices handles GET /api/notifications/devices
func (h *NotificationHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.pushStore.ListDevices(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "list devices", err)
		return
	}
	if devices == nil {
		devices = []model.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

// GetPreferences handles GET /api/notifications/preferences
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	pref, err := h.pushStore.GetPreference(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "get preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

type preferenceRequest struct {
	Enabled        *bool  `json:"enabled"`
	NotifyTime     string `json:"notify_time"`
	TimezoneOffset *int   `json:"timezone_offset"`
}

// UpdatePreferences handles PUT /api/notifications/preferences. The offset
// follows the browser convention: minutes to add to local time to get UTC.
func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil || req.TimezoneOffset == nil {
		writeMessage(w, http.StatusBadRequest, "enabled, notify_time and timezone_offset are required")
		return
	}
	hour, minute, err := push.ParseNotifyTime(req.NotifyTime)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "notify_time must be HH:MM")
		return
	}
	if !push.ValidTimezoneOffset(*req.TimezoneOffset) {
		writeMessage(w, http.StatusBadRequest, "timezone_offset must be between -840 and 720")
		return
	}

	pref := model.NotificationPreference{
		UserID:         auth.UserID(r.Context()),
		Enabled:        *req.Enabled,
		NotifyTime:     fmt.Sprintf("%02d:%02d", hour, minute),
		TimezoneOffset: *req.TimezoneOffset,
	}
	if err := h.pushStore.SetPreference(r.Context(), pref); err != nil {
		writeError(w, r, h.logger, "save preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// VAPIDKey handles GET /api/notifications/vapid-key
func (h *NotificationHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.vapidKey == "" {
		writeMessage(w, http.StatusNotFound, "web push is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.vapidKey})
}
