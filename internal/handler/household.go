package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/directory"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/websocket"
)

type HouseholdHandler struct {
	broadcaster
	directory *directory.Service
	logger    *slog.Logger
}

func NewHouseholdHandler(dir *directory.Service, hub *websocket.Hub, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{broadcaster: broadcaster{hub}, directory: dir, logger: logger}
}

// ListMine handles GET /api/households
func (h *HouseholdHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	ms, err := h.directory.ListForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "list households", err)
		return
	}
	if ms == nil {
		ms = []model.Membership{}
	}
	writeJSON(w, http.StatusOK, ms)
}

type householdRequest struct {
	Name *string `json:"name"`
	Icon *string `json:"icon"`
}

// Create handles POST /api/households. The caller becomes its admin.
func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil {
		writeMessage(w, http.StatusBadRequest, "name is required")
		return
	}
	icon := ""
	if req.Icon != nil {
		icon = *req.Icon
	}
	m, err := h.directory.Create(r.Context(), auth.UserID(r.Context()), *req.Name, icon)
	if err != nil {
		writeError(w, r, h.logger, "create household", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type joinRequest struct {
	Code string `json:"code"`
}

// Join handles POST /api/households/join
func (h *HouseholdHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeMessage(w, http.StatusBadRequest, "code is required")
		return
	}
	m, err := h.directory.Join(r.Context(), auth.UserID(r.Context()), req.Code)
	if err != nil {
		writeError(w, r, h.logger, "join household", err)
		return
	}
	if h.hub != nil {
		h.hub.Broadcast(m.ID, websocket.NewMessage(websocket.EntityHousehold, websocket.ActionUpdated, m.ID, nil))
	}
	writeJSON(w, http.StatusOK, m)
}

type householdResponse struct {
	*model.Household
	Role model.Role `json:"role"`
}

// Get handles GET /api/household
func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	hh, err := h.directory.Get(r.Context(), ac.HouseholdID)
	if err != nil {
		writeError(w, r, h.logger, "get household", err)
		return
	}
	writeJSON(w, http.StatusOK, householdResponse{Household: hh, Role: ac.Role})
}

// Update handles PATCH /api/household
func (h *HouseholdHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hid := auth.HouseholdID(r.Context())
	hh, err := h.directory.Update(r.Context(), hid, req.Name, req.Icon)
	if err != nil {
		writeError(w, r, h.logger, "update household", err)
		return
	}
	h.broadcast(r, websocket.EntityHousehold, websocket.ActionUpdated, hid)
	writeJSON(w, http.StatusOK, hh)
}

// Delete handles DELETE /api/household
func (h *HouseholdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hid := auth.HouseholdID(r.Context())
	h.broadcast(r, websocket.EntityHousehold, websocket.ActionDeleted, hid)
	if err := h.directory.Delete(r.Context(), hid); err != nil {
		writeError(w, r, h.logger, "delete household", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateCode handles POST /api/household/code. The old code stops
// working immediately.
func (h *HouseholdHandler) RegenerateCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.directory.RegenerateCode(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "regenerate invite code", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"invite_code": code})
}

// Leave handles POST /api/household/leave
func (h *HouseholdHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.directory.Leave(r.Context(), ac.UserID, ac.HouseholdID); err != nil {
		writeError(w, r, h.logger, "leave household", err)
		return
	}
	h.broadcast(r, websocket.EntityHousehold, websocket.ActionUpdated, ac.HouseholdID)
	w.WriteHeader(http.StatusNoContent)
}

// Members handles GET /api/household/members
func (h *HouseholdHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.directory.Members(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "list members", err)
		return
	}
	if members == nil {
		members = []model.HouseholdMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

type nicknameRequest struct {
	Nickname *string `json:"nickname"`
}

// SetNickname handles PATCH /api/household/members/me. A null or blank
// nickname clears it.
func (h *HouseholdHandler) SetNickname(w http.ResponseWriter, r *http.Request) {
	var req nicknameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ac, _ := auth.FromContext(r.Context())
	m, err := h.directory.SetNickname(r.Context(), ac.HouseholdID, ac.UserID, req.Nickname)
	if err != nil {
		writeError(w, r, h.logger, "set nickname", err)
		return
	}
	h.broadcast(r, websocket.EntityHousehold, websocket.ActionUpdated, ac.HouseholdID)
	writeJSON(w, http.StatusOK, m)
}

type roleRequest struct {
	Role model.Role `json:"role"`
}

// ChangeRole handles PATCH /api/household/members/{user_id}
func (h *HouseholdHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hid := auth.HouseholdID(r.Context())
	m, err := h.directory.ChangeRole(r.Context(), hid, r.PathValue("user_id"), req.Role)
	if err != nil {
		writeError(w, r, h.logger, "change role", err)
		return
	}
	h.broadcast(r, websocket.EntityHousehold, websocket.ActionUpdated, hid)
	writeJSON(w, http.StatusOK, m)
}

// Kick handles DELETE /api/household/members/{user_id}
func (h *HouseholdHandler) Kick(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.directory.Kick(r.Context(), ac.UserID, ac.HouseholdID, r.PathValue("user_id")); err != nil {
		writeError(w, r, h.logger, "remove member", err)
		return
	}
	h.broadcast(r, websocket.EntityHousehold, websocket.ActionUpdated, ac.HouseholdID)
	w.WriteHeader(http.StatusNoContent)
}
