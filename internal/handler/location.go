package handler

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
	"github.com/dukerupert/larder/internal/websocket"
)

type LocationHandler struct {
	broadcaster
	locations *store.LocationStore
	logger    *slog.Logger
}

func NewLocationHandler(db *sql.DB, hub *websocket.Hub, logger *slog.Logger) *LocationHandler {
	return &LocationHandler{broadcaster: broadcaster{hub}, locations: store.NewLocationStore(db), logger: logger}
}

type locationRequest struct {
	Name      *string `json:"name"`
	IsFreezer *bool   `json:"is_freezer"`
}

func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	locs, err := h.locations.List(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "list locations", err)
		return
	}
	if locs == nil {
		locs = []model.Location{}
	}
	writeJSON(w, http.StatusOK, locs)
}

func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		writeMessage(w, http.StatusBadRequest, "name is required")
		return
	}
	freezer := req.IsFreezer != nil && *req.IsFreezer

	loc, err := h.locations.Create(r.Context(), auth.HouseholdID(r.Context()), strings.TrimSpace(*req.Name), freezer)
	if err != nil {
		writeError(w, r, h.logger, "create location", err)
		return
	}
	h.broadcast(r, websocket.EntityLocation, websocket.ActionCreated, loc.ID)
	writeJSON(w, http.StatusCreated, loc)
}

// Update renames a location or toggles its freezer flag.
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req locationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	hid := auth.HouseholdID(r.Context())
	existing, err := h.locations.GetByID(r.Context(), hid, id)
	if err != nil {
		writeError(w, r, h.logger, "get location", err)
		return
	}
	name, freezer := existing.Name, existing.IsFreezer
	if req.Name != nil {
		if name = strings.TrimSpace(*req.Name); name == "" {
			writeMessage(w, http.StatusBadRequest, "name cannot be empty")
			return
		}
	}
	if req.IsFreezer != nil {
		freezer = *req.IsFreezer
	}

	loc, err := h.locations.Update(r.Context(), hid, id, name, freezer)
	if err != nil {
		writeError(w, r, h.logger, "update location", err)
		return
	}
	h.broadcast(r, websocket.EntityLocation, websocket.ActionUpdated, loc.ID)
	writeJSON(w, http.StatusOK, loc)
}

// Delete removes a location that holds no stock.
func (h *LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.locations.Delete(r.Context(), auth.HouseholdID(r.Context()), id); err != nil {
		writeError(w, r, h.logger, "delete location", err)
		return
	}
	h.broadcast(r, websocket.EntityLocation, websocket.ActionDeleted, id)
	w.WriteHeader(http.StatusNoContent)
}
