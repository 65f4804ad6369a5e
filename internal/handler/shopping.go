package handler

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/ledger"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
	"github.com/dukerupert/larder/internal/websocket"
)

type ShoppingHandler struct {
	broadcaster
	shopping *store.ShoppingStore
	ledger   *ledger.Service
	logger   *slog.Logger
}

func NewShoppingHandler(db *sql.DB, l *ledger.Service, hub *websocket.Hub, logger *slog.Logger) *ShoppingHandler {
	return &ShoppingHandler{
		broadcaster: broadcaster{hub},
		shopping:    store.NewShoppingStore(db),
		ledger:      l,
		logger:      logger,
	}
}

func (h *ShoppingHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.shopping.List(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "list shopping items", err)
		return
	}
	if items == nil {
		items = []model.ShoppingItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type shoppingRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Create adds an item, merging into a pending item of the same name.
func (h *ShoppingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req shoppingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity < 0 {
		writeMessage(w, http.StatusBadRequest, "quantity cannot be negative")
		return
	}

	item, merged, err := h.shopping.Add(r.Context(), auth.HouseholdID(r.Context()), req.Name, req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, "add shopping item", err)
		return
	}
	if merged {
		h.broadcast(r, websocket.EntityShopping, websocket.ActionUpdated, item.ID)
		writeJSON(w, http.StatusOK, item)
		return
	}
	h.broadcast(r, websocket.EntityShopping, websocket.ActionCreated, item.ID)
	writeJSON(w, http.StatusCreated, item)
}

type updateShoppingRequest struct {
	Name      *string `json:"name"`
	Quantity  *int    `json:"quantity"`
	Completed *bool   `json:"completed"`
}

func (h *ShoppingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateShoppingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeMessage(w, http.StatusBadRequest, "name cannot be empty")
			return
		}
		req.Name = &name
	}
	if req.Quantity != nil && *req.Quantity < 1 {
		writeMessage(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	item, err := h.shopping.Update(r.Context(), auth.HouseholdID(r.Context()), id, store.ShoppingUpdate{
		Name:      req.Name,
		Quantity:  req.Quantity,
		Completed: req.Completed,
	})
	if err != nil {
		writeError(w, r, h.logger, "update shopping item", err)
		return
	}
	h.broadcast(r, websocket.EntityShopping, websocket.ActionUpdated, item.ID)
	writeJSON(w, http.StatusOK, item)
}

func (h *ShoppingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.shopping.Delete(r.Context(), auth.HouseholdID(r.Context()), id); err != nil {
		writeError(w, r, h.logger, "delete shopping item", err)
		return
	}
	h.broadcast(r, websocket.EntityShopping, websocket.ActionDeleted, id)
	w.WriteHeader(http.StatusNoContent)
}

// ClearCompleted handles POST /api/shopping/clear-completed
func (h *ShoppingHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	n, err := h.shopping.ClearCompleted(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "clear completed shopping items", err)
		return
	}
	if n > 0 {
		h.broadcast(r, websocket.EntityShopping, websocket.ActionDeleted, 0)
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

type toInventoryRequest struct {
	LocationID int64      `json:"location_id"`
	Quantity   int        `json:"quantity"`
	ExpiresOn  model.Date `json:"expires_on"`
}

// ToInventory handles POST /api/shopping/{id}/to-inventory: the bought item
// becomes stock and leaves the list.
func (h *ShoppingHandler) ToInventory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req toInventoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity < 0 {
		writeMessage(w, http.StatusBadRequest, "quantity cannot be negative")
		return
	}

	c, err := h.ledger.Purchase(r.Context(), auth.HouseholdID(r.Context()), id, req.LocationID, req.Quantity, req.ExpiresOn)
	if err != nil {
		writeError(w, r, h.logger, "move shopping item to inventory", err)
		return
	}
	h.broadcast(r, websocket.EntityShopping, websocket.ActionDeleted, id)
	action := websocket.ActionCreated
	if c.Merged {
		action = websocket.ActionUpdated
	}
	h.broadcast(r, websocket.EntityStock, action, c.Line.ID)
	writeJSON(w, http.StatusCreated, createdResponse{Line: newStockResponse(c.Line, h.ledger.Today()), Merged: c.Merged})
}
