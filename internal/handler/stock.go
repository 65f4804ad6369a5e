package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/ledger"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/websocket"
)

type StockHandler struct {
	broadcaster
	ledger *ledger.Service
	logger *slog.Logger
}

func NewStockHandler(l *ledger.Service, hub *websocket.Hub, logger *slog.Logger) *StockHandler {
	return &StockHandler{broadcaster: broadcaster{hub}, ledger: l, logger: logger}
}

// stockResponse is a stock line as clients see it.
type stockResponse struct {
	ID           int64      `json:"id"`
	ProductID    int64      `json:"product_id"`
	ProductName  string     `json:"product_name"`
	Brand        string     `json:"brand"`
	Barcode      *string    `json:"barcode"`
	ImageURL     string     `json:"image_url"`
	LocationID   int64      `json:"location_id"`
	LocationName string     `json:"location_name"`
	IsFreezer    bool       `json:"is_freezer"`
	Quantity     int        `json:"quantity"`
	ExpiresOn    model.Date `json:"expires_on"`
	model.LifecycleColumns
	DaysLeft  int          `json:"days_left"`
	Tags      []ledger.Tag `json:"tags"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func newStockResponse(v *model.StockView, today model.Date) stockResponse {
	tags := ledger.Tags(v, today)
	if tags == nil {
		tags = []ledger.Tag{}
	}
	return stockResponse{
		ID:               v.ID,
		ProductID:        v.ProductID,
		ProductName:      v.ProductName,
		Brand:            v.Brand,
		Barcode:          v.Barcode,
		ImageURL:         v.ImageURL,
		LocationID:       v.LocationID,
		LocationName:     v.LocationName,
		IsFreezer:        v.IsFreezer,
		Quantity:         v.Quantity,
		ExpiresOn:        v.ExpiresOn,
		LifecycleColumns: model.EncodeLifecycle(v.Lifecycle),
		DaysLeft:         v.DaysLeft(today),
		Tags:             tags,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
}

type createdResponse struct {
	Line   stockResponse `json:"line"`
	Merged bool          `json:"merged"`
}

func (h *StockHandler) writeCreated(w http.ResponseWriter, r *http.Request, c *ledger.Created) {
	action := websocket.ActionCreated
	status := http.StatusCreated
	if c.Merged {
		action = websocket.ActionUpdated
		status = http.StatusOK
	}
	h.broadcast(r, websocket.EntityStock, action, c.Line.ID)
	writeJSON(w, status, createdResponse{Line: newStockResponse(c.Line, h.ledger.Today()), Merged: c.Merged})
}

// List handles GET /api/stock?q=&status=&sort=&order=
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := ledger.Query{
		Search: strings.TrimSpace(params.Get("q")),
		Sort:   params.Get("sort"),
	}
	switch params.Get("order") {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		writeMessage(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}
	for _, raw := range params["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s == "" {
				continue
			}
			tag, err := ledger.ParseTag(s)
			if err != nil {
				writeError(w, r, h.logger, "list stock", err)
				return
			}
			q.Tags = append(q.Tags, tag)
		}
	}

	views, err := h.ledger.List(r.Context(), auth.HouseholdID(r.Context()), q)
	if err != nil {
		writeError(w, r, h.logger, "list stock", err)
		return
	}
	today := h.ledger.Today()
	out := make([]stockResponse, 0, len(views))
	for i := range views {
		out = append(out, newStockResponse(&views[i], today))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/stock/{id}
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	v, err := h.ledger.Get(r.Context(), auth.HouseholdID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, "get stock", err)
		return
	}
	writeJSON(w, http.StatusOK, newStockResponse(v, h.ledger.Today()))
}

type manualEntryRequest struct {
	Name       string      `json:"name"`
	Brand      string      `json:"brand"`
	LocationID int64       `json:"location_id"`
	Quantity   int         `json:"quantity"`
	ExpiresOn  model.Date  `json:"expires_on"`
	State      model.State `json:"state"`
}

// Create handles POST /api/stock
func (h *StockHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req manualEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeMessage(w, http.StatusBadRequest, "name is required")
		return
	}

	c, err := h.ledger.AddManual(r.Context(), auth.HouseholdID(r.Context()), ledger.ManualEntry{
		Name:       req.Name,
		Brand:      strings.TrimSpace(req.Brand),
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		ExpiresOn:  req.ExpiresOn,
		State:      req.State,
	})
	if err != nil {
		writeError(w, r, h.logger, "add stock", err)
		return
	}
	h.writeCreated(w, r, c)
}

type scanEntryRequest struct {
	Barcode    string     `json:"barcode"`
	Name       string     `json:"name"`
	Brand      string     `json:"brand"`
	ImageURL   string     `json:"image_url"`
	LocationID int64      `json:"location_id"`
	Quantity   int        `json:"quantity"`
	ExpiresOn  model.Date `json:"expires_on"`
}

// Scan handles POST /api/stock/scan
func (h *StockHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Barcode == "" {
		writeMessage(w, http.StatusBadRequest, "barcode is required")
		return
	}

	c, err := h.ledger.AddScanned(r.Context(), auth.HouseholdID(r.Context()), ledger.ScanEntry{
		Barcode:    req.Barcode,
		Name:       strings.TrimSpace(req.Name),
		Brand:      strings.TrimSpace(req.Brand),
		ImageURL:   req.ImageURL,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		ExpiresOn:  req.ExpiresOn,
	})
	if err != nil {
		writeError(w, r, h.logger, "scan stock", err)
		return
	}
	h.writeCreated(w, r, c)
}

type updateStockRequest struct {
	ProductName *string     `json:"product_name"`
	Brand       *string     `json:"brand"`
	ExpiresOn   *model.Date `json:"expires_on"`
	Quantity    *int        `json:"quantity"`
	LocationID  *int64      `json:"location_id"`
}

// Update handles PATCH /api/stock/{id}. Setting the quantity to zero deletes
// the line and answers 204.
func (h *StockHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductName != nil {
		name := strings.TrimSpace(*req.ProductName)
		if name == "" {
			writeMessage(w, http.StatusBadRequest, "product_name cannot be empty")
			return
		}
		req.ProductName = &name
	}

	v, err := h.ledger.UpdateDetails(r.Context(), auth.HouseholdID(r.Context()), id, ledger.Details{
		ProductName: req.ProductName,
		Brand:       req.Brand,
		ExpiresOn:   req.ExpiresOn,
		Quantity:    req.Quantity,
		LocationID:  req.LocationID,
	})
	if err != nil {
		writeError(w, r, h.logger, "update stock", err)
		return
	}
	if v == nil {
		h.broadcast(r, websocket.EntityStock, websocket.ActionDeleted, id)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if v.ID != id {
		h.broadcast(r, websocket.EntityStock, websocket.ActionDeleted, id)
	}
	h.broadcast(r, websocket.EntityStock, websocket.ActionUpdated, v.ID)
	writeJSON(w, http.StatusOK, newStockResponse(v, h.ledger.Today()))
}

// Delete handles DELETE /api/stock/{id}
func (h *StockHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.ledger.Delete(r.Context(), auth.HouseholdID(r.Context()), id); err != nil {
		writeError(w, r, h.logger, "delete stock", err)
		return
	}
	h.broadcast(r, websocket.EntityStock, websocket.ActionDeleted, id)
	w.WriteHeader(http.StatusNoContent)
}

// writeRemaining answers with what is left of a line after units were taken
// from it: the line itself, or 204 when it is gone.
func (h *StockHandler) writeRemaining(w http.ResponseWriter, r *http.Request, id int64, v *model.StockView) {
	if v == nil {
		h.broadcast(r, websocket.EntityStock, websocket.ActionDeleted, id)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.broadcast(r, websocket.EntityStock, websocket.ActionUpdated, id)
	writeJSON(w, http.StatusOK, newStockResponse(v, h.ledger.Today()))
}

// Consume handles POST /api/stock/{id}/consume
func (h *StockHandler) Consume(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	v, err := h.ledger.Consume(r.Context(), auth.HouseholdID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, "consume stock", err)
		return
	}
	h.writeRemaining(w, r, id, v)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// Remove handles POST /api/stock/{id}/remove
func (h *StockHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req quantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := h.ledger.RemoveQuantity(r.Context(), auth.HouseholdID(r.Context()), id, req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, "remove stock", err)
		return
	}
	h.writeRemaining(w, r, id, v)
}

// writeResult broadcasts the lines a transition touched and returns its
// summary.
func (h *StockHandler) writeResult(w http.ResponseWriter, r *http.Request, sourceID int64, res *ledger.Result) {
	switch {
	case res.NewID == sourceID:
	case res.OriginalID == nil:
		h.broadcast(r, websocket.EntityStock, websocket.ActionDeleted, sourceID)
	default:
		h.broadcast(r, websocket.EntityStock, websocket.ActionUpdated, sourceID)
	}
	action := websocket.ActionCreated
	if res.Merged || res.NewID == sourceID {
		action = websocket.ActionUpdated
	}
	h.broadcast(r, websocket.EntityStock, action, res.NewID)
	writeJSON(w, http.StatusOK, res)
}

type openRequest struct {
	Quantity         int    `json:"quantity"`
	TargetLocationID *int64 `json:"target_location_id"`
	KeepExpiration   *bool  `json:"keep_expiration"`
	ShelfLifeDays    int    `json:"shelf_life_days"`
}

// Open handles POST /api/stock/{id}/open
func (h *StockHandler) Open(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req openRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	keep := true
	if req.KeepExpiration != nil {
		keep = *req.KeepExpiration
	}
	res, err := h.ledger.Open(r.Context(), auth.HouseholdID(r.Context()), id, ledger.OpenRequest{
		Quantity:         req.Quantity,
		TargetLocationID: req.TargetLocationID,
		KeepExpiration:   keep,
		ShelfLifeDays:    req.ShelfLifeDays,
	})
	if err != nil {
		writeError(w, r, h.logger, "open stock", err)
		return
	}
	h.writeResult(w, r, id, res)
}

type freezeRequest struct {
	Quantity          int   `json:"quantity"`
	FreezerLocationID int64 `json:"freezer_location_id"`
}

// Freeze handles POST /api/stock/{id}/freeze
func (h *StockHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req freezeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.ledger.Freeze(r.Context(), auth.HouseholdID(r.Context()), id, ledger.FreezeRequest{
		Quantity:          req.Quantity,
		FreezerLocationID: req.FreezerLocationID,
	})
	if err != nil {
		writeError(w, r, h.logger, "freeze stock", err)
		return
	}
	h.writeResult(w, r, id, res)
}

type thawRequest struct {
	Quantity         int   `json:"quantity"`
	TargetLocationID int64 `json:"target_location_id"`
	ShelfLifeDays    int   `json:"shelf_life_days"`
}

// Thaw handles POST /api/stock/{id}/thaw
func (h *StockHandler) Thaw(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req thawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.ledger.Thaw(r.Context(), auth.HouseholdID(r.Context()), id, ledger.ThawRequest{
		Quantity:         req.Quantity,
		TargetLocationID: req.TargetLocationID,
		ShelfLifeDays:    req.ShelfLifeDays,
	})
	if err != nil {
		writeError(w, r, h.logger, "thaw stock", err)
		return
	}
	h.writeResult(w, r, id, res)
}

type relocateRequest struct {
	Quantity         int   `json:"quantity"`
	TargetLocationID int64 `json:"target_location_id"`
}

// Relocate handles POST /api/stock/{id}/relocate
func (h *StockHandler) Relocate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req relocateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.ledger.Relocate(r.Context(), auth.HouseholdID(r.Context()), id, ledger.RelocateRequest{
		Quantity:         req.Quantity,
		TargetLocationID: req.TargetLocationID,
	})
	if err != nil {
		writeError(w, r, h.logger, "relocate stock", err)
		return
	}
	h.writeResult(w, r, id, res)
}
