package handler

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
	"github.com/dukerupert/larder/internal/websocket"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	maxSuggestProducts = 200
)

type ProductHandler struct {
	broadcaster
	products *store.ProductStore
	logger   *slog.Logger
}

func NewProductHandler(db *sql.DB, hub *websocket.Hub, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{broadcaster: broadcaster{hub}, products: store.NewProductStore(db), logger: logger}
}

// Search handles GET /api/products?q=&limit=
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSearchLimit {
			writeMessage(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	products, err := h.products.Search(r.Context(), auth.HouseholdID(r.Context()), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, r, h.logger, "search products", err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// GetByBarcode handles GET /api/products/barcode/{barcode}
func (h *ProductHandler) GetByBarcode(w http.ResponseWriter, r *http.Request) {
	barcode := strings.TrimSpace(r.PathValue("barcode"))
	p, err := h.products.GetByBarcode(r.Context(), auth.HouseholdID(r.Context()), barcode)
	if err != nil {
		writeError(w, r, h.logger, "get product by barcode", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type suggestRequest struct {
	ProductIDs []int64 `json:"product_ids"`
}

// SuggestLocations handles POST /api/products/suggest-locations
func (h *ProductHandler) SuggestLocations(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ProductIDs) > maxSuggestProducts {
		writeMessage(w, http.StatusBadRequest, "too many products")
		return
	}

	out, err := h.products.SuggestLocations(r.Context(), auth.HouseholdID(r.Context()), req.ProductIDs)
	if err != nil {
		writeError(w, r, h.logger, "suggest locations", err)
		return
	}
	if out == nil {
		out = []model.LocationSuggestion{}
	}
	writeJSON(w, http.StatusOK, out)
}

type productRequest struct {
	Name          *string `json:"name"`
	Brand         *string `json:"brand"`
	ImageURL      *string `json:"image_url"`
	ShelfLifeDays *int    `json:"shelf_life_days"`
}

// Update handles PATCH /api/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req productRequest
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

	p, err := h.products.Update(r.Context(), auth.HouseholdID(r.Context()), id, store.ProductUpdate{
		Name:          req.Name,
		Brand:         req.Brand,
		ImageURL:      req.ImageURL,
		ShelfLifeDays: req.ShelfLifeDays,
	})
	if err != nil {
		writeError(w, r, h.logger, "update product", err)
		return
	}
	h.broadcast(r, websocket.EntityProduct, websocket.ActionUpdated, p.ID)
	writeJSON(w, http.StatusOK, p)
}
