package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/larder/internal/alerts"
	"github.com/dukerupert/larder/internal/auth"
)

type AlertHandler struct {
	projector *alerts.Projector
	logger    *slog.Logger
}

func NewAlertHandler(p *alerts.Projector, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{projector: p, logger: logger}
}

// List handles GET /api/alerts?days=
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	days := alerts.DefaultHorizonDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "days must be a number")
			return
		}
		days = n
	}

	list, err := h.projector.Get(r.Context(), auth.HouseholdID(r.Context()), days)
	if err != nil {
		writeError(w, r, h.logger, "get alerts", err)
		return
	}
	today := h.projector.Today()
	out := make([]stockResponse, 0, len(list))
	for i := range list {
		out = append(out, newStockResponse(&list[i].StockView, today))
	}
	writeJSON(w, http.StatusOK, out)
}
