// Package handler serves the JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/websocket"
)

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads the request body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientQuantity),
		errors.Is(err, model.ErrDuplicate),
		errors.Is(err, model.ErrInUse),
		errors.Is(err, model.ErrIntegrity):
		return http.StatusConflict
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeError answers with the status for err. Domain errors carry their
// message to the client; anything else is logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), op, "error", err, "household_id", auth.HouseholdID(r.Context()))
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}

// broadcaster announces changes to the household's websocket clients.
type broadcaster struct {
	hub *websocket.Hub
}

func (b broadcaster) broadcast(r *http.Request, entity, action string, id int64) {
	if b.hub != nil {
		b.hub.Broadcast(auth.HouseholdID(r.Context()), websocket.NewMessage(entity, action, id, nil))
	}
}
