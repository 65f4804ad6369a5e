package handler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/model"
)

// DigestRunner sends the due expiration digests.
type DigestRunner interface {
	Run(ctx context.Context) (int, error)
}

// BackupRunner takes a snapshot and prunes old ones.
type BackupRunner interface {
	Run(ctx context.Context) (*model.Backup, error)
	Cleanup(ctx context.Context) (int, error)
}

// CronHandler exposes the background jobs to an external scheduler.
type CronHandler struct {
	digests DigestRunner
	backups BackupRunner
	logger  *slog.Logger
}

func NewCronHandler(digests DigestRunner, backups BackupRunner, logger *slog.Logger) *CronHandler {
	return &CronHandler{digests: digests, backups: backups, logger: logger}
}

// Notifications handles POST /api/cron/notifications
func (h *CronHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	if h.digests == nil {
		writeMessage(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	sent, err := h.digests.Run(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "run notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// Backup handles POST /api/cron/backup
func (h *CronHandler) Backup(w http.ResponseWriter, r *http.Request) {
	rec, err := h.backups.Run(r.Context())
	if errors.Is(err, backup.ErrDisabled) {
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, r, h.logger, "run backup", err)
		return
	}
	removed, err := h.backups.Cleanup(r.Context())
	if err != nil {
		h.logger.Warn("backup cleanup failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup": rec, "removed": removed})
}

// Health handles GET /health. It answers 503 when the database is
// unreachable.
func Health(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
