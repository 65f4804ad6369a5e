package websocket

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/auth"

	ws "github.com/coder/websocket"
)

// Handler upgrades the request and subscribes the connection to the
// household resolved by the auth middleware.
func Handler(hub *Hub, allowedOrigins []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok || ac.HouseholdID == 0 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns:     allowedOrigins,
			InsecureSkipVerify: len(allowedOrigins) == 0,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		logger.Debug("websocket connected", "household_id", ac.HouseholdID, "user_id", ac.UserID)
		NewClient(hub, conn, ac.HouseholdID, ac.UserID).Run(r.Context())
	}
}
