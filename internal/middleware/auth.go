package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/model"
)

// HouseholdHeader selects the household a request acts on.
const HouseholdHeader = "X-Household-ID"

// HouseholdResolver finds the household a user acts on and their role in it.
type HouseholdResolver interface {
	Resolve(ctx context.Context, userID string, householdID int64) (int64, model.Role, error)
}

// RequireUser verifies the bearer token and stores the caller's id.
func RequireUser(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			userID, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header, or the access_token query
// parameter for websocket upgrades where browsers cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") && token != "" {
		return token, true
	}
	if r.Header.Get("Upgrade") != "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, true
		}
	}
	return "", false
}

// RequireHousehold resolves the household from X-Household-ID (or the
// household_id query parameter) and records the caller's role. Without
// either, the caller's first household is used. Must run after RequireUser.
func RequireHousehold(resolver HouseholdResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok || ac.UserID == "" {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			raw := r.Header.Get(HouseholdHeader)
			if raw == "" {
				raw = r.URL.Query().Get("household_id")
			}
			var requested int64
			if raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					writeError(w, http.StatusBadRequest, "invalid household id")
					return
				}
				requested = id
			}

			hid, role, err := resolver.Resolve(r.Context(), ac.UserID, requested)
			switch {
			case errors.Is(err, model.ErrForbidden):
				writeError(w, http.StatusForbidden, "not a member of this household")
				return
			case err != nil:
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ac.HouseholdID = hid
			ac.Role = role
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireWriter rejects guests.
func RequireWriter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.CanWrite(r.Context()) {
			writeError(w, http.StatusForbidden, "read-only access")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin checks that the caller is an admin of the household.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCronSecret guards internal job triggers with a shared secret sent
// as a bearer token. An empty secret disables the endpoints.
func RequireCronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusNotFound, "not found")
				return
			}
			token, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid cron secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
