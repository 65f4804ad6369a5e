package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/model"
)

// fakeResolver knows one household, 7, where ana is admin and gus a guest.
type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, userID string, householdID int64) (int64, model.Role, error) {
	roles := map[string]model.Role{"ana": model.RoleAdmin, "gus": model.RoleGuest}
	role, ok := roles[userID]
	if !ok || (householdID != 0 && householdID != 7) {
		return 0, "", fmt.Errorf("resolve: %w", model.ErrForbidden)
	}
	return 7, role, nil
}

var testVerifier = auth.MustVerifier("test-secret", "", "")

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := testVerifier.Issue(userID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func echoAuth(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	fmt.Fprintf(w, "%s/%d/%s", ac.UserID, ac.HouseholdID, ac.Role)
}

func TestRequireUser(t *testing.T) {
	handler := RequireUser(testVerifier)(http.HandlerFunc(echoAuth))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid", bearer(t, "ana"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireUserAcceptsQueryTokenOnUpgrade(t *testing.T) {
	handler := RequireUser(testVerifier)(http.HandlerFunc(echoAuth))
	token, _ := testVerifier.Issue("ana", time.Hour)

	req := httptest.NewRequest("GET", "/ws?access_token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("upgrade status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/stock?access_token="+token, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("plain request status = %d, want 401", rec.Code)
	}
}

func TestRequireHousehold(t *testing.T) {
	handler := RequireUser(testVerifier)(RequireHousehold(fakeResolver{})(http.HandlerFunc(echoAuth)))

	tests := []struct {
		name      string
		user      string
		household string
		want      int
		body      string
	}{
		{"default household", "ana", "", http.StatusOK, "ana/7/admin"},
		{"explicit household", "gus", "7", http.StatusOK, "gus/7/guest"},
		{"not a member", "ana", "8", http.StatusForbidden, ""},
		{"stranger", "zoe", "", http.StatusForbidden, ""},
		{"bad id", "ana", "abc", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Authorization", bearer(t, tt.user))
			if tt.household != "" {
				req.Header.Set(HouseholdHeader, tt.household)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestRoleGuards(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name  string
		guard func(http.Handler) http.Handler
		role  model.Role
		want  int
	}{
		{"writer admin", RequireWriter, model.RoleAdmin, http.StatusNoContent},
		{"writer member", RequireWriter, model.RoleMember, http.StatusNoContent},
		{"writer guest", RequireWriter, model.RoleGuest, http.StatusForbidden},
		{"admin admin", RequireAdmin, model.RoleAdmin, http.StatusNoContent},
		{"admin member", RequireAdmin, model.RoleMember, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", nil)
			req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: "u", HouseholdID: 1, Role: tt.role}))
			rec := httptest.NewRecorder()
			tt.guard(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireCronSecret(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"disabled", "", "Bearer anything", http.StatusNotFound},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"wrong", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"right", "s3cret", "Bearer s3cret", http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/internal/jobs/notify", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireCronSecret(tt.secret)(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
