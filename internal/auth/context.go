// Package auth carries the verified caller through a request.
package auth

import (
	"context"

	"github.com/dukerupert/larder/internal/model"
)

type contextKey struct{}

// AuthContext is who is calling and, once resolved, which household they act
// on and with what role.
type AuthContext struct {
	UserID      string
	HouseholdID int64
	Role        model.Role
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func HouseholdID(ctx context.Context) int64 {
	ac, _ := FromContext(ctx)
	return ac.HouseholdID
}

func UserID(ctx context.Context) string {
	ac, _ := FromContext(ctx)
	return ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, _ := FromContext(ctx)
	return ac.Role == model.RoleAdmin
}

// CanWrite reports whether the caller may change household data.
func CanWrite(ctx context.Context) bool {
	ac, _ := FromContext(ctx)
	return ac.Role.CanWrite()
}
