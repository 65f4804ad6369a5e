// Package directory manages households and who belongs to them.
package directory

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8

	maxNameLength = 100
)

type Service struct {
	db      *sql.DB
	logger  *slog.Logger
	newCode func() (string, error)
}

func New(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger, newCode: generateCode}
}

// generateCode returns a random invitation code such as "K3M9QX2A".
func generateCode() (string, error) {
	b := make([]byte, codeLength)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// uniqueCode draws codes until one is not taken. It only gives up when ctx
// is done.
func (s *Service) uniqueCode(ctx context.Context, hs *store.HouseholdStore) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("draw invite code: %w", err)
		}
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		taken, err := hs.InviteCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
		s.logger.Debug("invite code collision", "code", code)
	}
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("household name is required: %w", model.ErrValidation)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("household name is longer than %d characters: %w", maxNameLength, model.ErrValidation)
	}
	return name, nil
}

// Create makes a new household with the default locations and userID as
// its admin.
func (s *Service) Create(ctx context.Context, userID, name, icon string) (*model.Membership, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}
	var out *model.Membership
	err = database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		hs := store.NewHouseholdStore(tx)
		code, err := s.uniqueCode(ctx, hs)
		if err != nil {
			return err
		}
		h, err := hs.Create(ctx, name, userID, code, icon)
		if err != nil {
			return err
		}
		if _, err := hs.AddMember(ctx, h.ID, userID, model.RoleAdmin); err != nil {
			return err
		}
		if err := store.NewLocationStore(tx).SeedDefaults(ctx, h.ID); err != nil {
			return err
		}
		out = &model.Membership{Household: *h, Role: model.RoleAdmin, MemberCount: 1}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("household created", "household_id", out.ID, "user_id", userID)
	return out, nil
}

// Join adds userID to the household holding code, as a member. Codes are
// matched case-insensitively.
func (s *Service) Join(ctx context.Context, userID, code string) (*model.Membership, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("invite code is required: %w", model.ErrValidation)
	}
	var out *model.Membership
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		hs := store.NewHouseholdStore(tx)
		h, err := hs.GetByInviteCode(ctx, code)
		if err != nil {
			return err
		}
		_, err = hs.GetMember(ctx, h.ID, userID)
		switch {
		case err == nil:
			return fmt.Errorf("user already belongs to household %d: %w", h.ID, model.ErrDuplicate)
		case !errors.Is(err, model.ErrNotFound):
			return err
		}
		if _, err := hs.AddMember(ctx, h.ID, userID, model.RoleMember); err != nil {
			return err
		}
		total, _, err := hs.CountMembers(ctx, h.ID)
		if err != nil {
			return err
		}
		out = &model.Membership{Household: *h, Role: model.RoleMember, MemberCount: total}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("household joined", "household_id", out.ID, "user_id", userID)
	return out, nil
}

// Leave removes userID from the household. The last member leaving deletes
// the household; the last admin cannot leave while others remain.
func (s *Service) Leave(ctx context.Context, userID string, householdID int64) error {
	return database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		hs := store.NewHouseholdStore(tx)
		m, err := hs.GetMember(ctx, householdID, userID)
		if err != nil {
			return err
		}
		total, admins, err := hs.CountMembers(ctx, householdID)
		if err != nil {
			return err
		}
		if total == 1 {
			return hs.DeleteCascade(ctx, householdID)
		}
		if m.Role == model.RoleAdmin && admins == 1 {
			return fmt.Errorf("last admin must promote someone before leaving: %w", model.ErrInvalidState)
		}
		return hs.RemoveMember(ctx, householdID, userID)
	})
}

// Kick removes targetID from the household on behalf of actorID.
func (s *Service) Kick(ctx context.Context, actorID string, householdID int64, targetID string) error {
	if actorID == targetID {
		return fmt.Errorf("use leave to remove yourself: %w", model.ErrValidation)
	}
	return database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		hs := store.NewHouseholdStore(tx)
		m, err := hs.GetMember(ctx, householdID, targetID)
		if err != nil {
			return err
		}
		if m.Role == model.RoleAdmin {
			if err := requireOtherAdmin(ctx, hs, householdID); err != nil {
				return err
			}
		}
		return hs.RemoveMember(ctx, householdID, targetID)
	})
}

// ChangeRole sets targetID's role. Demoting the only admin fails.
func (s *Service) ChangeRole(ctx context.Context, householdID int64, targetID string, role model.Role) (*model.HouseholdMember, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", role, model.ErrValidation)
	}
	var out *model.HouseholdMember
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		hs := store.NewHouseholdStore(tx)
		m, err := hs.GetMember(ctx, householdID, targetID)
		if err != nil {
			return err
		}
		if m.Role == model.RoleAdmin && role != model.RoleAdmin {
			if err := requireOtherAdmin(ctx, hs, householdID); err != nil {
				return err
			}
		}
		out, err = hs.UpdateMemberRole(ctx, householdID, targetID, role)
		return err
	})
	return out, err
}

func requireOtherAdmin(ctx context.Context, hs *store.HouseholdStore, householdID int64) error {
	_, admins, err := hs.CountMembers(ctx, householdID)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return fmt.Errorf("household %d needs at least one admin: %w", householdID, model.ErrInvalidState)
	}
	return nil
}

// SetNickname sets or, with nil or blank, clears the member's nickname.
func (s *Service) SetNickname(ctx context.Context, householdID int64, userID string, nickname *string) (*model.HouseholdMember, error) {
	if nickname != nil {
		n := strings.TrimSpace(*nickname)
		if len(n) > maxNameLength {
			return nil, fmt.Errorf("nickname is longer than %d characters: %w", maxNameLength, model.ErrValidation)
		}
		nickname = &n
		if n == "" {
			nickname = nil
		}
	}
	return store.NewHouseholdStore(s.db).UpdateNickname(ctx, householdID, userID, nickname)
}

// RegenerateCode replaces the invitation code; the old one stops working.
func (s *Service) RegenerateCode(ctx context.Context, householdID int64) (string, error) {
	var code string
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		hs := store.NewHouseholdStore(tx)
		if _, err := hs.GetByID(ctx, householdID); err != nil {
			return err
		}
		var err error
		if code, err = s.uniqueCode(ctx, hs); err != nil {
			return err
		}
		return hs.SetInviteCode(ctx, householdID, code)
	})
	return code, err
}

// Update changes the household's name and icon. Nil fields are kept.
func (s *Service) Update(ctx context.Context, householdID int64, name, icon *string) (*model.Household, error) {
	var out *model.Household
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		hs := store.NewHouseholdStore(tx)
		h, err := hs.GetByID(ctx, householdID)
		if err != nil {
			return err
		}
		if name != nil {
			if h.Name, err = validName(*name); err != nil {
				return err
			}
		}
		if icon != nil && strings.TrimSpace(*icon) != "" {
			h.Icon = strings.TrimSpace(*icon)
		}
		out, err = hs.Update(ctx, householdID, h.Name, h.Icon)
		return err
	})
	return out, err
}

// Delete removes the household and all of its data.
func (s *Service) Delete(ctx context.Context, householdID int64) error {
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		return store.NewHouseholdStore(tx).DeleteCascade(ctx, householdID)
	})
	if err == nil {
		s.logger.Info("household deleted", "household_id", householdID)
	}
	return err
}

func (s *Service) Get(ctx context.Context, householdID int64) (*model.Household, error) {
	return store.NewHouseholdStore(s.db).GetByID(ctx, householdID)
}

// ListForUser returns the user's households, oldest membership first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]model.Membership, error) {
	return store.NewHouseholdStore(s.db).ListForUser(ctx, userID)
}

func (s *Service) Members(ctx context.Context, householdID int64) ([]model.HouseholdMember, error) {
	return store.NewHouseholdStore(s.db).ListMembers(ctx, householdID)
}

// Resolve picks the household a request acts on and the user's role in it.
// A zero householdID selects the user's first household. A user who is not a
// member gets ErrForbidden.
func (s *Service) Resolve(ctx context.Context, userID string, householdID int64) (int64, model.Role, error) {
	hs := store.NewHouseholdStore(s.db)
	if householdID == 0 {
		ms, err := hs.ListForUser(ctx, userID)
		if err != nil {
			return 0, "", err
		}
		if len(ms) == 0 {
			return 0, "", fmt.Errorf("user has no household: %w", model.ErrForbidden)
		}
		return ms[0].ID, ms[0].Role, nil
	}
	m, err := hs.GetMember(ctx, householdID, userID)
	if errors.Is(err, model.ErrNotFound) {
		return 0, "", fmt.Errorf("not a member of household %d: %w", householdID, model.ErrForbidden)
	}
	if err != nil {
		return 0, "", err
	}
	return householdID, m.Role, nil
}
