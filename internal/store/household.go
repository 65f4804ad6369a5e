package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
)

type HouseholdStore struct {
	db database.DBTX
}

func NewHouseholdStore(db database.DBTX) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(sc scanner) (*model.Household, error) {
	var h model.Household
	err := sc.Scan(&h.ID, &h.Name, &h.CreatorID, &h.InviteCode, &h.Icon, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanHouseholdMember(sc scanner) (*model.HouseholdMember, error) {
	var m model.HouseholdMember
	var nickname sql.NullString
	err := sc.Scan(&m.ID, &m.HouseholdID, &m.UserID, &m.Role, &nickname, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	m.Nickname = nullStringPtr(nickname)
	return &m, nil
}

const householdCols = `id, name, creator_id, invite_code, icon, created_at`
const householdMemberCols = `id, household_id, user_id, role, nickname, joined_at`

func (s *HouseholdStore) Create(ctx context.Context, name, creatorID, inviteCode, icon string) (*model.Household, error) {
	if icon == "" {
		icon = model.DefaultHouseholdIcon
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO households (name, creator_id, invite_code, icon) VALUES (?, ?, ?, ?)`,
		name, creatorID, inviteCode, icon,
	)
	if err != nil {
		return nil, translate("insert household", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HouseholdStore) GetByID(ctx context.Context, id int64) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err != nil {
		return nil, translate("get household", err)
	}
	return h, nil
}

// GetByInviteCode looks up a household by its invitation code. Codes are
// stored upper-case.
func (s *HouseholdStore) GetByInviteCode(ctx context.Context, code string) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE invite_code = ?`, code)
	h, err := scanHousehold(row)
	if err != nil {
		return nil, translate("get household by code", err)
	}
	return h, nil
}

func (s *HouseholdStore) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM households WHERE invite_code = ?`, code).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check invite code: %w", err)
	}
	return n > 0, nil
}

func (s *HouseholdStore) Update(ctx context.Context, id int64, name, icon string) (*model.Household, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE households SET name = ?, icon = ? WHERE id = ?`, name, icon, id)
	if err != nil {
		return nil, translate("update household", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HouseholdStore) SetInviteCode(ctx context.Context, id int64, code string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE households SET invite_code = ? WHERE id = ?`, code, id)
	if err != nil {
		return translate("set invite code", err)
	}
	return nil
}

// DeleteCascade removes a household and everything it owns, children first.
// Run it inside a transaction.
func (s *HouseholdStore) DeleteCascade(ctx context.Context, id int64) error {
	for _, table := range []string{"stock_lines", "shopping_items", "products", "locations", "household_members"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE household_id = ?`, id); err != nil {
			return translate("delete "+table, err)
		}
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id)
	if err != nil {
		return translate("delete household", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("delete household %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *HouseholdStore) AddMember(ctx context.Context, householdID int64, userID string, role model.Role) (*model.HouseholdMember, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id, role) VALUES (?, ?, ?)`,
		householdID, userID, role,
	)
	if err != nil {
		return nil, translate("add member", err)
	}
	return s.GetMember(ctx, householdID, userID)
}

func (s *HouseholdStore) RemoveMember(ctx context.Context, householdID int64, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	if err != nil {
		return translate("remove member", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("remove member: %w", model.ErrNotFound)
	}
	return nil
}

func (s *HouseholdStore) GetMember(ctx context.Context, householdID int64, userID string) (*model.HouseholdMember, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+householdMemberCols+` FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	m, err := scanHouseholdMember(row)
	if err != nil {
		return nil, translate("get member", err)
	}
	return m, nil
}

func (s *HouseholdStore) ListMembers(ctx context.Context, householdID int64) ([]model.HouseholdMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+householdMemberCols+` FROM household_members WHERE household_id = ? ORDER BY joined_at ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.HouseholdMember
	for rows.Next() {
		m, err := scanHouseholdMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// CountMembers returns the number of members and how many of them are admins.
func (s *HouseholdStore) CountMembers(ctx context.Context, householdID int64) (total, admins int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN role = 'admin' THEN 1 ELSE 0 END), 0)
		 FROM household_members WHERE household_id = ?`,
		householdID,
	).Scan(&total, &admins)
	if err != nil {
		return 0, 0, fmt.Errorf("count members: %w", err)
	}
	return total, admins, nil
}

// ListForUser returns the user's households with their role, oldest
// membership first.
func (s *HouseholdStore) ListForUser(ctx context.Context, userID string) ([]model.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.name, h.creator_id, h.invite_code, h.icon, h.created_at, hm.role,
		        (SELECT COUNT(*) FROM household_members c WHERE c.household_id = h.id)
		 FROM households h
		 JOIN household_members hm ON h.id = hm.household_id
		 WHERE hm.user_id = ?
		 ORDER BY hm.joined_at ASC, hm.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list households for user: %w", err)
	}
	defer rows.Close()

	var out []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatorID, &m.InviteCode, &m.Icon, &m.CreatedAt, &m.Role, &m.MemberCount); err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *HouseholdStore) UpdateMemberRole(ctx context.Context, householdID int64, userID string, role model.Role) (*model.HouseholdMember, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE household_members SET role = ? WHERE household_id = ? AND user_id = ?`,
		role, householdID, userID,
	)
	if err != nil {
		return nil, translate("update member role", err)
	}
	return s.GetMember(ctx, householdID, userID)
}

func (s *HouseholdStore) UpdateNickname(ctx context.Context, householdID int64, userID string, nickname *string) (*model.HouseholdMember, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE household_members SET nickname = ? WHERE household_id = ? AND user_id = ?`,
		nickname, householdID, userID,
	)
	if err != nil {
		return nil, translate("update nickname", err)
	}
	return s.GetMember(ctx, householdID, userID)
}
