package model

import "time"

// Role is a member's permission level within a household.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleGuest:
		return true
	}
	return false
}

// CanWrite reports whether the role may mutate household data. Guests are
// read-only.
func (r Role) CanWrite() bool {
	return r == RoleAdmin || r == RoleMember
}

const DefaultHouseholdIcon = "home"

type Household struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	CreatorID  string    `json:"creator_id"`
	InviteCode string    `json:"invite_code"`
	Icon       string    `json:"icon"`
	CreatedAt  time.Time `json:"created_at"`
}

type HouseholdMember struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	Nickname    *string   `json:"nickname"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Membership is a household as seen by one of its members.
type Membership struct {
	Household
	Role        Role `json:"role"`
	MemberCount int  `json:"member_count"`
}
