package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/larder/internal/model"
)

func TestHouseholdCreate(t *testing.T) {
	db := setupTestDB(t)
	hs := NewHouseholdStore(db)

	h, err := hs.Create(context.Background(), "Casa", "u1", "ABCD1234", "")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if h.Name != "Casa" {
		t.Errorf("name = %q, want %q", h.Name, "Casa")
	}
	if h.Icon != model.DefaultHouseholdIcon {
		t.Errorf("icon = %q, want %q", h.Icon, model.DefaultHouseholdIcon)
	}
	if h.ID == 0 {
		t.Error("expected non-zero ID")
	}
}

func TestHouseholdDuplicateInviteCode(t *testing.T) {
	db := setupTestDB(t)
	hs := NewHouseholdStore(db)
	ctx := context.Background()

	if _, err := hs.Create(ctx, "A", "u1", "SAMECODE", ""); err != nil {
		t.Fatalf("create first: %v", err)
	}
	_, err := hs.Create(ctx, "B", "u2", "SAMECODE", "")
	if !errors.Is(err, model.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestHouseholdGetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	hs := NewHouseholdStore(db)

	_, err := hs.GetByID(context.Background(), 999)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestHouseholdMembers(t *testing.T) {
	db := setupTestDB(t)
	hs := NewHouseholdStore(db)
	ctx := context.Background()
	h := seedHousehold(t, db, "MEMBERS1")

	if _, err := hs.AddMember(ctx, h.ID, "u2", model.RoleGuest); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := hs.AddMember(ctx, h.ID, "u2", model.RoleMember); !errors.Is(err, model.ErrDuplicate) {
		t.Errorf("second add err = %v, want ErrDuplicate", err)
	}

	total, admins, err := hs.CountMembers(ctx, h.ID)
	if err != nil {
		t.Fatalf("count members: %v", err)
	}
	if total != 2 || admins != 1 {
		t.Errorf("total, admins = %d, %d; want 2, 1", total, admins)
	}

	m, err := hs.UpdateMemberRole(ctx, h.ID, "u2", model.RoleAdmin)
	if err != nil {
		t.Fatalf("update role: %v", err)
	}
	if m.Role != model.RoleAdmin {
		t.Errorf("role = %q, want admin", m.Role)
	}

	nick := "Peque"
	m, err = hs.UpdateNickname(ctx, h.ID, "u2", &nick)
	if err != nil {
		t.Fatalf("update nickname: %v", err)
	}
	if m.Nickname == nil || *m.Nickname != "Peque" {
		t.Errorf("nickname = %v, want Peque", m.Nickname)
	}

	memberships, err := hs.ListForUser(ctx, "u2")
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(memberships) != 1 || memberships[0].MemberCount != 2 {
		t.Errorf("memberships = %+v, want one household with 2 members", memberships)
	}

	if err := hs.RemoveMember(ctx, h.ID, "u2"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if _, err := hs.GetMember(ctx, h.ID, "u2"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("get removed member err = %v, want ErrNotFound", err)
	}
}

func TestHouseholdDeleteCascade(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	h := seedHousehold(t, db, "CASCADE1")

	loc, err := NewLocationStore(db).Create(ctx, h.ID, "Nevera", false)
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	p, err := NewProductStore(db).GetOrCreateByName(ctx, h.ID, "Leche", "")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := NewStockStore(db).Insert(ctx, &model.StockLine{
		HouseholdID: h.ID, ProductID: p.ID, LocationID: loc.ID, Quantity: 1,
		ExpiresOn: model.MustParseDate("2026-01-10"), Lifecycle: model.Sealed{},
	}); err != nil {
		t.Fatalf("insert stock: %v", err)
	}
	if _, _, err := NewShoppingStore(db).Add(ctx, h.ID, "Pan", 1); err != nil {
		t.Fatalf("add shopping item: %v", err)
	}

	if err := NewHouseholdStore(db).DeleteCascade(ctx, h.ID); err != nil {
		t.Fatalf("delete cascade: %v", err)
	}

	for _, table := range []string{"households", "household_members", "locations", "products", "stock_lines", "shopping_items"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after cascade, want 0", table, n)
		}
	}
}
