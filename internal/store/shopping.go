package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
)

type ShoppingStore struct {
	db database.DBTX
}

func NewShoppingStore(db database.DBTX) *ShoppingStore {
	return &ShoppingStore{db: db}
}

const shoppingCols = `id, household_id, name, quantity, completed, created_at`

func scanShoppingItem(sc scanner) (*model.ShoppingItem, error) {
	var item model.ShoppingItem
	var completed int
	if err := sc.Scan(&item.ID, &item.HouseholdID, &item.Name, &item.Quantity, &completed, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.Completed = completed == 1
	return &item, nil
}

func (s *ShoppingStore) Get(ctx context.Context, householdID, id int64) (*model.ShoppingItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shoppingCols+` FROM shopping_items WHERE id = ? AND household_id = ?`, id, householdID)
	item, err := scanShoppingItem(row)
	if err != nil {
		return nil, translate(fmt.Sprintf("get shopping item %d", id), err)
	}
	return item, nil
}

// List returns pending items first, newest first within each group.
func (s *ShoppingStore) List(ctx context.Context, householdID int64) ([]model.ShoppingItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shoppingCols+` FROM shopping_items
		 WHERE household_id = ?
		 ORDER BY completed ASC, created_at DESC, id DESC`, householdID)
	if err != nil {
		return nil, fmt.Errorf("list shopping items: %w", err)
	}
	defer rows.Close()

	var items []model.ShoppingItem
	for rows.Next() {
		item, err := scanShoppingItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shopping item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Add puts an item on the list. A pending item with the same name absorbs
// the quantity instead. The second return value reports a merge.
func (s *ShoppingStore) Add(ctx context.Context, householdID int64, name string, quantity int) (*model.ShoppingItem, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("item name is required: %w", model.ErrValidation)
	}
	if quantity <= 0 {
		quantity = 1
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+shoppingCols+` FROM shopping_items
		 WHERE household_id = ? AND completed = 0 AND name_key = ?
		 ORDER BY id ASC LIMIT 1`, householdID, FoldKey(name))
	existing, err := scanShoppingItem(row)
	err = translate("find shopping item", err)
	switch {
	case err == nil:
		if _, err := s.db.ExecContext(ctx,
			`UPDATE shopping_items SET quantity = quantity + ? WHERE id = ?`, quantity, existing.ID,
		); err != nil {
			return nil, false, translate("merge shopping item", err)
		}
		item, err := s.Get(ctx, householdID, existing.ID)
		return item, true, err
	case !errors.Is(err, model.ErrNotFound):
		return nil, false, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO shopping_items (household_id, name, name_key, quantity) VALUES (?, ?, ?, ?)`,
		householdID, name, FoldKey(name), quantity,
	)
	if err != nil {
		return nil, false, translate("create shopping item", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	item, err := s.Get(ctx, householdID, id)
	return item, false, err
}

// ShoppingUpdate holds optional item changes.
type ShoppingUpdate struct {
	Name      *string
	Quantity  *int
	Completed *bool
}

func (s *ShoppingStore) Update(ctx context.Context, householdID, id int64, u ShoppingUpdate) (*model.ShoppingItem, error) {
	item, err := s.Get(ctx, householdID, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, fmt.Errorf("item name is required: %w", model.ErrValidation)
		}
		item.Name = name
	}
	if u.Quantity != nil {
		if *u.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be positive: %w", model.ErrValidation)
		}
		item.Quantity = *u.Quantity
	}
	if u.Completed != nil {
		item.Completed = *u.Completed
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE shopping_items SET name = ?, name_key = ?, quantity = ?, completed = ? WHERE id = ? AND household_id = ?`,
		item.Name, FoldKey(item.Name), item.Quantity, boolToInt(item.Completed), id, householdID,
	); err != nil {
		return nil, translate(fmt.Sprintf("update shopping item %d", id), err)
	}
	return s.Get(ctx, householdID, id)
}

func (s *ShoppingStore) Delete(ctx context.Context, householdID, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM shopping_items WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return translate(fmt.Sprintf("delete shopping item %d", id), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("delete shopping item %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// ClearCompleted deletes every completed item and returns how many went.
func (s *ShoppingStore) ClearCompleted(ctx context.Context, householdID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM shopping_items WHERE household_id = ? AND completed = 1`, householdID)
	if err != nil {
		return 0, fmt.Errorf("clear completed shopping items: %w", err)
	}
	return result.RowsAffected()
}
