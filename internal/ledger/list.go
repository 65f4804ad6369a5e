package ledger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

// Tag is a status filter over stock lines.
type Tag string

const (
	TagFrozen   Tag = "congelado"
	TagOpen     Tag = "abierto"
	TagUrgent   Tag = "urgente"
	TagExpiring Tag = "por_caducar"
	TagExpired  Tag = "caducado"
)

const (
	urgentDays   = 5
	expiringDays = 10
)

// ParseTag validates a status tag.
func ParseTag(s string) (Tag, error) {
	switch t := Tag(strings.ToLower(strings.TrimSpace(s))); t {
	case TagFrozen, TagOpen, TagUrgent, TagExpiring, TagExpired:
		return t, nil
	}
	return "", fmt.Errorf("unknown status %q: %w", s, model.ErrValidation)
}

// Tags returns every status tag that applies to the line today. Frozen
// lines never carry the date-based tags.
func Tags(v *model.StockView, today model.Date) []Tag {
	state := v.State()
	if state == model.StateFrozen {
		return []Tag{TagFrozen}
	}
	var tags []Tag
	if state == model.StateOpen || state == model.StateThawed {
		tags = append(tags, TagOpen)
	}
	switch days := v.DaysLeft(today); {
	case days < 0:
		tags = append(tags, TagExpired)
	case days <= urgentDays:
		tags = append(tags, TagUrgent)
	case days <= expiringDays:
		tags = append(tags, TagExpiring)
	}
	return tags
}

// Sort fields.
const (
	SortName       = "name"
	SortExpiration = "expiration"
	SortQuantity   = "quantity"
)

// Query narrows and orders a listing. A line matches when it matches the
// search text and carries at least one of Tags (any line if Tags is empty).
type Query struct {
	Search string
	Tags   []Tag
	Sort   string
	Desc   bool
}

// List returns the household's lines filtered and sorted by q. The default
// order is by product name, then expiration.
func (s *Service) List(ctx context.Context, householdID int64, q Query) ([]model.StockView, error) {
	order, err := comparator(q.Sort)
	if err != nil {
		return nil, err
	}

	views, err := store.NewStockStore(s.db).ListViews(ctx, householdID, q.Search)
	if err != nil {
		return nil, err
	}

	today := s.Today()
	if len(q.Tags) > 0 {
		views = slices.DeleteFunc(views, func(v model.StockView) bool {
			for _, t := range Tags(&v, today) {
				if slices.Contains(q.Tags, t) {
					return false
				}
			}
			return true
		})
	}

	slices.SortStableFunc(views, func(a, b model.StockView) int {
		c := order(a, b)
		if q.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return byNameThenExpiration(a, b)
	})
	return views, nil
}

func comparator(field string) (func(a, b model.StockView) int, error) {
	switch field {
	case "", SortName:
		return byNameThenExpiration, nil
	case SortExpiration:
		return func(a, b model.StockView) int {
			return compareDates(a.ExpiresOn, b.ExpiresOn)
		}, nil
	case SortQuantity:
		return func(a, b model.StockView) int {
			return cmp.Compare(a.Quantity, b.Quantity)
		}, nil
	}
	return nil, fmt.Errorf("unknown sort field %q: %w", field, model.ErrValidation)
}

func byNameThenExpiration(a, b model.StockView) int {
	if c := strings.Compare(strings.ToLower(a.ProductName), strings.ToLower(b.ProductName)); c != 0 {
		return c
	}
	if c := compareDates(a.ExpiresOn, b.ExpiresOn); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func compareDates(a, b model.Date) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
