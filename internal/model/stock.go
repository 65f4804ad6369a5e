package model

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a stock line.
type State string

const (
	StateSealed State = "sealed"
	StateOpen   State = "open"
	StateFrozen State = "frozen"
	StateThawed State = "thawed"
)

func (s State) Valid() bool {
	switch s {
	case StateSealed, StateOpen, StateFrozen, StateThawed:
		return true
	}
	return false
}

// Lifecycle holds the state of a stock line together with the dates that
// belong to that state. Only the variants below implement it.
type Lifecycle interface {
	State() State
	isLifecycle()
}

// Sealed is unopened stock as it was bought.
type Sealed struct{}

// Opened stock is governed by its shelf life after opening rather than the
// printed expiration.
type Opened struct {
	On            Date
	ShelfLifeDays int
}

// Frozen stock is excluded from alerts. Opened is set when an already open
// batch was frozen.
type Frozen struct {
	On     Date
	Opened *Opened
}

// Thawed stock counts as opened on the day it thawed.
type Thawed struct {
	On            Date
	FrozenOn      Date
	ShelfLifeDays int
}

func (Sealed) State() State { return StateSealed }
func (Opened) State() State { return StateOpen }
func (Frozen) State() State { return StateFrozen }
func (Thawed) State() State { return StateThawed }

func (Sealed) isLifecycle() {}
func (Opened) isLifecycle() {}
func (Frozen) isLifecycle() {}
func (Thawed) isLifecycle() {}

// LifecycleColumns is the flat, nullable form of a Lifecycle as stored in
// stock_lines and returned over JSON.
type LifecycleColumns struct {
	State         State `json:"state"`
	OpenedOn      *Date `json:"opened_on"`
	FrozenOn      *Date `json:"frozen_on"`
	ThawedOn      *Date `json:"thawed_on"`
	ShelfLifeDays *int  `json:"shelf_life_days"`
}

// EncodeLifecycle flattens l into columns.
func EncodeLifecycle(l Lifecycle) LifecycleColumns {
	switch v := l.(type) {
	case Opened:
		return LifecycleColumns{State: StateOpen, OpenedOn: &v.On, ShelfLifeDays: &v.ShelfLifeDays}
	case Frozen:
		c := LifecycleColumns{State: StateFrozen, FrozenOn: &v.On}
		if v.Opened != nil {
			c.OpenedOn = &v.Opened.On
			c.ShelfLifeDays = &v.Opened.ShelfLifeDays
		}
		return c
	case Thawed:
		return LifecycleColumns{
			State:         StateThawed,
			OpenedOn:      &v.On,
			FrozenOn:      &v.FrozenOn,
			ThawedOn:      &v.On,
			ShelfLifeDays: &v.ShelfLifeDays,
		}
	default:
		return LifecycleColumns{State: StateSealed}
	}
}

// DecodeLifecycle rebuilds a Lifecycle from columns, failing when a field the
// state requires is missing.
func DecodeLifecycle(c LifecycleColumns) (Lifecycle, error) {
	switch c.State {
	case StateSealed:
		return Sealed{}, nil
	case StateOpen:
		if c.OpenedOn == nil {
			return nil, fmt.Errorf("open lifecycle without opened_on: %w", ErrIntegrity)
		}
		return Opened{On: *c.OpenedOn, ShelfLifeDays: intOr(c.ShelfLifeDays, 0)}, nil
	case StateFrozen:
		if c.FrozenOn == nil {
			return nil, fmt.Errorf("frozen lifecycle without frozen_on: %w", ErrIntegrity)
		}
		f := Frozen{On: *c.FrozenOn}
		if c.OpenedOn != nil {
			f.Opened = &Opened{On: *c.OpenedOn, ShelfLifeDays: intOr(c.ShelfLifeDays, 0)}
		}
		return f, nil
	case StateThawed:
		if c.ThawedOn == nil || c.FrozenOn == nil {
			return nil, fmt.Errorf("thawed lifecycle without thawed_on or frozen_on: %w", ErrIntegrity)
		}
		return Thawed{On: *c.ThawedOn, FrozenOn: *c.FrozenOn, ShelfLifeDays: intOr(c.ShelfLifeDays, 0)}, nil
	}
	return nil, fmt.Errorf("unknown state %q: %w", c.State, ErrIntegrity)
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// StockLine is a batch of fungible units sharing product, location,
// expiration and lifecycle state.
type StockLine struct {
	ID          int64
	HouseholdID int64
	ProductID   int64
	LocationID  int64
	Quantity    int
	ExpiresOn   Date
	Lifecycle   Lifecycle
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (l *StockLine) State() State {
	if l.Lifecycle == nil {
		return StateSealed
	}
	return l.Lifecycle.State()
}

// GroupingKey identifies the line that new stock with the same attributes
// must merge into.
type GroupingKey struct {
	HouseholdID int64
	ProductID   int64
	LocationID  int64
	ExpiresOn   Date
	State       State
}

func (l *StockLine) Key() GroupingKey {
	return GroupingKey{
		HouseholdID: l.HouseholdID,
		ProductID:   l.ProductID,
		LocationID:  l.LocationID,
		ExpiresOn:   l.ExpiresOn,
		State:       l.State(),
	}
}

// StockView is a stock line joined with its product and location, as listed
// and returned to clients.
type StockView struct {
	StockLine
	ProductName  string
	Brand        string
	Barcode      *string
	ImageURL     string
	LocationName string
	IsFreezer    bool
}

// DaysLeft is the number of days from today until expiration; negative once
// expired.
func (v *StockView) DaysLeft(today Date) int {
	return v.ExpiresOn.DaysSince(today)
}
