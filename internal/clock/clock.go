// Package clock decides what "today" means for expiration math.
package clock

import (
	"time"

	"github.com/dukerupert/larder/internal/model"
)

// Clock reports the current time and calendar day in a fixed zone.
type Clock struct {
	now func() time.Time
	loc *time.Location
}

// New returns a wall clock whose days roll over in loc. A nil loc means UTC.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{now: time.Now, loc: loc}
}

// Fixed returns a clock frozen at t, in t's location.
func Fixed(t time.Time) Clock {
	return Clock{now: func() time.Time { return t }, loc: t.Location()}
}

func (c Clock) Now() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// Today is the calendar day in the clock's zone.
func (c Clock) Today() model.Date {
	loc := c.loc
	if loc == nil {
		loc = time.UTC
	}
	return model.DateOf(c.Now().In(loc))
}
