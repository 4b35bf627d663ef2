// Package billingcycle models the calendar-month billing period used by the batch sweeps.
package billingcycle

import (
	"errors"
	"fmt"
	"time"
)

const layout = "2006-01"

var ErrInvalidPeriod = errors.New("invalid_billing_period")

// Period is one calendar month, written "YYYY-MM".
type Period struct {
	Year  int
	Month time.Month
}

func Parse(raw string) (Period, error) {
	t, err := time.Parse(layout, raw)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// ForTime returns the period containing t in loc, shifted by offsetMonths.
func ForTime(t time.Time, loc *time.Location, offsetMonths int) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, offsetMonths, 0)
	return Period{Year: first.Year(), Month: first.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) IsZero() bool { return p.Year == 0 }

// Bounds returns [start, end) of the period in loc, converted to UTC.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 1, 0).UTC()
}

func (p Period) Next() Period {
	start, _ := p.Bounds(time.UTC)
	n := start.AddDate(0, 1, 0)
	return Period{Year: n.Year(), Month: n.Month()}
}

// LoadLocation falls back to UTC for an empty or unknown zone name.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
