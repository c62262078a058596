// Package watering computes when a plant is next due for water and how
// urgent that is.
package watering

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Status string

const (
	StatusNotSet  Status = "NOT_SET"
	StatusOverdue Status = "OVERDUE"
	StatusDueSoon Status = "DUE_SOON"
	StatusOnTrack Status = "ON_TRACK"
)

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityOK       Severity = "ok"
)

// dueSoonDays is the widest daysUntil still reported as DUE_SOON.
const dueSoonDays = 2

// Info classifies a next-watering date for display.
type Info struct {
	Status    Status   `json:"status"`
	Severity  Severity `json:"severity"`
	Label     string   `json:"label"`
	DaysUntil *int     `json:"days_until,omitempty"`
}

// ParseError reports a lastWatered value that could not be read.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse last watered %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Layouts without a zone are read in the device location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
	"Mon Jan 02 2006",
}

// ParseLastWatered reads a stored lastWatered value. An empty string means
// the plant was never watered and yields nil.
func ParseLastWatered(value string, loc *time.Location) (*time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return &t, nil
	}

	var lastErr error
	for _, layout := range localLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return &t, nil
		}
		lastErr = err
	}
	return nil, &ParseError{Value: value, Err: lastErr}
}

// NextWateringDate returns lastWatered plus frequencyDays calendar days in
// loc. ok is false when the plant has never been watered.
func NextWateringDate(lastWatered *time.Time, frequencyDays int, loc *time.Location) (next time.Time, ok bool) {
	if lastWatered == nil {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	return lastWatered.In(loc).AddDate(0, 0, frequencyDays), true
}

// AtHour moves t to hour:00 on the same calendar day in t's location.
func AtHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

// DaysUntil rounds the distance to next up to whole days, so a plant due in
// 23 hours is one day away.
func DaysUntil(next, now time.Time) int {
	return int(math.Ceil(next.Sub(now).Hours() / 24))
}

// StatusInfo classifies a next-watering date relative to now. It is meant
// for display only; the scheduler works on trigger instants.
func StatusInfo(next *time.Time, now time.Time) Info {
	if next == nil {
		return Info{Status: StatusNotSet, Severity: SeverityNone, Label: "Not set"}
	}

	days := DaysUntil(*next, now)
	switch {
	case days <= 0:
		return Info{Status: StatusOverdue, Severity: SeverityCritical, Label: "Overdue", DaysUntil: &days}
	case days <= dueSoonDays:
		return Info{Status: StatusDueSoon, Severity: SeverityWarning, Label: "Due soon", DaysUntil: &days}
	default:
		return Info{Status: StatusOnTrack, Severity: SeverityOK, Label: "On track", DaysUntil: &days}
	}
}

// FormatRelative renders the distance from now to t, e.g. "in 3 hours" or
// "2 days ago".
func FormatRelative(t, now time.Time) string {
	d := t.Sub(now)
	past := d < 0
	if past {
		d = -d
	}

	var n int
	var unit string
	switch {
	case d < time.Hour:
		n, unit = int(d/time.Minute), "minute"
	case d < 24*time.Hour:
		n, unit = int(d/time.Hour), "hour"
	default:
		n, unit = int(d/(24*time.Hour)), "day"
	}
	if n != 1 {
		unit += "s"
	}

	if past {
		return fmt.Sprintf("%d %s ago", n, unit)
	}
	return fmt.Sprintf("in %d %s", n, unit)
}
