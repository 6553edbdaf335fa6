package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DisplayDateFormat is the day/month/year layout used at the API boundary.
const DisplayDateFormat = "02/01/2006"

// ISODateFormat is accepted on input and used for storage and CSV.
const ISODateFormat = "2006-01-02"

var (
	dmyPattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	isoPattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
)

// ParseDate reads a boundary date. It accepts DD/MM/YYYY (one or two digit day
// and month) and YYYY-MM-DD. Other shapes, and dates that do not exist on the
// calendar such as 31/02/2024, are rejected rather than normalized.
func ParseDate(s string) (time.Time, error) {
	var y, m, d int
	if g := dmyPattern.FindStringSubmatch(s); g != nil {
		d, _ = strconv.Atoi(g[1])
		m, _ = strconv.Atoi(g[2])
		y, _ = strconv.Atoi(g[3])
	} else if g := isoPattern.FindStringSubmatch(s); g != nil {
		y, _ = strconv.Atoi(g[1])
		m, _ = strconv.Atoi(g[2])
		d, _ = strconv.Atoi(g[3])
	} else {
		return time.Time{}, fmt.Errorf("date %q is not in DD/MM/YYYY format", s)
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, fmt.Errorf("date %q does not exist", s)
	}
	return t, nil
}

// FormatDate renders t in the boundary convention.
func FormatDate(t time.Time) string {
	return t.Format(DisplayDateFormat)
}

// DateRange is an inclusive [Start, End] span of calendar days. A zero bound
// is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses both bounds; empty strings leave the bound open.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if start != "" {
		if r.Start, err = ParseDate(start); err != nil {
			return DateRange{}, fmt.Errorf("start date: %w", err)
		}
	}
	if end != "" {
		if r.End, err = ParseDate(end); err != nil {
			return DateRange{}, fmt.Errorf("end date: %w", err)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("end date %s is before start date %s", FormatDate(r.End), FormatDate(r.Start))
	}
	return r, nil
}

// Contains reports whether t falls inside the range (inclusive).
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// IsZero reports whether both bounds are open.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}
