package domain

import (
	"fmt"
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

// boundLayouts are tried in order when parsing a date filter.
var boundLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	dateOnlyLayout,
}

// TimeRange bounds operation creation times. A nil bound is open. Both bounds
// are inclusive.
type TimeRange struct {
	Since *time.Time
	Until *time.Time
}

// IsZero reports whether neither bound is set.
func (r TimeRange) IsZero() bool {
	return r.Since == nil && r.Until == nil
}

// Contains reports whether t falls within the range.
func (r TimeRange) Contains(t time.Time) bool {
	if r.Since != nil && t.Before(*r.Since) {
		return false
	}
	if r.Until != nil && t.After(*r.Until) {
		return false
	}
	return true
}

// ParseDateRange parses optional start and end filters.
//
// Empty values and the literal "undefined" mean no bound. Bounds may be full
// RFC 3339 timestamps, local date-times, or calendar dates. A calendar date
// given as the end bound covers that whole day. Values without an offset are
// interpreted in loc.
func ParseDateRange(start, end string, loc *time.Location) (TimeRange, error) {
	if loc == nil {
		loc = time.UTC
	}

	var r TimeRange
	since, err := parseBound(start, loc, false)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: start: %v", ErrInvalidDateRange, err)
	}
	until, err := parseBound(end, loc, true)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: end: %v", ErrInvalidDateRange, err)
	}
	r.Since, r.Until = since, until

	if since != nil && until != nil && since.After(*until) {
		return TimeRange{}, fmt.Errorf("%w: start %s is after end %s",
			ErrInvalidDateRange, since.Format(time.RFC3339), until.Format(time.RFC3339))
	}
	return r, nil
}

// IsOpenBound reports whether a raw filter value means "no bound".
func IsOpenBound(raw string) bool {
	s := strings.TrimSpace(raw)
	return s == "" || s == "undefined"
}

func parseBound(raw string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	if IsOpenBound(raw) {
		return nil, nil
	}
	s := strings.TrimSpace(raw)

	for _, layout := range boundLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		if layout == dateOnlyLayout && endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		t = t.UTC()
		return &t, nil
	}
	return nil, fmt.Errorf("cannot parse %q", s)
}
