package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// resolvePeriod returns the inclusive [start, end] of a report in milliseconds.
// A year covers the whole UTC calendar year. An empty --to leaves the end unbounded (0).
func resolvePeriod(year int, from, to string) (int64, int64, error) {
	if year != 0 {
		if from != "" || to != "" {
			return 0, 0, errors.New("--year cannot be combined with --from/--to")
		}
		if year < 2009 || year > 9999 {
			return 0, 0, fmt.Errorf("invalid year %d", year)
		}
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start.UnixMilli(), start.AddDate(1, 0, 0).UnixMilli() - 1, nil
	}
	if from == "" {
		return 0, 0, errors.New("a period is required: pass --year or --from")
	}

	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return 0, 0, fmt.Errorf("parse --from: %w", err)
	}
	var end int64
	if to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return 0, 0, fmt.Errorf("parse --to: %w", err)
		}
		end = t.AddDate(0, 0, 1).UnixMilli() - 1
		if end < start.UnixMilli() {
			return 0, 0, fmt.Errorf("period end %s is before start %s", to, from)
		}
	}
	return start.UnixMilli(), end, nil
}

// parseTimestamp accepts a date, an RFC 3339 time or unix milliseconds.
func parseTimestamp(s string) (int64, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UnixMilli(), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	return 0, fmt.Errorf("invalid time %q: want YYYY-MM-DD, RFC 3339 or unix milliseconds", s)
}
