package domain

import (
	"strings"
	"time"
)

// ParseDateRange reads optional from/to bounds in YYYY-MM-DD or RFC 3339.
// A bare date used as the upper bound covers that whole day.
func ParseDateRange(from, to string) (DateRange, error) {
	var window DateRange
	var err error
	if window.From, err = parseBound(from, false); err != nil {
		return DateRange{}, WrapError(ErrInvalidInput, "parse from", err)
	}
	if window.To, err = parseBound(to, true); err != nil {
		return DateRange{}, WrapError(ErrInvalidInput, "parse to", err)
	}
	return window, nil
}

func parseBound(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if day, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
		if upper {
			return day.Add(24*time.Hour - time.Nanosecond), nil
		}
		return day, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
