package tools

import (
	"fmt"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/pkg/types"
)

var validTimeRanges = map[string]bool{
	"last_hour":  true,
	"last_day":   true,
	"last_week":  true,
	"last_month": true,
}

var validRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

func invalid(format string, args ...any) error {
	return apperr.New(apperr.KindInvalid, fmt.Sprintf(format, args...))
}

func requireNonEmpty(field, value string) error {
	if value == "" {
		return invalid("%s is required", field)
	}
	return nil
}

func validateUnitInterval(field string, v float64) error {
	if v < 0 || v > 1 {
		return invalid("%s must be in [0, 1], got %v", field, v)
	}
	return nil
}

func validateLimit(field string, limit, max int) error {
	if limit < 1 || limit > max {
		return invalid("%s must be in [1, %d], got %d", field, max, limit)
	}
	return nil
}

// parseTier validates an optional tier string, returning types.Tier("")
// when empty (meaning "no tier filter" or "use the store's default").
func parseTier(field, raw string) (types.Tier, error) {
	if raw == "" {
		return "", nil
	}
	t := types.Tier(raw)
	if !t.Valid() {
		return "", invalid("%s must be one of working, warm, cold, frozen; got %q", field, raw)
	}
	return t, nil
}

func validateTimeRange(raw string) (string, error) {
	if raw == "" {
		return "last_day", nil
	}
	if !validTimeRanges[raw] {
		return "", invalid("time_range must be one of last_hour, last_day, last_week, last_month; got %q", raw)
	}
	return raw, nil
}

func validateRole(raw string) (string, error) {
	if raw == "" {
		return "user", nil
	}
	if !validRoles[raw] {
		return "", invalid("role must be one of user, assistant, system; got %q", raw)
	}
	return raw, nil
}
