package domain

import (
	"fmt"
	"regexp"
	"time"
)

// UUIDv4Regex validates lowercase UUIDv4 format
var UUIDv4Regex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// DayRegex validates a calendar date in YYYY-MM-DD form
var DayRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateUUID validates a UUID v4 format (lowercase with hyphens)
func ValidateUUID(uuid string) error {
	if !UUIDv4Regex.MatchString(uuid) {
		return fmt.Errorf("invalid UUID: must be lowercase UUIDv4 format (e.g., 550e8400-e29b-41d4-a716-446655440000)")
	}
	return nil
}

// ValidateDay validates a calendar date key
func ValidateDay(day string) error {
	if !DayRegex.MatchString(day) {
		return fmt.Errorf("invalid day: must be YYYY-MM-DD")
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return fmt.Errorf("invalid day: %w", err)
	}
	return nil
}

// ValidateUnitKind validates a unit kind
func ValidateUnitKind(kind string) error {
	switch UnitKind(kind) {
	case UnitKindTime, UnitKindDistance, UnitKindCount:
		return nil
	default:
		return fmt.Errorf("invalid unit kind: must be one of: time, distance, count")
	}
}

// ValidateImportUnitPreference validates an import-unit preference value
func ValidateImportUnitPreference(pref string) error {
	switch ImportUnitPreference(pref) {
	case ImportUnitTime, ImportUnitDistance, ImportUnitAuto:
		return nil
	default:
		return fmt.Errorf("invalid import unit preference: must be one of: time, distance, auto")
	}
}

// ClampRating clamps enjoyment/intensity ratings into [1,5]
func ClampRating(r int) int {
	if r < 1 {
		return 1
	}
	if r > 5 {
		return 5
	}
	return r
}

// ValidateAmount validates an activity amount
func ValidateAmount(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("invalid amount: must be non-negative")
	}
	return nil
}

// ValidateTimestamp validates and parses an ISO8601 timestamp
func ValidateTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: expected ISO8601/RFC3339")
	}
	return t, nil
}
