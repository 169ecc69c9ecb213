// Package catalog maps provider activity types onto local exercises and
// picks the unit and amount for an imported record. The matching rules are
// plain string normalization and ranking; nothing here touches the store.
package catalog

import (
	"strings"

	"github.com/ldavies/fitsync/internal/domain"
)

// DefaultCategory is the catalog category a record falls back to when no
// exercise matches its activity type.
const DefaultCategory = "general"

// Normalize reduces an activity or exercise name to its comparison form:
// lowercase, letters only, trailing plural "s" stripped.
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 1 && strings.HasSuffix(s, "s") {
		s = s[:len(s)-1]
	}
	return s
}

// Match resolves a provider activity type to zero or one exercise, trying in
// order: exact name match, normalized equality, substring containment, then
// any exercise in the default category.
func Match(activityType string, exercises []domain.Exercise) *domain.Exercise {
	trimmed := strings.TrimSpace(activityType)
	if trimmed == "" || len(exercises) == 0 {
		return nil
	}

	for i := range exercises {
		if strings.EqualFold(exercises[i].Name, trimmed) {
			return &exercises[i]
		}
	}

	norm := Normalize(trimmed)
	if norm != "" {
		for i := range exercises {
			if Normalize(exercises[i].Name) == norm {
				return &exercises[i]
			}
		}
		for i := range exercises {
			exNorm := Normalize(exercises[i].Name)
			if exNorm == "" {
				continue
			}
			if strings.Contains(norm, exNorm) || strings.Contains(exNorm, norm) {
				return &exercises[i]
			}
		}
	}

	for i := range exercises {
		if strings.EqualFold(exercises[i].Category, DefaultCategory) {
			return &exercises[i]
		}
	}

	return nil
}

// PickUnit selects the unit for an imported record according to the user's
// import-unit preference. "auto" prefers the exercise's configured default
// unit and falls back to duration.
func PickUnit(pref domain.ImportUnitPreference, exercise *domain.Exercise, record domain.ExternalRecord, units []domain.Unit) *domain.Unit {
	byKind := func(kind domain.UnitKind) *domain.Unit {
		for i := range units {
			if units[i].Kind == kind {
				return &units[i]
			}
		}
		return nil
	}

	switch pref {
	case domain.ImportUnitDistance:
		if record.DistanceMeters != nil {
			if u := byKind(domain.UnitKindDistance); u != nil {
				return u
			}
		}
		return byKind(domain.UnitKindTime)
	case domain.ImportUnitTime:
		return byKind(domain.UnitKindTime)
	default: // auto
		if exercise != nil && exercise.DefaultUnitUUID != nil {
			for i := range units {
				if units[i].UUID == *exercise.DefaultUnitUUID {
					if units[i].Kind == domain.UnitKindDistance && record.DistanceMeters == nil {
						break
					}
					return &units[i]
				}
			}
		}
		return byKind(domain.UnitKindTime)
	}
}

// Amount computes the amount for a record in the chosen unit: minutes for
// time units, kilometers for distance units, 1 for plain counts.
func Amount(record domain.ExternalRecord, unit *domain.Unit) float64 {
	if unit == nil {
		return 0
	}
	switch unit.Kind {
	case domain.UnitKindDistance:
		if record.DistanceMeters != nil {
			return *record.DistanceMeters / 1000.0
		}
		return 0
	case domain.UnitKindTime:
		return record.Duration.Minutes()
	default:
		return 1
	}
}
