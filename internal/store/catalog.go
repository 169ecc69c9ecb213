package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ldavies/fitsync/internal/domain"
)

// CatalogStore handles exercise and unit taxonomy persistence.
type CatalogStore struct {
	store *Store
}

// EnsureUnit returns the unit with the given name (case-insensitive),
// creating it if needed.
func (cs *CatalogStore) EnsureUnit(name string, kind domain.UnitKind) (*domain.Unit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("unit name is required")
	}
	if err := domain.ValidateUnitKind(string(kind)); err != nil {
		return nil, err
	}

	unit, err := cs.findUnitByName(name)
	if err != nil {
		return nil, err
	}
	if unit != nil {
		return unit, nil
	}

	created := &domain.Unit{
		UUID:      uuid.NewString(),
		Name:      name,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	_, err = cs.store.db.Exec(`
		INSERT INTO units (uuid, name, kind, created_at) VALUES (?, ?, ?, ?)
	`, created.UUID, created.Name, string(created.Kind), FormatTime(created.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create unit: %w", err)
	}
	return created, nil
}

// EnsureExercise returns the exercise with the given name (case-insensitive),
// creating it if needed.
func (cs *CatalogStore) EnsureExercise(name, category string, defaultUnitUUID *string) (*domain.Exercise, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("exercise name is required")
	}

	exercise, err := cs.findExerciseByName(name)
	if err != nil {
		return nil, err
	}
	if exercise != nil {
		return exercise, nil
	}

	created := &domain.Exercise{
		UUID:            uuid.NewString(),
		Name:            name,
		Category:        strings.TrimSpace(category),
		DefaultUnitUUID: defaultUnitUUID,
		CreatedAt:       time.Now().UTC(),
	}
	_, err = cs.store.db.Exec(`
		INSERT INTO exercises (uuid, name, category, default_unit_uuid, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, created.UUID, created.Name, created.Category, created.DefaultUnitUUID, FormatTime(created.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create exercise: %w", err)
	}
	return created, nil
}

// GetExercise retrieves an exercise by UUID.
func (cs *CatalogStore) GetExercise(exerciseUUID string) (*domain.Exercise, error) {
	ex, err := scanExercise(cs.store.db.QueryRow(`
		SELECT uuid, name, category, default_unit_uuid, created_at FROM exercises WHERE uuid = ?
	`, exerciseUUID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("exercise not found: %s", exerciseUUID)
		}
		return nil, fmt.Errorf("failed to get exercise: %w", err)
	}
	return ex, nil
}

// GetUnit retrieves a unit by UUID.
func (cs *CatalogStore) GetUnit(unitUUID string) (*domain.Unit, error) {
	u, err := scanUnit(cs.store.db.QueryRow(`
		SELECT uuid, name, kind, created_at FROM units WHERE uuid = ?
	`, unitUUID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("unit not found: %s", unitUUID)
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return u, nil
}

// ListExercises returns all exercises ordered by name.
func (cs *CatalogStore) ListExercises() ([]domain.Exercise, error) {
	rows, err := cs.store.db.Query(`
		SELECT uuid, name, category, default_unit_uuid, created_at
		FROM exercises ORDER BY name COLLATE NOCASE ASC, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exercises: %w", err)
	}
	defer rows.Close()

	var exercises []domain.Exercise
	for rows.Next() {
		ex, err := scanExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exercise: %w", err)
		}
		exercises = append(exercises, *ex)
	}
	return exercises, rows.Err()
}

// ListUnits returns all units ordered by name.
func (cs *CatalogStore) ListUnits() ([]domain.Unit, error) {
	rows, err := cs.store.db.Query(`
		SELECT uuid, name, kind, created_at
		FROM units ORDER BY name COLLATE NOCASE ASC, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	var units []domain.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

func (cs *CatalogStore) findUnitByName(name string) (*domain.Unit, error) {
	u, err := scanUnit(cs.store.db.QueryRow(`
		SELECT uuid, name, kind, created_at FROM units
		WHERE name = ? COLLATE NOCASE ORDER BY created_at ASC LIMIT 1
	`, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query unit: %w", err)
	}
	return u, nil
}

func (cs *CatalogStore) findExerciseByName(name string) (*domain.Exercise, error) {
	ex, err := scanExercise(cs.store.db.QueryRow(`
		SELECT uuid, name, category, default_unit_uuid, created_at FROM exercises
		WHERE name = ? COLLATE NOCASE ORDER BY created_at ASC LIMIT 1
	`, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query exercise: %w", err)
	}
	return ex, nil
}

func scanExercise(row rowScanner) (*domain.Exercise, error) {
	var ex domain.Exercise
	var defaultUnit sql.NullString
	var createdAt string
	if err := row.Scan(&ex.UUID, &ex.Name, &ex.Category, &defaultUnit, &createdAt); err != nil {
		return nil, err
	}
	if defaultUnit.Valid && defaultUnit.String != "" {
		ex.DefaultUnitUUID = &defaultUnit.String
	}
	ex.CreatedAt = parseTimeLenient(createdAt)
	return &ex, nil
}

func scanUnit(row rowScanner) (*domain.Unit, error) {
	var u domain.Unit
	var kind, createdAt string
	if err := row.Scan(&u.UUID, &u.Name, &kind, &createdAt); err != nil {
		return nil, err
	}
	u.Kind = domain.UnitKind(kind)
	u.CreatedAt = parseTimeLenient(createdAt)
	return &u, nil
}
