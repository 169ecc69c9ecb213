// Package dedupe collapses duplicate entities that concurrent writers (for
// example store replication) may have introduced: day buckets sharing a
// calendar date and catalog rows sharing a name. It heals rather than
// prevents; running it twice produces no further change.
package dedupe

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/events"
	"github.com/ldavies/fitsync/internal/store"
)

// Service merges duplicate day buckets, exercises and units.
type Service struct {
	store *store.Store
}

// New creates a dedupe service over the given store.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Result reports how many duplicate groups were collapsed.
type Result struct {
	Buckets   int
	Exercises int
	Units     int
}

// Total returns the total number of collapsed groups.
func (r Result) Total() int {
	return r.Buckets + r.Exercises + r.Units
}

// Run collapses all duplicate groups. For each group the keeper is the most
// recently created row, ties broken by child count; losers' children are
// reparented onto the keeper before the losers are deleted.
func (s *Service) Run() (*Result, error) {
	result := &Result{}

	n, err := s.collapseBuckets()
	if err != nil {
		return nil, err
	}
	result.Buckets = n

	n, err = s.collapseCatalog("exercises", "exercise_uuid")
	if err != nil {
		return nil, err
	}
	result.Exercises = n

	n, err = s.collapseCatalog("units", "unit_uuid")
	if err != nil {
		return nil, err
	}
	result.Units = n

	return result, nil
}

func (s *Service) collapseBuckets() (int, error) {
	buckets, err := s.store.Days.ListAll()
	if err != nil {
		return 0, err
	}

	byDay := make(map[string][]domain.DayBucket)
	for _, b := range buckets {
		byDay[b.Day] = append(byDay[b.Day], b)
	}

	collapsed := 0
	for _, group := range byDay {
		if len(group) < 2 {
			continue
		}

		keeper, losers, err := s.pickBucketKeeper(group)
		if err != nil {
			return collapsed, err
		}

		err = s.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
			for _, loser := range losers {
				if _, err := tx.Exec(`
					UPDATE activity_items SET bucket_uuid = ? WHERE bucket_uuid = ?
				`, keeper.UUID, loser.UUID); err != nil {
					return fmt.Errorf("failed to reparent items: %w", err)
				}
				if _, err := tx.Exec(`DELETE FROM day_buckets WHERE uuid = ?`, loser.UUID); err != nil {
					return fmt.Errorf("failed to delete duplicate bucket: %w", err)
				}
			}
			return ew.LogDedupeCollapsed(tx, "day_bucket", keeper.UUID, len(losers))
		})
		if err != nil {
			return collapsed, err
		}
		collapsed++
	}
	return collapsed, nil
}

func (s *Service) pickBucketKeeper(group []domain.DayBucket) (domain.DayBucket, []domain.DayBucket, error) {
	counts := make(map[string]int, len(group))
	for _, b := range group {
		var n int
		err := s.store.DB().QueryRow(`
			SELECT COUNT(*) FROM activity_items WHERE bucket_uuid = ?
		`, b.UUID).Scan(&n)
		if err != nil {
			return domain.DayBucket{}, nil, fmt.Errorf("failed to count bucket items: %w", err)
		}
		counts[b.UUID] = n
	}

	keeper := group[0]
	for _, b := range group[1:] {
		if b.CreatedAt.After(keeper.CreatedAt) {
			keeper = b
		} else if b.CreatedAt.Equal(keeper.CreatedAt) && counts[b.UUID] > counts[keeper.UUID] {
			keeper = b
		}
	}

	var losers []domain.DayBucket
	for _, b := range group {
		if b.UUID != keeper.UUID {
			losers = append(losers, b)
		}
	}
	return keeper, losers, nil
}

// catalogRow is the common shape of exercises and units for dedup purposes.
type catalogRow struct {
	uuid      string
	name      string
	createdAt string
}

func (s *Service) collapseCatalog(table, fkColumn string) (int, error) {
	rows, err := s.store.DB().Query(fmt.Sprintf(
		"SELECT uuid, name, created_at FROM %s ORDER BY created_at ASC, uuid ASC", table))
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", table, err)
	}

	byName := make(map[string][]catalogRow)
	for rows.Next() {
		var r catalogRow
		if err := rows.Scan(&r.uuid, &r.name, &r.createdAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		key := strings.ToLower(strings.TrimSpace(r.name))
		byName[key] = append(byName[key], r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	collapsed := 0
	for _, group := range byName {
		if len(group) < 2 {
			continue
		}

		keeper, losers, err := s.pickCatalogKeeper(group, fkColumn)
		if err != nil {
			return collapsed, err
		}

		err = s.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
			for _, loser := range losers {
				if _, err := tx.Exec(fmt.Sprintf(
					"UPDATE activity_items SET %s = ? WHERE %s = ?", fkColumn, fkColumn),
					keeper.uuid, loser.uuid); err != nil {
					return fmt.Errorf("failed to reparent items: %w", err)
				}
				if fkColumn == "unit_uuid" {
					if _, err := tx.Exec(`
						UPDATE exercises SET default_unit_uuid = ? WHERE default_unit_uuid = ?
					`, keeper.uuid, loser.uuid); err != nil {
						return fmt.Errorf("failed to reparent default units: %w", err)
					}
				}
				if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE uuid = ?", table), loser.uuid); err != nil {
					return fmt.Errorf("failed to delete duplicate %s row: %w", table, err)
				}
			}
			resourceType := strings.TrimSuffix(table, "s")
			return ew.LogDedupeCollapsed(tx, resourceType, keeper.uuid, len(losers))
		})
		if err != nil {
			return collapsed, err
		}
		collapsed++
	}
	return collapsed, nil
}

func (s *Service) pickCatalogKeeper(group []catalogRow, fkColumn string) (catalogRow, []catalogRow, error) {
	counts := make(map[string]int, len(group))
	for _, r := range group {
		var n int
		err := s.store.DB().QueryRow(fmt.Sprintf(
			"SELECT COUNT(*) FROM activity_items WHERE %s = ?", fkColumn), r.uuid).Scan(&n)
		if err != nil {
			return catalogRow{}, nil, fmt.Errorf("failed to count references: %w", err)
		}
		counts[r.uuid] = n
	}

	keeper := group[0]
	for _, r := range group[1:] {
		if r.createdAt > keeper.createdAt {
			keeper = r
		} else if r.createdAt == keeper.createdAt && counts[r.uuid] > counts[keeper.uuid] {
			keeper = r
		}
	}

	var losers []catalogRow
	for _, r := range group {
		if r.uuid != keeper.uuid {
			losers = append(losers, r)
		}
	}
	return keeper, losers, nil
}
