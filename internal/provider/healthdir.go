package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ldavies/fitsync/internal/domain"
)

// HealthDirSource serves records from a directory of provider export files
// (one JSON document per file) and fires a change notification whenever the
// directory changes. This is the adapter for providers that sync via a
// replicated drop folder.
type HealthDirSource struct {
	dir     string
	watcher *fsnotify.Watcher
	changes chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// exportFile is the on-disk shape of one provider export document.
type exportFile struct {
	SchemaVersion int            `json:"schema_version"`
	Records       []exportRecord `json:"records"`
}

type exportRecord struct {
	ID              string   `json:"id"`
	ActivityType    string   `json:"activity_type"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	DurationSeconds float64  `json:"duration_seconds"`
	DistanceMeters  *float64 `json:"distance_meters,omitempty"`
	EnergyKcal      *float64 `json:"energy_kcal,omitempty"`
}

// NewHealthDirSource opens a source over dir. The directory must exist;
// a missing directory means the provider is unavailable on this install.
func NewHealthDirSource(dir string) (*HealthDirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: provider directory %s does not exist", domain.ErrProviderUnavailable, dir)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderPermission, err)
		}
		return nil, fmt.Errorf("failed to stat provider directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrProviderUnavailable, dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch provider directory: %w", err)
	}

	s := &HealthDirSource{
		dir:     dir,
		watcher: watcher,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.eventLoop()
	return s, nil
}

// Fetch reads every export file in the directory and returns the records
// whose start time falls within [start, end].
func (s *HealthDirSource) Fetch(ctx context.Context, start, end time.Time) ([]domain.ExternalRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	// Overlapping export files repeat workouts; keep the first copy of
	// each ID.
	seen := make(map[string]bool)
	var out []domain.ExternalRecord
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := readExportFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrFetchFailed, name, err)
		}
		for _, r := range records {
			if r.StartTime.Before(start) || r.StartTime.After(end) {
				continue
			}
			if r.ID != "" {
				if seen[r.ID] {
					continue
				}
				seen[r.ID] = true
			}
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Changes returns the coalesced change notification channel.
func (s *HealthDirSource) Changes() <-chan struct{} {
	return s.changes
}

// Close stops the watcher and closes the notification channel.
func (s *HealthDirSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})
	return err
}

func (s *HealthDirSource) eventLoop() {
	defer close(s.changes)
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			// Coalesce: a pending notification is enough.
			select {
			case s.changes <- struct{}{}:
			default:
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			// Watcher errors are transient; the next fetch surfaces real
			// failures.
		}
	}
}

func readExportFile(path string) ([]domain.ExternalRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc exportFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid export document: %w", err)
	}

	records := make([]domain.ExternalRecord, 0, len(doc.Records))
	for _, r := range doc.Records {
		startTime, err := time.Parse(time.RFC3339, r.StartTime)
		if err != nil {
			return nil, fmt.Errorf("record %s: invalid start_time: %w", r.ID, err)
		}
		endTime := startTime
		if r.EndTime != "" {
			endTime, err = time.Parse(time.RFC3339, r.EndTime)
			if err != nil {
				return nil, fmt.Errorf("record %s: invalid end_time: %w", r.ID, err)
			}
		}
		records = append(records, domain.ExternalRecord{
			ID:             r.ID,
			ActivityType:   r.ActivityType,
			StartTime:      startTime.UTC(),
			EndTime:        endTime.UTC(),
			Duration:       time.Duration(r.DurationSeconds * float64(time.Second)),
			DistanceMeters: r.DistanceMeters,
			EnergyKcal:     r.EnergyKcal,
		})
	}
	return records, nil
}
