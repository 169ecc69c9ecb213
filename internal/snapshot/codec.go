package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ldavies/fitsync/internal/domain"
)

// Encode renders a document as canonical JSON: slices sorted on stable keys,
// timestamps truncated to UTC seconds, two-space indentation. Encoding the
// same logical content always yields the same bytes.
func Encode(doc *Document) ([]byte, error) {
	canon := *doc
	canon.ExportedAt = canon.ExportedAt.UTC().Truncate(time.Second)

	canon.Days = append([]Day(nil), doc.Days...)
	sort.Slice(canon.Days, func(i, j int) bool { return canon.Days[i].Day < canon.Days[j].Day })
	for i := range canon.Days {
		canon.Days[i].CreatedAt = canon.Days[i].CreatedAt.UTC().Truncate(time.Second)
		canon.Days[i].ModifiedAt = canon.Days[i].ModifiedAt.UTC().Truncate(time.Second)
	}

	canon.Items = append([]Item(nil), doc.Items...)
	sort.Slice(canon.Items, func(i, j int) bool {
		return canon.Items[i].LogicalID < canon.Items[j].LogicalID
	})
	for i := range canon.Items {
		canon.Items[i].CreatedAt = canon.Items[i].CreatedAt.UTC().Truncate(time.Second)
		canon.Items[i].ModifiedAt = canon.Items[i].ModifiedAt.UTC().Truncate(time.Second)
	}

	canon.Deleted = append([]string(nil), doc.Deleted...)
	sort.Strings(canon.Deleted)

	canon.Exercises = append([]Exercise(nil), doc.Exercises...)
	sort.Slice(canon.Exercises, func(i, j int) bool {
		return canon.Exercises[i].Name < canon.Exercises[j].Name
	})

	canon.Units = append([]Unit(nil), doc.Units...)
	sort.Slice(canon.Units, func(i, j int) bool { return canon.Units[i].Name < canon.Units[j].Name })

	data, err := json.MarshalIndent(&canon, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses and validates snapshot bytes. Any structural problem wraps
// ErrSnapshotMalformed; nothing downstream of a failed Decode runs.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotMalformed, err)
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", domain.ErrSnapshotMalformed, doc.SchemaVersion)
	}

	days := make(map[string]bool, len(doc.Days))
	for _, d := range doc.Days {
		if err := domain.ValidateDay(d.Day); err != nil {
			return nil, fmt.Errorf("%w: day bucket %s: %v", domain.ErrSnapshotMalformed, d.UUID, err)
		}
		days[d.UUID] = true
	}

	exercises := make(map[string]bool, len(doc.Exercises))
	for _, e := range doc.Exercises {
		exercises[e.UUID] = true
	}
	units := make(map[string]bool, len(doc.Units))
	for _, u := range doc.Units {
		if err := domain.ValidateUnitKind(u.Kind); err != nil {
			return nil, fmt.Errorf("%w: unit %s: %v", domain.ErrSnapshotMalformed, u.UUID, err)
		}
		units[u.UUID] = true
	}

	for _, item := range doc.Items {
		if item.LogicalID == "" {
			return nil, fmt.Errorf("%w: item missing logical ID", domain.ErrSnapshotMalformed)
		}
		if !days[item.BucketUUID] {
			return nil, fmt.Errorf("%w: item %s references unknown bucket %s",
				domain.ErrSnapshotMalformed, item.LogicalID, item.BucketUUID)
		}
		if !exercises[item.ExerciseUUID] {
			return nil, fmt.Errorf("%w: item %s references unknown exercise %s",
				domain.ErrSnapshotMalformed, item.LogicalID, item.ExerciseUUID)
		}
		if !units[item.UnitUUID] {
			return nil, fmt.Errorf("%w: item %s references unknown unit %s",
				domain.ErrSnapshotMalformed, item.LogicalID, item.UnitUUID)
		}
	}
	return &doc, nil
}

// ReadFile loads and decodes a snapshot from disk.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return Decode(data)
}

// WriteFile writes a document to disk atomically via a temp file rename.
func WriteFile(path string, doc *Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}
