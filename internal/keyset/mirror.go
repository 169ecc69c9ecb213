package keyset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Mirror is a shared key-value document holding the seen and deleted sets,
// typically a file in a folder replicated across installs.
type Mirror interface {
	Load() (seen, deleted map[string]bool, err error)
	Store(seen, deleted map[string]bool) error
}

// FileMirror stores both sets as a small JSON document. Writes are atomic
// (temp file + rename) so a concurrent reader never sees a torn document.
type FileMirror struct {
	path string
}

// NewFileMirror creates a mirror backed by the given file path.
func NewFileMirror(path string) *FileMirror {
	return &FileMirror{path: path}
}

type mirrorDoc struct {
	SchemaVersion int      `json:"schema_version"`
	Seen          []string `json:"seen"`
	Deleted       []string `json:"deleted"`
}

// Load reads the mirror document. A missing file yields empty sets.
func (m *FileMirror) Load() (map[string]bool, map[string]bool, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, map[string]bool{}, nil
		}
		return nil, nil, fmt.Errorf("failed to read mirror: %w", err)
	}

	var doc mirrorDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse mirror: %w", err)
	}

	seen := make(map[string]bool, len(doc.Seen))
	for _, id := range doc.Seen {
		seen[id] = true
	}
	deleted := make(map[string]bool, len(doc.Deleted))
	for _, id := range doc.Deleted {
		deleted[id] = true
	}
	return seen, deleted, nil
}

// Store writes the mirror document atomically.
func (m *FileMirror) Store(seen, deleted map[string]bool) error {
	doc := mirrorDoc{
		SchemaVersion: 1,
		Seen:          sortedKeys(seen),
		Deleted:       sortedKeys(deleted),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mirror: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create mirror directory: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write mirror: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace mirror: %w", err)
	}
	return nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for id := range set {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}
