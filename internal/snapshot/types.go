// Package snapshot implements the file-based backup format and its
// reconciliation engine. Export writes a versioned document of the whole
// store; Plan compares a document against local state without mutating
// anything; Apply commits a plan under user-supplied decisions.
package snapshot

import "time"

// SchemaVersion is the current snapshot document version.
const SchemaVersion = 1

// Document is the on-disk snapshot. Timestamps are raw time values so the
// planner can reconstruct identity and fuzzy keys losslessly.
type Document struct {
	SchemaVersion int        `json:"schema_version"`
	ExportedAt    time.Time  `json:"exported_at"`
	Days          []Day      `json:"days"`
	Items         []Item     `json:"items"`
	Deleted       []string   `json:"deleted"`
	Exercises     []Exercise `json:"exercises"`
	Units         []Unit     `json:"units"`
}

// Day is a snapshot day bucket.
type Day struct {
	UUID       string    `json:"uuid"`
	Day        string    `json:"day"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Item is a snapshot activity item. LogicalID is the item's UUID in the
// exporting install; ExternalID is the provider identity, if any.
type Item struct {
	LogicalID    string    `json:"logical_id"`
	ExternalID   string    `json:"external_id,omitempty"`
	BucketUUID   string    `json:"bucket_uuid"`
	ExerciseUUID string    `json:"exercise_uuid"`
	UnitUUID     string    `json:"unit_uuid"`
	Amount       float64   `json:"amount"`
	Enjoyment    int       `json:"enjoyment"`
	Intensity    int       `json:"intensity"`
	Note         string    `json:"note,omitempty"`
	Imported     bool      `json:"imported"`
	SortIndex    int       `json:"sort_index"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// Exercise is a snapshot catalog exercise.
type Exercise struct {
	UUID            string `json:"uuid"`
	Name            string `json:"name"`
	Category        string `json:"category"`
	DefaultUnitUUID string `json:"default_unit_uuid,omitempty"`
}

// Unit is a snapshot catalog unit.
type Unit struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Verdict says which side of an identity conflict is newer.
type Verdict string

const (
	NewerImport Verdict = "importFile"
	NewerLocal  Verdict = "local"
	NewerEqual  Verdict = "equal"
)

// Plan partitions snapshot items into conflict classes. Producing a plan
// never mutates the store.
type Plan struct {
	IdentityConflicts  []IdentityConflict
	TombstoneConflicts []TombstoneConflict
	NearDuplicates     []NearDuplicate
	Inserts            []Insert
	AlreadyExists      []Existing
}

// Empty reports whether the plan contains no entries at all.
func (p *Plan) Empty() bool {
	return len(p.IdentityConflicts) == 0 && len(p.TombstoneConflicts) == 0 &&
		len(p.NearDuplicates) == 0 && len(p.Inserts) == 0 && len(p.AlreadyExists) == 0
}

// IdentityConflict is a snapshot item whose stable identity matches a local
// item with differing content.
type IdentityConflict struct {
	Key      string
	Incoming Item
	Local    LocalItem
	Newer    Verdict
}

// TombstoneConflict is a snapshot item whose external identity the user
// deleted locally.
type TombstoneConflict struct {
	Key      string
	Incoming Item
}

// NearDuplicate is a snapshot item with no stable-identity match whose fuzzy
// key coincides with an existing local item.
type NearDuplicate struct {
	Key      string
	Incoming Item
	Local    LocalItem
}

// Insert is a snapshot item with no local counterpart.
type Insert struct {
	Key      string
	Incoming Item
}

// Existing is a snapshot item already present locally with identical content.
type Existing struct {
	Key      string
	Incoming Item
	Local    LocalItem
}

// Decisions carries the user's arbitration for a plan. Keys use the decision
// key format (id:, hk:, legacy:). Absent decisions favor local state.
type Decisions struct {
	KeepImport   []string `yaml:"keep_import" json:"keep_import,omitempty"`
	Restore      []string `yaml:"restore" json:"restore,omitempty"`
	SkipInsert   []string `yaml:"skip_insert" json:"skip_insert,omitempty"`
	InsertLegacy []string `yaml:"insert_legacy" json:"insert_legacy,omitempty"`
}

func toSet(keys []string) map[string]bool {
	if len(keys) == 0 {
		return nil
	}
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// KeepImportSet returns the keep-import keys as a set.
func (d Decisions) KeepImportSet() map[string]bool { return toSet(d.KeepImport) }

// RestoreSet returns the restore keys as a set.
func (d Decisions) RestoreSet() map[string]bool { return toSet(d.Restore) }

// SkipInsertSet returns the skip-insert keys as a set.
func (d Decisions) SkipInsertSet() map[string]bool { return toSet(d.SkipInsert) }

// InsertLegacySet returns the insert-legacy keys as a set.
func (d Decisions) InsertLegacySet() map[string]bool { return toSet(d.InsertLegacy) }
