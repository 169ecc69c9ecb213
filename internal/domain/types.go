package domain

import (
	"time"
)

// UnitKind classifies how a unit measures an activity.
type UnitKind string

const (
	UnitKindTime     UnitKind = "time"
	UnitKindDistance UnitKind = "distance"
	UnitKindCount    UnitKind = "count"
)

// ImportUnitPreference selects which unit to use when converting provider
// records into activity items.
type ImportUnitPreference string

const (
	ImportUnitTime     ImportUnitPreference = "time"
	ImportUnitDistance ImportUnitPreference = "distance"
	ImportUnitAuto     ImportUnitPreference = "auto"
)

// Preference keys persisted in the prefs table.
const (
	PrefSyncEnabled         = "sync_enabled"
	PrefImportUnit          = "import_unit"
	PrefLastSyncAt          = "last_sync_at"
	PrefFirstImportNotified = "first_import_notified"
)

// Exercise is a catalog entry describing a kind of activity.
type Exercise struct {
	UUID            string    `json:"uuid" db:"uuid"`
	Name            string    `json:"name" db:"name"`
	Category        string    `json:"category" db:"category"`
	DefaultUnitUUID *string   `json:"default_unit_uuid,omitempty" db:"default_unit_uuid"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Unit is a catalog entry describing how an amount is measured.
type Unit struct {
	UUID      string    `json:"uuid" db:"uuid"`
	Name      string    `json:"name" db:"name"`
	Kind      UnitKind  `json:"kind" db:"kind"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DayBucket owns the activity items logged on one calendar date. A healthy
// store has exactly one bucket per date; merge heals violations rather than
// preventing them.
type DayBucket struct {
	UUID       string    `json:"uuid" db:"uuid"`
	Day        string    `json:"day" db:"day"` // YYYY-MM-DD
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`
}

// ActivityItem is one logged activity. UUID is the stable local identity;
// ExternalID, when present, is the identity assigned by the provider and is
// unique across the entire store.
type ActivityItem struct {
	UUID         string    `json:"uuid" db:"uuid"`
	ExternalID   *string   `json:"external_id,omitempty" db:"external_id"`
	BucketUUID   string    `json:"bucket_uuid" db:"bucket_uuid"`
	ExerciseUUID string    `json:"exercise_uuid" db:"exercise_uuid"`
	UnitUUID     string    `json:"unit_uuid" db:"unit_uuid"`
	Amount       float64   `json:"amount" db:"amount"`
	Enjoyment    int       `json:"enjoyment" db:"enjoyment"` // 1-5, clamped on write
	Intensity    int       `json:"intensity" db:"intensity"` // 1-5, clamped on write
	Note         *string   `json:"note,omitempty" db:"note"`
	Imported     bool      `json:"imported" db:"imported"`
	SortIndex    int       `json:"sort_index" db:"sort_index"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	ModifiedAt   time.Time `json:"modified_at" db:"modified_at"`
}

// HasExternalID reports whether the item carries a provider identity.
func (it *ActivityItem) HasExternalID() bool {
	return it.ExternalID != nil && *it.ExternalID != ""
}

// ExternalRecord is a unit of activity data reported by the provider.
type ExternalRecord struct {
	ID             string        `json:"id"`
	ActivityType   string        `json:"activity_type"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	DistanceMeters *float64      `json:"distance_meters,omitempty"`
	EnergyKcal     *float64      `json:"energy_kcal,omitempty"`
}

// Day returns the record's calendar date (UTC) in YYYY-MM-DD form.
func (r ExternalRecord) Day() string {
	return r.StartTime.UTC().Format("2006-01-02")
}

// SyncResult is the outcome of one sync cycle. Recoverable failures are
// captured here rather than returned as errors.
type SyncResult struct {
	Imported int       `json:"imported"`
	Skipped  int       `json:"skipped"`
	Err      string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// OK reports whether the cycle finished without a captured error.
func (r SyncResult) OK() bool {
	return r.Err == ""
}

// Event represents an event in the event log.
type Event struct {
	ID           int64     `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	ResourceUUID *string   `json:"resource_uuid,omitempty" db:"resource_uuid"`
	EventType    string    `json:"event_type" db:"event_type"`
	Payload      *string   `json:"payload,omitempty" db:"payload"` // JSON
}
