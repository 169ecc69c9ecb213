package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Decision key prefixes. id: addresses an item by logical ID, hk: by external
// (provider) ID, legacy: by fuzzy content hash.
const (
	KeyKindLogical  = "id"
	KeyKindExternal = "hk"
	KeyKindLegacy   = "legacy"
)

// LogicalKey returns the decision key for an item's logical ID.
func LogicalKey(logicalID string) string {
	return KeyKindLogical + ":" + logicalID
}

// ExternalKey returns the decision key for a provider identity.
func ExternalKey(externalID string) string {
	return KeyKindExternal + ":" + externalID
}

// LegacyKey returns the decision key for a fuzzy content hash.
func LegacyKey(hash string) string {
	return KeyKindLegacy + ":" + hash
}

// ParseKey splits a decision key into kind and value.
func ParseKey(key string) (kind, value string, err error) {
	idx := strings.Index(key, ":")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("malformed decision key %q", key)
	}
	kind, value = key[:idx], key[idx+1:]
	switch kind {
	case KeyKindLogical, KeyKindExternal, KeyKindLegacy:
		return kind, value, nil
	}
	return "", "", fmt.Errorf("unknown decision key kind %q", kind)
}

// FuzzyKey computes the content hash used to spot near-duplicates: exercise
// and unit names lowercased and trimmed, amount to three decimals, both
// ratings, and the creation time rounded to the second.
func FuzzyKey(exerciseName, unitName string, amount float64, enjoyment, intensity int, createdAt time.Time) string {
	canonical := fmt.Sprintf("%s|%s|%.3f|%d|%d|%s",
		strings.ToLower(strings.TrimSpace(exerciseName)),
		strings.ToLower(strings.TrimSpace(unitName)),
		amount,
		enjoyment,
		intensity,
		createdAt.UTC().Truncate(time.Second).Format(time.RFC3339),
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}
