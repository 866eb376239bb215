package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate creates a deterministic fingerprint for a record.
// The fingerprint is a SHA256 hash of the canonicalized JSON, so two records
// share a fingerprint only when they carry the same fields with the same values.
func Generate(data map[string]string) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions creates a fingerprint ignoring the given fields.
func GenerateWithExclusions(data map[string]string, excludeFields map[string]bool) string {
	canonical := canonicalize(data, excludeFields)

	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// canonicalize renders the record as a JSON object with sorted keys.
func canonicalize(data map[string]string, excludeFields map[string]bool) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if excludeFields[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		keyJSON, _ := json.Marshal(k)
		valueJSON, _ := json.Marshal(data[k])
		b.Write(keyJSON)
		b.WriteByte(':')
		b.Write(valueJSON)
	}
	b.WriteByte('}')
	return b.String()
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}
