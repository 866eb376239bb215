package models

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
)

// Record is a partial identity record. A field that is not present in the map is null.
type Record map[string]string

// nullValues are the spellings upstream CSV exports use for a missing value.
var nullValues = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"NaN":  {},
	"nan":  {},
	"None": {},
	"NULL": {},
	"null": {},
	"<NA>": {},
}

// NormalizeValue converts a raw scalar into its canonical string form.
// The second return value is false when the value is null.
//
// Integer-valued floats ("4035.0") are rewritten to their integer spelling so
// identifiers exported as floats by one source compare equal to the same
// identifier exported as integers by another.
func NormalizeValue(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if _, isNull := nullValues[v]; isNull {
		return "", false
	}

	if whole, frac, ok := strings.Cut(v, "."); ok && strings.Trim(frac, "0") == "" {
		if _, err := strconv.ParseInt(whole, 10, 64); err == nil {
			return whole, true
		}
	}
	return v, true
}

// NormalizeRecord builds a Record from raw field values, dropping nulls.
func NormalizeRecord(raw map[string]string) Record {
	r := make(Record, len(raw))
	for field, value := range raw {
		if v, ok := NormalizeValue(value); ok {
			r[field] = v
		}
	}
	return r
}

// Get returns the value of a field and whether it is non-null.
func (r Record) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}

// Fields returns the non-null field names in sorted order.
func (r Record) Fields() []string {
	fields := make([]string, 0, len(r))
	for f := range r {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Clone returns a copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Equal reports whether both records carry the same non-null fields and values.
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// IsEmpty reports whether every field is null.
func (r Record) IsEmpty() bool {
	return len(r) == 0
}

// Fingerprint returns the deterministic identity hash of the record.
func (r Record) Fingerprint() string {
	return fingerprint.Generate(r)
}
