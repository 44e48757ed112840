package records

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// RecordType identifies a category of health data that can be shared through
// an access token. The vocabulary is closed: scope checks and fetcher dispatch
// are exhaustive over these values.
type RecordType string

const (
	TypeLabResults     RecordType = "lab_results"
	TypePrescriptions  RecordType = "prescriptions"
	TypeMedicalHistory RecordType = "medical_history"
	TypeVitalSigns     RecordType = "vital_signs"
	TypeVisitRecords   RecordType = "visit_records"
	TypeAllergies      RecordType = "allergies"
)

// AllTypes returns the full record-type vocabulary in stable order.
func AllTypes() []RecordType {
	return []RecordType{
		TypeAllergies,
		TypeLabResults,
		TypeMedicalHistory,
		TypePrescriptions,
		TypeVisitRecords,
		TypeVitalSigns,
	}
}

// Valid reports whether rt is part of the recognized vocabulary.
func (rt RecordType) Valid() bool {
	switch rt {
	case TypeLabResults, TypePrescriptions, TypeMedicalHistory,
		TypeVitalSigns, TypeVisitRecords, TypeAllergies:
		return true
	}
	return false
}

// ParseTypes validates and deduplicates a list of raw record-type tags.
// The result is sorted so downstream use (scope storage, audit entries) is
// deterministic regardless of input order.
func ParseTypes(raw []string) ([]RecordType, error) {
	seen := make(map[RecordType]bool, len(raw))
	var out []RecordType
	for _, r := range raw {
		rt := RecordType(r)
		if !rt.Valid() {
			return nil, fmt.Errorf("unknown record type %q", r)
		}
		if seen[rt] {
			continue
		}
		seen[rt] = true
		out = append(out, rt)
	}
	SortTypes(out)
	return out, nil
}

// SortTypes sorts a record-type slice in place.
func SortTypes(types []RecordType) {
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
}

// TypeStrings converts a record-type slice to plain strings for persistence.
func TypeStrings(types []RecordType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// TypesFromStrings converts persisted tags back to record types without
// validation; rows written through ParseTypes are already vocabulary-checked.
func TypesFromStrings(raw []string) []RecordType {
	out := make([]RecordType, len(raw))
	for i, r := range raw {
		out[i] = RecordType(r)
	}
	return out
}

// Record is a single shared health record returned to a grantee. Sources fold
// their table-specific columns into Data so the sharing surface stays uniform
// across record types.
type Record struct {
	ID         uuid.UUID         `json:"id"`
	Type       RecordType        `json:"type"`
	RecordedAt time.Time         `json:"recorded_at"`
	Summary    string            `json:"summary"`
	Data       map[string]string `json:"data,omitempty"`
}
