package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

type TripStatus string

const (
	TripStatusTentative TripStatus = "tentative"
	TripStatusConfirmed TripStatus = "confirmed"
	TripStatusCancelled TripStatus = "cancelled"
)

// String provides a string representation of the status
func (ts TripStatus) String() string {
	return string(ts)
}

// IsValid checks if the status is a valid trip status
func (ts TripStatus) IsValid() bool {
	switch ts {
	case TripStatusTentative, TripStatusConfirmed, TripStatusCancelled:
		return true
	default:
		return false
	}
}

type OriginType string

const (
	// OriginExplicit marks trips created intentionally by a user or agent.
	OriginExplicit OriginType = "explicit"
	// OriginDerived marks trips synthesized from a standalone booking with no
	// enclosing trip declared.
	OriginDerived OriginType = "derived"
)

func (ot OriginType) String() string {
	return string(ot)
}

func (ot OriginType) IsValid() bool {
	return ot == OriginExplicit || ot == OriginDerived
}

// Traveler is the immutable owner identity of a trip.
type Traveler struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Extension is an opaque provider-specific payload attached to a trip under a
// dotted namespace key (e.g. "air.southwest"). The aggregate stores and
// versions it without interpreting its internal shape.
type Extension map[string]any

// VersionEntry records one accepted mutation. version_history[i].Version is
// always i+1.
type VersionEntry struct {
	Version       int        `json:"version"`
	Timestamp     time.Time  `json:"timestamp"`
	DocumentID    string     `json:"document_id"`
	ChangeType    ChangeType `json:"change_type"`
	ChangedFields []string   `json:"changed_fields"`
}

type ChangeType string

const (
	ChangeTypeCreated ChangeType = "created"
	ChangeTypeUpdated ChangeType = "updated"
)

// Trip is the versioned aggregate representing one journey. Extensions are
// persisted as sibling top-level keys in the flat record shape, so Trip has
// custom JSON marshalling.
type Trip struct {
	ID              string
	Version         int
	Traveler        Traveler
	Status          TripStatus
	StartDate       time.Time
	EndDate         time.Time
	Purpose         string
	OriginType      OriginType
	TripConfidence  float64
	Extensions      map[string]Extension
	SourceDocuments []SourceDocument
	VersionHistory  []VersionEntry
	MergeCandidates []MergeCandidate
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// reservedTripKeys are the flat-record keys owned by the aggregate itself.
// A namespace may not shadow any of them.
var reservedTripKeys = map[string]bool{
	"trip_id":          true,
	"version":          true,
	"created_at":       true,
	"updated_at":       true,
	"traveler":         true,
	"traveler_id":      true,
	"status":           true,
	"start_date":       true,
	"end_date":         true,
	"purpose":          true,
	"origin_type":      true,
	"trip_confidence":  true,
	"source_documents": true,
	"version_history":  true,
	"merge_candidates": true,
}

// IsReservedTripKey reports whether key collides with a core trip field in
// the flat record shape.
func IsReservedTripKey(key string) bool {
	return reservedTripKeys[key]
}

// GetExtension returns the payload stored under namespace.
func (t *Trip) GetExtension(namespace string) (Extension, bool) {
	ext, ok := t.Extensions[namespace]
	return ext, ok
}

// Namespaces returns the sorted list of extension namespace keys.
func (t *Trip) Namespaces() []string {
	keys := make([]string, 0, len(t.Extensions))
	for ns := range t.Extensions {
		keys = append(keys, ns)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the trip. Stores hand out clones so callers
// can never mutate shared state behind the version check.
func (t *Trip) Clone() *Trip {
	cp := *t

	if t.Extensions != nil {
		cp.Extensions = make(map[string]Extension, len(t.Extensions))
		for ns, ext := range t.Extensions {
			cp.Extensions[ns] = deepCopyExtension(ext)
		}
	}
	cp.SourceDocuments = append([]SourceDocument(nil), t.SourceDocuments...)
	for i := range cp.SourceDocuments {
		cp.SourceDocuments[i].ContributedFields = append([]string(nil), t.SourceDocuments[i].ContributedFields...)
	}
	cp.VersionHistory = append([]VersionEntry(nil), t.VersionHistory...)
	for i := range cp.VersionHistory {
		cp.VersionHistory[i].ChangedFields = append([]string(nil), t.VersionHistory[i].ChangedFields...)
	}
	cp.MergeCandidates = append([]MergeCandidate(nil), t.MergeCandidates...)
	for i := range cp.MergeCandidates {
		cp.MergeCandidates[i].MatchReasons = append([]string(nil), t.MergeCandidates[i].MatchReasons...)
	}
	return &cp
}

func deepCopyExtension(ext Extension) Extension {
	cp := make(Extension, len(ext))
	for k, v := range ext {
		cp[k] = deepCopyValue(v)
	}
	return cp
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, inner := range val {
			cp[k] = deepCopyValue(inner)
		}
		return cp
	case Extension:
		return map[string]any(deepCopyExtension(val))
	case []any:
		cp := make([]any, len(val))
		for i, inner := range val {
			cp[i] = deepCopyValue(inner)
		}
		return cp
	default:
		return val
	}
}

// tripRecord mirrors the core fields of the flat persisted record.
type tripRecord struct {
	TripID          string           `json:"trip_id"`
	Version         int              `json:"version"`
	Traveler        Traveler         `json:"traveler"`
	TravelerID      string           `json:"traveler_id"`
	Status          TripStatus       `json:"status"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	Purpose         string           `json:"purpose,omitempty"`
	OriginType      OriginType       `json:"origin_type"`
	TripConfidence  float64          `json:"trip_confidence"`
	SourceDocuments []SourceDocument `json:"source_documents"`
	VersionHistory  []VersionEntry   `json:"version_history"`
	MergeCandidates []MergeCandidate `json:"merge_candidates"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// MarshalJSON renders the flat record shape: core fields plus each extension
// namespace as a sibling top-level key. traveler_id is surfaced for the
// traveler+start_date index.
func (t *Trip) MarshalJSON() ([]byte, error) {
	rec := tripRecord{
		TripID:          t.ID,
		Version:         t.Version,
		Traveler:        t.Traveler,
		TravelerID:      t.Traveler.ID,
		Status:          t.Status,
		StartDate:       t.StartDate,
		EndDate:         t.EndDate,
		Purpose:         t.Purpose,
		OriginType:      t.OriginType,
		TripConfidence:  t.TripConfidence,
		SourceDocuments: t.SourceDocuments,
		VersionHistory:  t.VersionHistory,
		MergeCandidates: t.MergeCandidates,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}

	core, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if len(t.Extensions) == 0 {
		return core, nil
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(core, &flat); err != nil {
		return nil, err
	}
	for ns, ext := range t.Extensions {
		raw, err := json.Marshal(ext)
		if err != nil {
			return nil, fmt.Errorf("marshaling extension %q: %w", ns, err)
		}
		flat[ns] = raw
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads the flat record shape back: any top-level key that is
// not a core field is treated as an extension namespace.
func (t *Trip) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	var rec tripRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	t.ID = rec.TripID
	t.Version = rec.Version
	t.Traveler = rec.Traveler
	t.Status = rec.Status
	t.StartDate = rec.StartDate
	t.EndDate = rec.EndDate
	t.Purpose = rec.Purpose
	t.OriginType = rec.OriginType
	t.TripConfidence = rec.TripConfidence
	t.SourceDocuments = rec.SourceDocuments
	t.VersionHistory = rec.VersionHistory
	t.MergeCandidates = rec.MergeCandidates
	t.CreatedAt = rec.CreatedAt
	t.UpdatedAt = rec.UpdatedAt

	t.Extensions = nil
	for key, raw := range flat {
		if IsReservedTripKey(key) {
			continue
		}
		var ext Extension
		if err := json.Unmarshal(raw, &ext); err != nil {
			return fmt.Errorf("unmarshaling extension %q: %w", key, err)
		}
		if t.Extensions == nil {
			t.Extensions = make(map[string]Extension)
		}
		t.Extensions[key] = ext
	}
	return nil
}
