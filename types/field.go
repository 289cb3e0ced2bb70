package types

import "time"

// FieldDataType is the closed set of semantic types the classifier can infer.
// Keeping this a closed enum lets downstream consumers switch exhaustively
// despite the open-ended shapes of the inputs.
type FieldDataType string

const (
	// FieldTypeText is the most general classification. Type conflicts
	// degrade toward it.
	FieldTypeText             FieldDataType = "text"
	FieldTypeNumber           FieldDataType = "number"
	FieldTypeBoolean          FieldDataType = "boolean"
	FieldTypeArray            FieldDataType = "array"
	FieldTypeObject           FieldDataType = "object"
	FieldTypeDate             FieldDataType = "date"
	FieldTypeDateTime         FieldDataType = "datetime"
	FieldTypeEmail            FieldDataType = "email"
	FieldTypePhone            FieldDataType = "phone"
	FieldTypeCurrency         FieldDataType = "currency"
	FieldTypeAirportCode      FieldDataType = "airport_code"
	FieldTypeConfirmationCode FieldDataType = "confirmation_code"
)

func (ft FieldDataType) String() string {
	return string(ft)
}

func (ft FieldDataType) IsValid() bool {
	switch ft {
	case FieldTypeText, FieldTypeNumber, FieldTypeBoolean, FieldTypeArray,
		FieldTypeObject, FieldTypeDate, FieldTypeDateTime, FieldTypeEmail,
		FieldTypePhone, FieldTypeCurrency, FieldTypeAirportCode,
		FieldTypeConfirmationCode:
		return true
	default:
		return false
	}
}

// FieldStability classifies how consistently a field path appears across the
// trip corpus over time.
type FieldStability string

const (
	StabilityEmerging FieldStability = "emerging"
	StabilityStable   FieldStability = "stable"
	StabilityVolatile FieldStability = "volatile"
)

// FieldExample is one sample kept in an entry's bounded example ring. Used
// for debugging and UX, not for correctness.
type FieldExample struct {
	Value            string    `json:"value"`
	SourceDocumentID string    `json:"source_document_id"`
	ExtractedAt      time.Time `json:"extracted_at"`
}

// FieldEntry is the registry record for one observed field path. Entries are
// created on first observation and never deleted.
type FieldEntry struct {
	FieldID              string         `json:"field_id"`
	DataType             FieldDataType  `json:"data_type"`
	SourceNamespace      string         `json:"source_namespace"`
	OccurrenceCount      int64          `json:"occurrence_count"`
	OccurrencePercentage float64        `json:"occurrence_percentage"`
	Stability            FieldStability `json:"stability"`
	Examples             []FieldExample `json:"examples,omitempty"`
	FirstSeen            time.Time      `json:"first_seen"`
	LastSeen             time.Time      `json:"last_seen"`
}

// FieldObservation is one (path, value, namespace) triple produced by
// flattening a trip, forwarded to the registry.
type FieldObservation struct {
	Path            string
	Value           any
	SourceNamespace string
}

// SchemaSummary is the read-only projection the registry emits for schema
// consumers such as dynamic table views.
type SchemaSummary struct {
	TotalFields     int                   `json:"total_fields"`
	TotalTrips      int64                 `json:"total_trips"`
	NamespaceCounts map[string]int        `json:"namespace_counts"`
	StableFields    []string              `json:"stable_fields"`
	FieldsByType    map[FieldDataType]int `json:"fields_by_type"`
}
