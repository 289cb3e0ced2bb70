package types

import "time"

// SourceDocument is the reference the extraction layer hands over alongside a
// payload. Confidence scores are opaque metadata here; the core stores them
// and never branches on them.
type SourceDocument struct {
	DocumentID        string    `json:"document_id"`
	Type              string    `json:"type"`
	ConfidenceScore   float64   `json:"confidence_score"`
	ExtractedAt       time.Time `json:"extracted_at"`
	ContributedFields []string  `json:"contributed_fields"`
}

// ChangeEntry is a caller-supplied change record carried inside an extension
// payload. Providers use it to preserve prior values across wholesale
// replacement; the aggregate never invents or inspects these.
type ChangeEntry struct {
	ChangeType       string         `json:"change_type"`
	ChangedAt        time.Time      `json:"changed_at"`
	SourceDocumentID string         `json:"source_document_id"`
	PreviousValues   map[string]any `json:"previous_values,omitempty"`
	ChangeReason     string         `json:"change_reason,omitempty"`
	ConfidenceScore  *float64       `json:"confidence_score,omitempty"`
}
