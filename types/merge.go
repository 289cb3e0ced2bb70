package types

// Merge heuristic names as they appear in MatchReasons.
const (
	MatchReasonTravelerMatch   = "traveler_match"
	MatchReasonDateOverlap     = "date_overlap"
	MatchReasonSharedNamespace = "shared_namespace"
)

// MergeCandidate proposes another trip as a likely duplicate or related trip
// for the same traveler. It is derived metadata, replaced wholesale on each
// detection run.
type MergeCandidate struct {
	TripID          string   `json:"trip_id"`
	SimilarityScore float64  `json:"similarity_score"`
	MatchReasons    []string `json:"match_reasons"`
}
