// Package merge scores likely duplicate or related trips for the same
// traveler so derived trips can be reconciled with canonical ones.
package merge

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/tripforge/tripforge-backend/config"
	"github.com/tripforge/tripforge-backend/types"
)

var (
	flightNumberRe = regexp.MustCompile(`^[A-Z]{2}\s?\d{1,4}$`)
	airportCodeRe  = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Detector computes merge candidates from fixed-weight similarity heuristics.
// It holds no mutable state; a single Detector may be used concurrently for
// different travelers.
type Detector struct {
	cfg config.MergeConfig
}

func NewDetector(cfg config.MergeConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Detect scores every trip in pool against target and returns the top-K
// candidates sorted by descending similarity, ties broken by trip id
// ascending. Pool trips not owned by the target's traveler are skipped. The
// output is deterministic for a fixed input set and fixed weights.
func (d *Detector) Detect(target *types.Trip, pool []*types.Trip) []types.MergeCandidate {
	candidates := make([]types.MergeCandidate, 0, len(pool))

	for _, other := range pool {
		if other.ID == target.ID || other.Traveler.ID != target.Traveler.ID {
			continue
		}

		dateScore := d.dateProximityScore(target, other)
		nsScore := namespaceScore(target, other)

		dateFired := dateScore >= d.cfg.DateThreshold
		nsFired := nsScore >= d.cfg.NamespaceThreshold && nsScore > 0

		// Traveler identity always matches by construction; it contributes a
		// constant baseline, never a discriminating signal. A candidate needs
		// at least one discriminating heuristic to fire.
		if !dateFired && !nsFired {
			continue
		}

		score := d.cfg.TravelerWeight
		reasons := []string{types.MatchReasonTravelerMatch}
		if dateFired {
			reasons = append(reasons, types.MatchReasonDateOverlap)
		}
		if nsFired {
			reasons = append(reasons, types.MatchReasonSharedNamespace)
		}
		score += d.cfg.DateWeight * dateScore
		score += d.cfg.NamespaceWeight * nsScore
		score = math.Min(math.Max(score, 0), 1)

		candidates = append(candidates, types.MergeCandidate{
			TripID:          other.ID,
			SimilarityScore: score,
			MatchReasons:    reasons,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SimilarityScore != candidates[j].SimilarityScore {
			return candidates[i].SimilarityScore > candidates[j].SimilarityScore
		}
		return candidates[i].TripID < candidates[j].TripID
	})

	if len(candidates) > d.cfg.TopK {
		candidates = candidates[:d.cfg.TopK]
	}
	return candidates
}

// dateProximityScore returns 1.0 for overlapping date ranges and decays
// linearly with the gap in days up to the configured window; beyond the
// window it returns 0.
func (d *Detector) dateProximityScore(a, b *types.Trip) float64 {
	if !a.StartDate.After(b.EndDate) && !b.StartDate.After(a.EndDate) {
		return 1.0
	}

	var gap float64
	if a.StartDate.After(b.EndDate) {
		gap = a.StartDate.Sub(b.EndDate).Hours() / 24
	} else {
		gap = b.StartDate.Sub(a.EndDate).Hours() / 24
	}

	window := float64(d.cfg.DayWindow)
	if window <= 0 || gap > window {
		return 0
	}
	return 1 - gap/window
}

// namespaceScore combines Jaccard similarity of the extension namespace sets
// with an overlap check on flight-number/airport tokens inside air
// namespaces: a shared flight number or airport code is strong evidence the
// trips describe the same journey.
func namespaceScore(a, b *types.Trip) float64 {
	nsA, nsB := a.Namespaces(), b.Namespaces()
	if len(nsA) == 0 || len(nsB) == 0 {
		return 0
	}

	setA := map[string]bool{}
	for _, ns := range nsA {
		setA[ns] = true
	}
	shared, union := 0, len(nsA)
	for _, ns := range nsB {
		if setA[ns] {
			shared++
		} else {
			union++
		}
	}
	jaccard := float64(shared) / float64(union)

	if airTokensOverlap(a, b) {
		return 1.0
	}
	return jaccard
}

func airTokensOverlap(a, b *types.Trip) bool {
	tokensA := airTokens(a)
	if len(tokensA) == 0 {
		return false
	}
	for token := range airTokens(b) {
		if tokensA[token] {
			return true
		}
	}
	return false
}

// airTokens collects normalized flight numbers and airport codes from every
// air.* extension of the trip.
func airTokens(t *types.Trip) map[string]bool {
	tokens := map[string]bool{}
	for ns, ext := range t.Extensions {
		if ns != "air" && !strings.HasPrefix(ns, "air.") {
			continue
		}
		collectAirTokens(map[string]any(ext), tokens)
	}
	return tokens
}

func collectAirTokens(value any, tokens map[string]bool) {
	switch v := value.(type) {
	case string:
		s := strings.ToUpper(strings.TrimSpace(v))
		if flightNumberRe.MatchString(s) {
			tokens[strings.ReplaceAll(s, " ", "")] = true
		} else if airportCodeRe.MatchString(s) {
			tokens[s] = true
		}
	case map[string]any:
		for _, inner := range v {
			collectAirTokens(inner, tokens)
		}
	case types.Extension:
		for _, inner := range v {
			collectAirTokens(inner, tokens)
		}
	case []any:
		for _, inner := range v {
			collectAirTokens(inner, tokens)
		}
	}
}
