package trip

import (
	"sort"
	"strings"

	"github.com/tripforge/tripforge-backend/types"
)

// maxFlattenDepth bounds recursion into extension payloads. Provider payloads
// are shallow in practice; anything deeper is truncated rather than walked.
const maxFlattenDepth = 8

// FlattenFields walks the trip's core fields and every extension recursively,
// producing the flat observation set forwarded to the field registry. Output
// is sorted by path so registration order is reproducible.
func FlattenFields(t *types.Trip) []types.FieldObservation {
	observations := []types.FieldObservation{
		coreObservation("traveler.id", t.Traveler.ID),
		coreObservation("traveler.name", t.Traveler.Name),
		coreObservation("traveler.email", t.Traveler.Email),
		coreObservation("status", string(t.Status)),
		coreObservation("start_date", t.StartDate.Format("2006-01-02")),
		coreObservation("end_date", t.EndDate.Format("2006-01-02")),
	}
	if t.Traveler.Phone != "" {
		observations = append(observations, coreObservation("traveler.phone", t.Traveler.Phone))
	}
	if t.Purpose != "" {
		observations = append(observations, coreObservation("purpose", t.Purpose))
	}

	for _, ns := range t.Namespaces() {
		observations = append(observations, flattenExtension(ns, t.Extensions[ns])...)
	}

	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Path < observations[j].Path
	})
	return observations
}

// flattenExtension produces one observation per leaf under the namespace key.
func flattenExtension(namespace string, ext types.Extension) []types.FieldObservation {
	var out []types.FieldObservation
	flattenValue(namespace, map[string]any(ext), 0, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func flattenValue(prefix string, value any, depth int, out *[]types.FieldObservation) {
	if depth > maxFlattenDepth {
		return
	}

	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			*out = append(*out, observation(prefix, v))
			return
		}
		for key, inner := range v {
			flattenValue(prefix+"."+key, inner, depth+1, out)
		}
	case types.Extension:
		flattenValue(prefix, map[string]any(v), depth, out)
	case []any:
		if len(v) == 0 {
			*out = append(*out, observation(prefix, v))
			return
		}
		// Array indices collapse to "[]"; the first element stands in for the
		// array's shape.
		flattenValue(prefix+"[]", v[0], depth+1, out)
	default:
		*out = append(*out, observation(prefix, v))
	}
}

func observation(path string, value any) types.FieldObservation {
	namespace := path
	if i := strings.IndexByte(path, '.'); i > 0 {
		namespace = path[:i]
	}
	return types.FieldObservation{Path: path, Value: value, SourceNamespace: namespace}
}

func coreObservation(path string, value any) types.FieldObservation {
	return observation(path, value)
}
