package docstore

import (
	"encoding/json"
	"reflect"

	"github.com/redhatci/kaijs/internal/types"
)

// mkUpdateSet implements spec §4.7.1: the minimal $set that makes current
// semantically equal to computed, under three invariants — arrays are
// always replaced wholesale (even when element-wise equal), scalars are
// set only when they differ, and empty/null new values never overwrite.
func mkUpdateSet(current, computed *types.ArtifactDocument) (map[string]any, error) {
	curMap, err := toMap(current)
	if err != nil {
		return nil, err
	}
	newMap, err := toMap(computed)
	if err != nil {
		return nil, err
	}
	return diffMaps(curMap, newMap), nil
}

// diffMaps is mkUpdateSet's generic core, operating directly on decoded
// JSON-shaped maps so it can be exercised against the literal S5 scenario
// without going through an ArtifactDocument.
func diffMaps(current, computed map[string]any) map[string]any {
	pathsNew := make(map[string]any)
	flattenPaths("", computed, pathsNew)
	pathsCur := make(map[string]any)
	flattenPaths("", current, pathsCur)

	updateSet := make(map[string]any)
	for path, newVal := range pathsNew {
		if isEmptyValue(newVal) {
			continue
		}
		if arr, ok := newVal.([]any); ok {
			updateSet[path] = arr
			continue
		}
		if curVal, existed := pathsCur[path]; existed && reflect.DeepEqual(newVal, curVal) {
			continue
		}
		updateSet[path] = newVal
	}
	return updateSet
}

// toMap round-trips doc through JSON so the diff operates on a generic
// map[string]any shape, matching the "dynamic any payloads" design note.
func toMap(doc *types.ArtifactDocument) (map[string]any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// flattenPaths enumerates dotted paths of v into out, stopping descent at
// arrays (opaque leaves) and empty objects, per spec §4.7.1 step 1.
func flattenPaths(prefix string, v any, out map[string]any) {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		if prefix != "" {
			out[prefix] = v
		}
		return
	}
	for k, val := range obj {
		flattenPaths(joinPath(prefix, k), val, out)
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// isEmptyValue reports whether v is a "null or undefined" leaf value that
// must never overwrite an existing field, per spec §4.7.1 step 3.
func isEmptyValue(v any) bool {
	return v == nil
}
