package tasks

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
)

// Canonicalize returns a canonical JSON representation of a document
// with stable key ordering for consistent hashing. The serialization is
// built from parsed fields only, so incidental whitespace and ignored
// prose in the source text never change the result.
func Canonicalize(doc *Document) ([]byte, error) {
	phases := make([]map[string]interface{}, len(doc.Phases))
	for i, phase := range doc.Phases {
		groups := make([]map[string]interface{}, len(phase.Groups))
		for j, group := range phase.Groups {
			groups[j] = map[string]interface{}{
				"title":      group.Title,
				"user_story": group.UserStory,
				"tasks":      canonicalTasks(group.Tasks),
			}
		}

		phases[i] = map[string]interface{}{
			"number":           phase.Number,
			"title":            phase.Title,
			"purpose":          phase.Purpose,
			"goal":             phase.Goal,
			"checkpoint":       phase.Checkpoint,
			"independent_test": phase.IndependentTest,
			"priority":         phase.Priority,
			"user_story":       phase.UserStory,
			"primary":          phase.Primary,
			"groups":           groups,
			"direct_tasks":     canonicalTasks(phase.DirectTasks),
		}
	}

	data := map[string]interface{}{
		"title":  doc.Title,
		"phases": phases,
	}

	return json.Marshal(sortKeys(data))
}

func canonicalTasks(ts []Task) []map[string]interface{} {
	out := make([]map[string]interface{}, len(ts))
	for i, t := range ts {
		out[i] = map[string]interface{}{
			"id":          t.ID,
			"description": t.Description,
			"completed":   t.Completed,
			"parallel":    t.Parallel,
			"user_story":  t.UserStory,
			"file_paths":  t.FilePaths,
		}
	}
	return out
}

// Hash computes the blake3 hash of a canonicalized document.
// Equal hashes across runs are the short-circuit signal for an
// already-synced document.
func Hash(doc *Document) (string, error) {
	canonical, err := Canonicalize(doc)
	if err != nil {
		return "", fmt.Errorf("canonicalize document: %w", err)
	}

	hasher := blake3.New()
	if _, err := hasher.Write(canonical); err != nil {
		return "", fmt.Errorf("hash document: %w", err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// sortKeys recursively sorts map keys for stable JSON output
func sortKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sorted := make(map[string]interface{}, len(val))
		for _, k := range keys {
			sorted[k] = sortKeys(val[k])
		}
		return sorted

	case []interface{}:
		for i, item := range val {
			val[i] = sortKeys(item)
		}
		return val

	case []map[string]interface{}:
		for i, item := range val {
			val[i] = sortKeys(item).(map[string]interface{})
		}
		return val

	default:
		return v
	}
}
