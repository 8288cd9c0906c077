package export

import "shapeexport/internal/models"

// Dedupe removes exact duplicates from an accumulated record stream,
// keeping the first occurrence and its order. The key is the exact content
// string: platform pagination returns overlapping windows and no record
// identifier exists across all extraction strategies, so identical content
// with differing date or type still collapses to the first occurrence.
func Dedupe(records []models.MemoryRecord) []models.MemoryRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.MemoryRecord, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.Content]; dup {
			continue
		}
		seen[r.Content] = struct{}{}
		out = append(out, r)
	}
	return out
}
