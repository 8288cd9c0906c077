package models

import (
	"strings"
	"time"
)

// Memory type categories as shown on the platform dashboard
const (
	MemoryTypeAutomatic = "automatic"
	MemoryTypeManual    = "manual"
	MemoryTypeUnknown   = "unknown"
)

// MemoryRecord is one extracted long-term memory entry.
// Content is the dedup key and is never empty or whitespace-only;
// extractors discard such entries before constructing a record.
type MemoryRecord struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Date    string `json:"date"`
	ID      string `json:"id,omitempty"` // platform identifier, only present on API-sourced records
}

// NormalizeMemoryType maps a raw type label from the page or API to one of
// the known categories. Labels are lowercased and a trailing "memory" suffix
// is stripped ("Automatic Memory" -> "automatic"). Anything unrecognized,
// including a missing label, becomes "unknown".
func NormalizeMemoryType(label string) string {
	t := strings.ToLower(strings.TrimSpace(label))
	t = strings.TrimSpace(strings.TrimSuffix(t, "memory"))
	switch t {
	case MemoryTypeAutomatic, MemoryTypeManual:
		return t
	default:
		return MemoryTypeUnknown
	}
}

// PageCursor is the navigation state for one listing walk.
// CurrentPage is 1-based and never moves backward during a run.
// TotalPages may be revised mid-walk when the platform indicator changes.
type PageCursor struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
}

// ExportCheckpoint is the durable recovery state for one in-progress shape
// export. The JSON field names are the on-disk checkpoint file layout.
type ExportCheckpoint struct {
	ShapeName         string         `json:"shapeName"`
	LastCompletedPage int            `json:"lastCompletedPage"`
	RecordsSoFar      []MemoryRecord `json:"recordsSoFar"`
}

// ExportResult is the final artifact handed to the export writer.
type ExportResult struct {
	Shape      string         `json:"shape"`
	ExportedAt time.Time      `json:"exported_at"`
	Count      int            `json:"count"`
	Memories   []MemoryRecord `json:"memories"`
}

// ShapeTarget identifies one shape to export.
type ShapeTarget struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}
