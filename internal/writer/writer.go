package writer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"shapeexport/internal/checkpoint"
	"shapeexport/internal/models"
)

const separatorWidth = 60

// Writer persists final export artifacts: a structured JSON document and a
// parallel human-readable text document per shape.
type Writer struct {
	outputDir string
}

// New creates a writer rooted at outputDir, creating it if needed.
func New(outputDir string) (*Writer, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Writer{outputDir: outputDir}, nil
}

// Write persists both artifacts for a result and returns their paths.
func (w *Writer) Write(result *models.ExportResult) (jsonPath, txtPath string, err error) {
	stem := fmt.Sprintf("%s_%s",
		checkpoint.SafeName(result.Shape),
		result.ExportedAt.Format("20060102_150405"))

	jsonPath = filepath.Join(w.outputDir, stem+".json")
	txtPath = filepath.Join(w.outputDir, stem+".txt")

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write JSON artifact: %w", err)
	}

	if err := os.WriteFile(txtPath, []byte(FormatText(result)), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write TXT artifact: %w", err)
	}

	slog.Info("export written",
		"shape", result.Shape,
		"count", result.Count,
		"json", jsonPath,
		"txt", txtPath)
	return jsonPath, txtPath, nil
}

// FormatText renders the human-readable document: a summary header, a
// fixed-width separator, then one block per memory.
func FormatText(result *models.ExportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Memories for: %s\n", result.Shape)
	fmt.Fprintf(&b, "Exported: %s\n", result.ExportedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Total: %d\n", result.Count)
	b.WriteString(strings.Repeat("=", separatorWidth) + "\n\n")

	for i, m := range result.Memories {
		header := fmt.Sprintf("--- Memory #%d [%s]", i+1, strings.ToUpper(m.Type))
		if m.Date != "" {
			header += " " + m.Date
		}
		b.WriteString(header + " ---\n")
		b.WriteString(m.Content + "\n\n")
	}
	return b.String()
}

// WriteDebug persists an HTML snapshot of an unrecognized view under the
// diagnostics directory and returns its path.
func (w *Writer) WriteDebug(shapeName, html string) (string, error) {
	dir := filepath.Join(w.outputDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create debug directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.html",
		checkpoint.SafeName(shapeName), uuid.New().String()[:8]))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("failed to write debug snapshot: %w", err)
	}
	return path, nil
}
