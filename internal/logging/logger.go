package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithShape returns a logger with shape context fields attached.
// Use this for all logging within one shape's export.
func WithShape(shapeID, shapeName string) *slog.Logger {
	return slog.With(
		"shape_id", shapeID,
		"shape", shapeName,
	)
}

// WithPage returns a logger scoped to a specific page within a walk.
func WithPage(logger *slog.Logger, page, totalPages int) *slog.Logger {
	return logger.With(
		"page", page,
		"total_pages", totalPages,
	)
}
