package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"shapeexport/internal/extract"
	"shapeexport/internal/logging"
	"shapeexport/internal/models"
)

// CheckpointStore persists export state between pages so a multi-hundred
// page run survives a crash. Load returns (nil, nil) when no checkpoint
// exists for the shape.
type CheckpointStore interface {
	Load(shapeName string) (*models.ExportCheckpoint, error)
	Save(checkpoint *models.ExportCheckpoint) error
	Delete(shapeName string) error
}

// Config bounds the engine's retry and checkpoint behavior.
type Config struct {
	CheckpointInterval int           // pages between snapshots, default 50
	MaxRetries         int           // attempts per page, default 3
	RetryBackoff       time.Duration // base backoff, grows per attempt, default 2s
	PageLimit          int           // stop after N pages, 0 = walk everything
}

func (c Config) withDefaults() Config {
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 50
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	return c
}

// Engine drives one shape's export: position on a page, extract, accumulate,
// checkpoint, repeat. It exclusively owns the accumulator and cursor for the
// duration of a run; the store only ever sees snapshots.
type Engine struct {
	nav       Navigator
	extractor *extract.Extractor
	store     CheckpointStore
	reporter  ProgressReporter
	cfg       Config
}

// NewEngine creates an export engine. A nil reporter logs progress to the
// process log.
func NewEngine(nav Navigator, extractor *extract.Extractor, store CheckpointStore, reporter ProgressReporter, cfg Config) *Engine {
	if reporter == nil {
		reporter = LogReporter{}
	}
	return &Engine{
		nav:       nav,
		extractor: extractor,
		store:     store,
		reporter:  reporter,
		cfg:       cfg.withDefaults(),
	}
}

// Export walks the full listing for one shape and returns the deduplicated
// result. A prior checkpoint resumes the walk; the checkpoint is deleted
// only on full completion. Partial results are preferred over total loss:
// pages that keep failing are skipped, and a session loss aborts with the
// accumulator preserved in the checkpoint.
func (e *Engine) Export(ctx context.Context, shapeName string) (*models.ExportResult, error) {
	accumulator, start := e.restore(shapeName)

	cursor := models.PageCursor{CurrentPage: start, TotalPages: start}
	if info, err := e.nav.PageInfo(ctx); err == nil && info.TotalPages >= start {
		cursor.TotalPages = info.TotalPages
	}

	for page := start; page <= cursor.TotalPages; page++ {
		if err := ctx.Err(); err != nil {
			e.snapshot(shapeName, page-1, accumulator)
			return nil, err
		}
		if e.cfg.PageLimit > 0 && page > e.cfg.PageLimit {
			log.Printf("🛑 [EXPORT] Page limit %d reached for %s, leaving checkpoint for continuation", e.cfg.PageLimit, shapeName)
			e.snapshot(shapeName, page-1, accumulator)
			return e.finish(shapeName, accumulator, false)
		}

		records, err := e.collectPage(ctx, page, cursor.TotalPages)
		switch {
		case errors.Is(err, ErrSessionInvalid):
			e.snapshot(shapeName, page-1, accumulator)
			return nil, fmt.Errorf("aborted on page %d (re-login and re-run to resume): %w", page, ErrSessionInvalid)
		case err != nil:
			e.reporter.PageSkipped(page, err)
		default:
			accumulator = append(accumulator, records...)
			e.reporter.PageDone(page, cursor.TotalPages, len(records))
			logging.WithPage(slog.Default(), page, cursor.TotalPages).
				Debug("page accumulated", "records", len(records), "total", len(accumulator))
		}

		cursor.CurrentPage = page
		// The platform revises its page count mid-walk; re-read after
		// every page. The cursor itself never moves backward.
		if info, ierr := e.nav.PageInfo(ctx); ierr == nil && info.TotalPages >= cursor.CurrentPage {
			cursor.TotalPages = info.TotalPages
		}

		if page%e.cfg.CheckpointInterval == 0 {
			e.snapshot(shapeName, page, accumulator)
		}
	}

	return e.finish(shapeName, accumulator, true)
}

// restore seeds the accumulator from a prior checkpoint. A corrupt
// checkpoint restarts the shape from page 1 rather than failing the run.
func (e *Engine) restore(shapeName string) ([]models.MemoryRecord, int) {
	checkpoint, err := e.store.Load(shapeName)
	if err != nil {
		log.Printf("⚠️  [EXPORT] Checkpoint for %s unreadable, restarting from page 1: %v", shapeName, err)
		return nil, 1
	}
	if checkpoint == nil {
		return nil, 1
	}
	log.Printf("🔁 [EXPORT] Resuming %s from page %d (%d records so far)",
		shapeName, checkpoint.LastCompletedPage+1, len(checkpoint.RecordsSoFar))
	return checkpoint.RecordsSoFar, checkpoint.LastCompletedPage + 1
}

// collectPage positions on a page and extracts it, retrying navigation with
// incremental backoff. A page inside the known total that extracts to zero
// records gets one extra read before being accepted as genuinely empty.
func (e *Engine) collectPage(ctx context.Context, page, totalPages int) ([]models.MemoryRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			e.backoff(ctx, attempt-1)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := e.nav.Goto(ctx, page); err != nil {
			if errors.Is(err, ErrSessionInvalid) {
				return nil, err
			}
			lastErr = err
			continue
		}
		source, err := e.nav.Source(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		records := e.extractor.Extract(source)
		if len(records) == 0 && page < totalPages {
			// Expected non-empty by position; re-read once before
			// accepting. Only the trailing page may legitimately be
			// short or empty.
			if source, err = e.nav.Source(ctx); err == nil {
				records = e.extractor.Extract(source)
			}
		}
		return records, nil
	}
	return nil, fmt.Errorf("page %d failed after %d attempts: %w", page, e.cfg.MaxRetries, lastErr)
}

func (e *Engine) backoff(ctx context.Context, step int) {
	timer := time.NewTimer(time.Duration(step) * e.cfg.RetryBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// snapshot overwrites the shape's checkpoint with a copy of the current
// state. Checkpoint failures are logged, not fatal: the walk itself is
// still making progress.
func (e *Engine) snapshot(shapeName string, lastCompletedPage int, accumulator []models.MemoryRecord) {
	if lastCompletedPage < 1 {
		return
	}
	records := make([]models.MemoryRecord, len(accumulator))
	copy(records, accumulator)
	err := e.store.Save(&models.ExportCheckpoint{
		ShapeName:         shapeName,
		LastCompletedPage: lastCompletedPage,
		RecordsSoFar:      records,
	})
	if err != nil {
		log.Printf("⚠️  [EXPORT] Failed to checkpoint %s at page %d: %v", shapeName, lastCompletedPage, err)
	}
}

func (e *Engine) finish(shapeName string, accumulator []models.MemoryRecord, complete bool) (*models.ExportResult, error) {
	memories := Dedupe(accumulator)
	if complete {
		if err := e.store.Delete(shapeName); err != nil {
			log.Printf("⚠️  [EXPORT] Failed to remove checkpoint for %s: %v", shapeName, err)
		}
	}
	e.reporter.Done(shapeName, len(memories))
	return &models.ExportResult{
		Shape:      shapeName,
		ExportedAt: time.Now(),
		Count:      len(memories),
		Memories:   memories,
	}, nil
}
