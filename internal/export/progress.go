package export

import "log"

// ProgressReporter receives walk progress events. The engine owns all
// progress state; reporters only render it.
type ProgressReporter interface {
	PageDone(page, totalPages, count int)
	PageSkipped(page int, err error)
	Done(shape string, count int)
}

// LogReporter renders progress to the process log.
type LogReporter struct{}

func (LogReporter) PageDone(page, totalPages, count int) {
	log.Printf("📄 [EXPORT] Page %d/%d: %d memories", page, totalPages, count)
}

func (LogReporter) PageSkipped(page int, err error) {
	log.Printf("⚠️  [EXPORT] Page %d skipped after retries: %v", page, err)
}

func (LogReporter) Done(shape string, count int) {
	log.Printf("✅ [EXPORT] %s: %d memories collected", shape, count)
}
