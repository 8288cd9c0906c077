package extract

import (
	"shapeexport/internal/models"
)

// Source is one page's worth of raw material for extraction: a rendered
// DOM snapshot, an intercepted/fetched API payload, or both.
type Source struct {
	HTML    string
	Payload []byte
}

// Strategy extracts memory records from a page source. Implementations are
// pure transformations; they return nil when the source holds nothing they
// recognize.
type Strategy interface {
	Name() string
	Extract(src Source) []models.MemoryRecord
}

// Extractor runs strategies in rank order until one yields records.
// The API payload strategy ranks first because payloads are exact and
// order-stable; the structured DOM strategy covers the normal rendered
// listing; the text heuristic survives platform markup drift.
type Extractor struct {
	strategies []Strategy
}

// NewExtractor creates an extractor with the default strategy ranking.
func NewExtractor() *Extractor {
	return &Extractor{
		strategies: []Strategy{
			&apiStrategy{},
			&structuredStrategy{},
			&heuristicStrategy{},
		},
	}
}

// Extract returns the records produced by the first strategy that yields any.
func (e *Extractor) Extract(src Source) []models.MemoryRecord {
	for _, s := range e.strategies {
		if records := s.Extract(src); len(records) > 0 {
			return records
		}
	}
	return nil
}
