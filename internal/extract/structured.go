package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shapeexport/internal/models"
)

// Card selectors observed on the memories listing, most specific first.
// The platform renames classes between deploys, so this is a cascade.
var cardSelectors = []string{
	`[class*="memory-card"]`,
	`[class*="memory-item"]`,
	`[class*="memory-entry"]`,
	`[data-memory]`,
	`[class*="memory-list"] > *`,
	`[class*="memoryList"] > *`,
}

var (
	contentSelectors = `[class*="content"], [class*="text"], [class*="body"], p`
	typeSelectors    = `[class*="type"], [class*="label"], [class*="badge"]`
	dateSelectors    = `[class*="date"], [class*="time"], time`
)

// structuredStrategy reads repeated card elements out of a rendered
// snapshot, matching type, content and date blocks by class.
type structuredStrategy struct{}

func (structuredStrategy) Name() string { return "structured" }

func (structuredStrategy) Extract(src Source) []models.MemoryRecord {
	if src.HTML == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src.HTML))
	if err != nil {
		return nil
	}

	for _, selector := range cardSelectors {
		cards := doc.Find(selector)
		if cards.Length() == 0 {
			continue
		}

		var records []models.MemoryRecord
		cards.Each(func(_ int, card *goquery.Selection) {
			content := strings.TrimSpace(card.Find(contentSelectors).First().Text())
			if content == "" {
				// card without a content block, e.g. a list header row
				return
			}
			label := card.Find(typeSelectors).First().Text()
			date := strings.TrimSpace(card.Find(dateSelectors).First().Text())
			records = append(records, models.MemoryRecord{
				Type:    models.NormalizeMemoryType(label),
				Content: content,
				Date:    date,
				ID:      cardID(card),
			})
		})
		if len(records) > 0 {
			return records
		}
	}
	return nil
}

func cardID(card *goquery.Selection) string {
	for _, attr := range []string{"data-memory-id", "data-id", "id"} {
		if v, ok := card.Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}
