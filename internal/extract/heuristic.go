package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shapeexport/internal/models"
)

const (
	// Containers longer than this are mis-matched ancestors (whole list
	// sections), not individual memory rows.
	maxContainerLen = 2000
	// Anything at or below this after scrubbing is leftover chrome, not
	// memory content.
	minContentLen = 5
)

var (
	typeMarkerRe = regexp.MustCompile(`(?i)\b(automatic|manual)\s+memory\b`)
	selectAllRe  = regexp.MustCompile(`(?i)select all\s*\(\d+\)`)
	pageOfRe     = regexp.MustCompile(`(?i)page\s+\d+\s+of\s+\d+`)
	dateRe       = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
)

// heuristicStrategy is the last-resort text scan for when the structured
// selectors stop matching after a platform redesign. Memory rows carry a
// selection checkbox and an "automatic memory" / "manual memory" label, so
// it climbs from each checkbox to the nearest labeled container.
type heuristicStrategy struct{}

func (heuristicStrategy) Name() string { return "heuristic" }

func (heuristicStrategy) Extract(src Source) []models.MemoryRecord {
	if src.HTML == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src.HTML))
	if err != nil {
		return nil
	}

	var records []models.MemoryRecord
	seen := make(map[string]struct{})

	doc.Find(`input[type="checkbox"]`).Each(func(_ int, checkbox *goquery.Selection) {
		for parent := checkbox.Parent(); parent.Length() > 0; parent = parent.Parent() {
			text := strings.TrimSpace(parent.Text())
			marker := typeMarkerRe.FindStringSubmatch(text)
			if marker == nil {
				continue
			}
			if len(text) > maxContainerLen {
				// climbed past the row into the surrounding list
				break
			}

			content, date := scrubRowText(text)
			if len(content) <= minContentLen {
				break
			}
			if _, dup := seen[content]; dup {
				break
			}
			seen[content] = struct{}{}
			records = append(records, models.MemoryRecord{
				Type:    models.NormalizeMemoryType(marker[1]),
				Content: content,
				Date:    date,
			})
			break
		}
	})
	return records
}

// scrubRowText strips the type marker, selection and pagination boilerplate
// and the display date out of a row's text, returning the remaining content
// and the date it found.
func scrubRowText(text string) (content, date string) {
	date = dateRe.FindString(text)

	content = typeMarkerRe.ReplaceAllString(text, " ")
	content = selectAllRe.ReplaceAllString(content, " ")
	content = pageOfRe.ReplaceAllString(content, " ")
	content = dateRe.ReplaceAllString(content, " ")
	content = strings.Join(strings.Fields(content), " ")
	return content, date
}
