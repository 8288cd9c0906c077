package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"shapeexport/internal/models"
)

// Keys the platform has used for the memory list inside an API payload.
var payloadListKeys = []string{"items", "memories", "data", "results"}

// apiStrategy maps a JSON listing payload to records. Preferred over DOM
// scraping whenever a payload is available: it is exact, order-stable, and
// carries the platform record id.
type apiStrategy struct{}

func (apiStrategy) Name() string { return "api" }

func (apiStrategy) Extract(src Source) []models.MemoryRecord {
	if len(src.Payload) == 0 || !gjson.ValidBytes(src.Payload) {
		return nil
	}

	root := gjson.ParseBytes(src.Payload)
	items := root
	if !root.IsArray() {
		items = gjson.Result{}
		for _, key := range payloadListKeys {
			if v := root.Get(key); v.IsArray() {
				items = v
				break
			}
		}
		if !items.IsArray() {
			return nil
		}
	}

	var records []models.MemoryRecord
	items.ForEach(func(_, item gjson.Result) bool {
		content := strings.TrimSpace(firstString(item, "result", "content", "text"))
		if content == "" {
			return true
		}
		records = append(records, models.MemoryRecord{
			Type:    models.NormalizeMemoryType(firstString(item, "summary_type", "type")),
			Content: content,
			Date:    payloadDate(item),
			ID:      item.Get("id").String(),
		})
		return true
	})
	return records
}

func firstString(item gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := item.Get(key); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// payloadDate renders the item's timestamp the way the dashboard shows it.
// created_at is unix seconds on the wire; date is already display-formatted.
func payloadDate(item gjson.Result) string {
	if v := item.Get("created_at"); v.Exists() {
		if v.Type == gjson.Number {
			return time.Unix(int64(v.Float()), 0).Format("1/2/2006")
		}
		if s := v.String(); s != "" {
			if secs, err := strconv.ParseFloat(s, 64); err == nil {
				return time.Unix(int64(secs), 0).Format("1/2/2006")
			}
			return s
		}
	}
	return item.Get("date").String()
}
