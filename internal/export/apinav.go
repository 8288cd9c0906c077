package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"

	"shapeexport/internal/extract"
	"shapeexport/internal/models"
)

// Metadata keys the platform has used for the page count and record list.
var (
	totalPagesKeys = []string{"total_pages", "totalPages", "pages", "pagination.total_pages"}
	recordListKeys = []string{"items", "memories", "data", "results"}
)

// APINavigator walks the listing through a direct endpoint. Preferred over
// the UI path whenever an endpoint is known: responses are exact and
// order-stable, and carry record ids.
type APINavigator struct {
	client *APIClient
	// endpoint is a URL template with one %d page placeholder.
	endpoint string
	cursor   models.PageCursor
	// served records that the endpoint has answered with a listing page
	// at least once; a non-JSON response after that is a login page, not
	// a drifted endpoint.
	served bool
	// pages caches fetched payloads for the run so retries and the
	// empty-page re-read do not refetch.
	pages *cache.Cache
}

// NewAPINavigator creates a navigator over a known listing endpoint.
func NewAPINavigator(client *APIClient, endpoint string) *APINavigator {
	return &APINavigator{
		client:   client,
		endpoint: endpoint,
		cursor:   models.PageCursor{CurrentPage: 1, TotalPages: 1},
		pages:    cache.New(30*time.Minute, 10*time.Minute),
	}
}

// PageInfo reports the cursor as of the last fetched page.
func (n *APINavigator) PageInfo(ctx context.Context) (models.PageCursor, error) {
	return n.cursor, nil
}

// Goto fetches the requested page unless it is already cached. Success is a
// well-formed page response; anything else is a navigation failure.
func (n *APINavigator) Goto(ctx context.Context, page int) error {
	key := strconv.Itoa(page)
	if _, found := n.pages.Get(key); found {
		n.cursor.CurrentPage = page
		return nil
	}

	payload, err := n.client.GetJSON(ctx, fmt.Sprintf(n.endpoint, page))
	switch {
	case errors.Is(err, ErrSessionInvalid):
		return err
	case err != nil && n.served && errors.Is(err, errNotJSON):
		return fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	if !gjson.ValidBytes(payload) {
		if n.served {
			return fmt.Errorf("%w: page %d response is not JSON", ErrSessionInvalid, page)
		}
		return fmt.Errorf("%w: page %d response is not JSON", ErrNavigationFailed, page)
	}

	root := gjson.ParseBytes(payload)
	if !pageShapeOK(root) {
		return fmt.Errorf("%w: page %d response has no record list", ErrNavigationFailed, page)
	}

	n.served = true
	n.pages.Set(key, payload, cache.DefaultExpiration)
	n.cursor.CurrentPage = page
	if total := totalFromPayload(root); total > 0 {
		n.cursor.TotalPages = total
	} else if page > n.cursor.TotalPages {
		n.cursor.TotalPages = page
	}
	return nil
}

// Source returns the cached payload for the current page.
func (n *APINavigator) Source(ctx context.Context) (extract.Source, error) {
	payload, found := n.pages.Get(strconv.Itoa(n.cursor.CurrentPage))
	if !found {
		return extract.Source{}, fmt.Errorf("%w: page %d was never fetched", ErrNavigationFailed, n.cursor.CurrentPage)
	}
	return extract.Source{Payload: payload.([]byte)}, nil
}

func pageShapeOK(root gjson.Result) bool {
	if root.IsArray() {
		return true
	}
	for _, key := range recordListKeys {
		if root.Get(key).IsArray() {
			return true
		}
	}
	return false
}

func totalFromPayload(root gjson.Result) int {
	for _, key := range totalPagesKeys {
		if v := root.Get(key); v.Exists() && v.Int() > 0 {
			return int(v.Int())
		}
	}
	return 0
}
