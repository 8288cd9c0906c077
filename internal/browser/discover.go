package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"shapeexport/internal/models"
)

const shapeLinksJS = `(() => {
	const seen = new Set();
	const shapes = [];
	for (const link of document.querySelectorAll('a[href*="/dashboard/"]')) {
		const href = link.getAttribute('href') || '';
		const name = (link.innerText || '').trim();
		const id = href.split('/dashboard/')[1]?.split('/')[0]?.split('?')[0] || '';
		if (!id || !name || seen.has(id)) continue;
		seen.add(id);
		shapes.push({ id: id, name: name, url: href });
	}
	return shapes;
})()`

const memoriesTabJS = `(() => {
	const tabs = Array.from(document.querySelectorAll('a, button, [role="tab"]'));
	const tab = tabs.find(t => /\bmemor/i.test(t.textContent));
	if (!tab) return false;
	tab.click();
	return true;
})()`

// DiscoverShapes lists the user's shapes off the dashboard.
func (s *Session) DiscoverShapes(ctx context.Context, dashboardURL, baseURL string) ([]models.ShapeTarget, error) {
	if err := s.Navigate(ctx, dashboardURL); err != nil {
		return nil, fmt.Errorf("failed to open dashboard: %w", err)
	}

	var shapes []models.ShapeTarget
	if err := s.Eval(ctx, shapeLinksJS, &shapes); err != nil {
		return nil, fmt.Errorf("failed to list shapes: %w", err)
	}
	for i := range shapes {
		if strings.HasPrefix(shapes[i].URL, "/") {
			shapes[i].URL = baseURL + shapes[i].URL
		}
	}

	s.logger.WithFields(logrus.Fields{
		"run_id": s.runID,
		"shapes": len(shapes),
	}).Info("dashboard scanned")
	return shapes, nil
}

// OpenMemories lands the view on a shape's memory listing, trying the known
// URL patterns first and a memories tab click as the last resort.
func (s *Session) OpenMemories(ctx context.Context, shapeURL string) error {
	patterns := []string{
		shapeURL + "/memories",
		shapeURL + "?tab=memories",
		shapeURL + "#memories",
		shapeURL + "/memory",
	}

	for _, url := range patterns {
		if err := s.Navigate(ctx, url); err != nil {
			continue
		}
		if s.LooksLikeMemoryListing(ctx) {
			return nil
		}
		var text string
		if err := s.Eval(ctx, `document.body ? document.body.innerText : ''`, &text); err == nil &&
			strings.Contains(strings.ToLower(text), "memor") {
			var clicked bool
			if err := s.Eval(ctx, memoriesTabJS, &clicked); err == nil && clicked {
				s.wait(ctx)
			}
			if s.LooksLikeMemoryListing(ctx) {
				return nil
			}
		}
	}

	// Last resort: the shape page itself plus a tab click.
	if err := s.Navigate(ctx, shapeURL); err != nil {
		return fmt.Errorf("failed to open shape page: %w", err)
	}
	var clicked bool
	if err := s.Eval(ctx, memoriesTabJS, &clicked); err == nil && clicked {
		s.wait(ctx)
		if s.LooksLikeMemoryListing(ctx) {
			return nil
		}
	}
	return fmt.Errorf("no memory listing found under %s", shapeURL)
}
