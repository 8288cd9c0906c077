package export

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"shapeexport/internal/extract"
	"shapeexport/internal/models"
)

// Session is the authenticated browsing collaborator. It owns the browser;
// the navigator only asks it to render, report, and click.
type Session interface {
	// Navigate renders the given URL in the session's view.
	Navigate(ctx context.Context, url string) error
	// HTML returns a snapshot of the current view.
	HTML(ctx context.Context) (string, error)
	// Eval runs a script in the current view and decodes its result.
	Eval(ctx context.Context, js string, out any) error
	// LooksLikeMemoryListing reports whether the current view resembles a
	// memory listing (heading plus pagination, select-all, or add control).
	LooksLikeMemoryListing(ctx context.Context) bool
	// Captured drains API payloads intercepted since the last call,
	// oldest first.
	Captured() [][]byte
}

// Navigator positions the listing on a requested page and hands back that
// page's extraction source.
type Navigator interface {
	// PageInfo reports the current pagination indicator, {1,1} if absent.
	PageInfo(ctx context.Context) (models.PageCursor, error)
	// Goto makes the requested 1-based page the current page.
	Goto(ctx context.Context, page int) error
	// Source returns the extraction source for the current page.
	Source(ctx context.Context) (extract.Source, error)
}

var pageIndicatorRe = regexp.MustCompile(`(?i)page\s+(\d+)\s+of\s+(\d+)`)

// nextControlJS locates and clicks the listing's next-page control.
// Semantic matches (aria-label/class containing next, chevron or arrow
// glyph labels) win; the last control nested in the "Page X of Y" indicator
// is the fallback. Only visible, enabled controls are eligible.
const nextControlJS = `(() => {
	const glyphs = ['→', '›', '»', '>'];
	const visible = el => { const r = el.getBoundingClientRect(); return r.width > 0 && r.height > 0; };
	const enabled = el => !el.disabled && el.getAttribute('aria-disabled') !== 'true';
	const controls = Array.from(document.querySelectorAll('button, a, [role="button"]'))
		.filter(el => visible(el) && enabled(el));
	let next = controls.find(el => {
		const aria = (el.getAttribute('aria-label') || '').toLowerCase();
		const cls = ('' + el.className).toLowerCase();
		return aria.includes('next') || cls.includes('next') ||
			cls.includes('chevron-right') || cls.includes('arrow-right');
	});
	if (!next) next = controls.find(el => glyphs.includes(el.textContent.trim()));
	if (!next) {
		const holders = Array.from(document.querySelectorAll('div, nav, span'))
			.filter(el => /page\s+\d+\s+of\s+\d+/i.test(el.textContent) && el.querySelector('button, a'));
		const holder = holders[holders.length - 1];
		if (holder) {
			const nested = holder.querySelectorAll('button, a');
			next = nested[nested.length - 1];
		}
	}
	if (!next) return false;
	next.click();
	return true;
})()`

// UINavigator drives pagination through the rendered view. It is the
// resilient fallback when no direct listing endpoint is known.
type UINavigator struct {
	session Session
	settle  time.Duration
	// jumpURL builds a direct URL for a page, used to recover when
	// click-driven advancing stalls. Optional.
	jumpURL func(page int) string
}

// UIOptions configures a UINavigator.
type UIOptions struct {
	SettleDelay time.Duration
	JumpURL     func(page int) string
}

// NewUINavigator creates a navigator over an authenticated session.
func NewUINavigator(session Session, opts UIOptions) *UINavigator {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2500 * time.Millisecond
	}
	return &UINavigator{
		session: session,
		settle:  opts.SettleDelay,
		jumpURL: opts.JumpURL,
	}
}

// PageInfo reads the listing's "Page X of Y" indicator out of the current
// snapshot. A listing short enough to have no indicator is a single page.
func (n *UINavigator) PageInfo(ctx context.Context) (models.PageCursor, error) {
	html, err := n.session.HTML(ctx)
	if err != nil {
		return models.PageCursor{}, fmt.Errorf("failed to snapshot view: %w", err)
	}
	return parsePageIndicator(html), nil
}

func parsePageIndicator(html string) models.PageCursor {
	m := pageIndicatorRe.FindStringSubmatch(html)
	if m == nil {
		return models.PageCursor{CurrentPage: 1, TotalPages: 1}
	}
	current, _ := strconv.Atoi(m[1])
	total, _ := strconv.Atoi(m[2])
	if current < 1 {
		current = 1
	}
	if total < current {
		total = current
	}
	return models.PageCursor{CurrentPage: current, TotalPages: total}
}

// Goto advances the view until the indicator shows the requested page.
// The cursor never moves backward within a run, so a request behind the
// current page is a navigation failure.
func (n *UINavigator) Goto(ctx context.Context, page int) error {
	info, err := n.PageInfo(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	current := info.CurrentPage
	if current == page {
		return nil
	}
	if current > page {
		return fmt.Errorf("%w: cannot move back from page %d to %d", ErrNavigationFailed, current, page)
	}

	// Distant targets (resume, recovery after a skipped page) go straight
	// to the page URL when one can be built.
	if n.jumpURL != nil && page-current > 1 {
		if err := n.jump(ctx, page); err == nil {
			return nil
		}
	}

	for current < page {
		if err := n.clickNext(ctx); err != nil {
			return err
		}
		info, err := n.PageInfo(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
		}
		if info.CurrentPage <= current {
			if !n.session.LooksLikeMemoryListing(ctx) {
				return ErrSessionInvalid
			}
			if n.jumpURL != nil {
				if err := n.jump(ctx, page); err == nil {
					return nil
				}
			}
			return fmt.Errorf("%w: page indicator stuck at %d", ErrNavigationFailed, current)
		}
		current = info.CurrentPage
	}
	return nil
}

func (n *UINavigator) jump(ctx context.Context, page int) error {
	n.session.Captured() // drop payloads left over from the page being left
	if err := n.session.Navigate(ctx, n.jumpURL(page)); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	n.wait(ctx)
	info, err := n.PageInfo(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	if info.CurrentPage != page {
		return fmt.Errorf("%w: jump landed on page %d, wanted %d", ErrNavigationFailed, info.CurrentPage, page)
	}
	return nil
}

func (n *UINavigator) clickNext(ctx context.Context) error {
	n.session.Captured() // drop payloads left over from the page being left
	var clicked bool
	if err := n.session.Eval(ctx, nextControlJS, &clicked); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	if !clicked {
		// A listing mid-walk always has a next control. No control on a
		// view that no longer looks like the listing means the session
		// expired and the platform swapped in its login page.
		if !n.session.LooksLikeMemoryListing(ctx) {
			return ErrSessionInvalid
		}
		return fmt.Errorf("%w: no eligible next control", ErrNavigationFailed)
	}
	// Settle delay: the target view keeps rendering after the click.
	n.wait(ctx)
	return nil
}

func (n *UINavigator) wait(ctx context.Context) {
	timer := time.NewTimer(n.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// loadMoreJS scrolls the listing to the bottom and clicks a load-more
// control when one is visible, returning the resulting document height.
const loadMoreJS = `(() => {
	window.scrollTo(0, document.body.scrollHeight);
	const controls = Array.from(document.querySelectorAll('button, a, [role="button"]'));
	const more = controls.find(el => /\b(load|show)\s+more\b/i.test(el.textContent) && !el.disabled);
	if (more) more.click();
	return document.body.scrollHeight;
})()`

const maxLoadRounds = 20

// loadAll exhausts an incrementally loaded listing: scroll to the bottom,
// click any load-more control, wait, repeat until the document height stops
// growing. Best effort; the snapshot proceeds either way.
func (n *UINavigator) loadAll(ctx context.Context) {
	lastHeight := -1
	for round := 0; round < maxLoadRounds; round++ {
		if ctx.Err() != nil {
			return
		}
		var height int
		if err := n.session.Eval(ctx, loadMoreJS, &height); err != nil {
			return
		}
		if height == lastHeight {
			return
		}
		lastHeight = height
		n.wait(ctx)
	}
}

// Source snapshots the current page. An API payload intercepted during the
// last advance is preferred over the DOM by the extractor, so both ride
// along.
func (n *UINavigator) Source(ctx context.Context) (extract.Source, error) {
	html, err := n.session.HTML(ctx)
	if err != nil {
		return extract.Source{}, fmt.Errorf("failed to snapshot view: %w", err)
	}
	if !pageIndicatorRe.MatchString(html) {
		// No indicator means the listing loads incrementally instead of
		// paging; pull everything in before snapshotting.
		n.loadAll(ctx)
		if html, err = n.session.HTML(ctx); err != nil {
			return extract.Source{}, fmt.Errorf("failed to snapshot view: %w", err)
		}
	}
	src := extract.Source{HTML: html}
	if captured := n.session.Captured(); len(captured) > 0 {
		src.Payload = captured[len(captured)-1]
	}
	return src, nil
}
