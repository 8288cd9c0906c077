package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"shapeexport/internal/extract"
	"shapeexport/internal/models"
)

// fakeSession simulates the browser view for a paginated listing.
type fakeSession struct {
	pageCount int
	current   int
	hasNext   bool // a next control exists and is clickable
	stuck     bool // clicks land but the indicator never moves
	listing   bool // the view still looks like a memory listing
	// expireAfter flips the view to a login page once this page is current
	// and another advance is attempted (0 = never)
	expireAfter int
	// heights feeds the scroll-to-load simulation, one document height per
	// round; the last entry repeats
	heights   []int
	heightIdx int
	loadCalls int
	captured  [][]byte
	navigated []string
	evalCalls int
	htmlCalls int
}

func newFakeSession(pages int) *fakeSession {
	return &fakeSession{pageCount: pages, current: 1, hasNext: true, listing: true}
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	if i := strings.LastIndex(url, "page="); i >= 0 {
		if p, err := strconv.Atoi(url[i+len("page="):]); err == nil && p >= 1 && p <= s.pageCount {
			s.current = p
		}
	}
	return nil
}

func (s *fakeSession) HTML(_ context.Context) (string, error) {
	s.htmlCalls++
	if !s.listing {
		return `<html><body><h1>Sign in</h1><a href="/auth">Log in with Discord</a></body></html>`, nil
	}
	card := fmt.Sprintf(`<div class="memory-card"><p class="memory-content">page%d-fact</p></div>`, s.current)
	if s.pageCount <= 1 {
		return "<html><body><div>Memories</div>" + card + "</body></html>", nil
	}
	return fmt.Sprintf("<html><body><div>Memories</div>%s<nav>Page %d of %d</nav></body></html>",
		card, s.current, s.pageCount), nil
}

func (s *fakeSession) Eval(_ context.Context, js string, out any) error {
	switch out := out.(type) {
	case *bool: // next-control click
		s.evalCalls++
		if s.expireAfter > 0 && s.current >= s.expireAfter {
			s.listing = false
			s.hasNext = false
		}
		if !s.hasNext {
			*out = false
			return nil
		}
		*out = true
		if !s.stuck && s.current < s.pageCount {
			s.current++
		}
		return nil
	case *int: // scroll-to-load round, reports document height
		s.loadCalls++
		height := 1000
		if len(s.heights) > 0 {
			i := s.heightIdx
			if i >= len(s.heights) {
				i = len(s.heights) - 1
			}
			height = s.heights[i]
			s.heightIdx++
		}
		*out = height
		return nil
	default:
		return errors.New("unexpected eval result type")
	}
}

func (s *fakeSession) LooksLikeMemoryListing(_ context.Context) bool { return s.listing }

func (s *fakeSession) Captured() [][]byte {
	out := s.captured
	s.captured = nil
	return out
}

func fastUINav(s Session) *UINavigator {
	return NewUINavigator(s, UIOptions{SettleDelay: time.Millisecond})
}

func TestPageIndicatorParsing(t *testing.T) {
	testCases := []struct {
		name string
		html string
		want models.PageCursor
	}{
		{"standard", "<div>Page 3 of 12</div>", models.PageCursor{CurrentPage: 3, TotalPages: 12}},
		{"case insensitive", "<span>page 1 of 2</span>", models.PageCursor{CurrentPage: 1, TotalPages: 2}},
		{"absent", "<div>Memories</div>", models.PageCursor{CurrentPage: 1, TotalPages: 1}},
		{"total below current", "<div>Page 4 of 1</div>", models.PageCursor{CurrentPage: 4, TotalPages: 4}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parsePageIndicator(tc.html); got != tc.want {
				t.Errorf("parsePageIndicator = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUINavigatorAdvances(t *testing.T) {
	session := newFakeSession(3)
	nav := fastUINav(session)
	ctx := context.Background()

	if err := nav.Goto(ctx, 2); err != nil {
		t.Fatalf("Goto(2) failed: %v", err)
	}
	if session.current != 2 {
		t.Errorf("session on page %d, want 2", session.current)
	}

	info, err := nav.PageInfo(ctx)
	if err != nil {
		t.Fatalf("PageInfo failed: %v", err)
	}
	if info.CurrentPage != 2 || info.TotalPages != 3 {
		t.Errorf("PageInfo = %+v, want {2 3}", info)
	}
}

func TestUINavigatorGotoCurrentPageIsNoop(t *testing.T) {
	session := newFakeSession(3)
	nav := fastUINav(session)

	if err := nav.Goto(context.Background(), 1); err != nil {
		t.Fatalf("Goto(1) failed: %v", err)
	}
	if session.evalCalls != 0 {
		t.Errorf("clicked %d times for a no-op, want 0", session.evalCalls)
	}
}

func TestUINavigatorNoNextControl(t *testing.T) {
	session := newFakeSession(3)
	session.hasNext = false
	nav := fastUINav(session)

	err := nav.Goto(context.Background(), 2)
	if !errors.Is(err, ErrNavigationFailed) {
		t.Fatalf("err = %v, want ErrNavigationFailed", err)
	}
}

func TestUINavigatorStuckIndicator(t *testing.T) {
	session := newFakeSession(3)
	session.stuck = true
	nav := fastUINav(session)

	err := nav.Goto(context.Background(), 2)
	if !errors.Is(err, ErrNavigationFailed) {
		t.Fatalf("err = %v, want ErrNavigationFailed", err)
	}
}

func TestUINavigatorSessionLostBetweenPages(t *testing.T) {
	// An expired session swaps in the login page: no next control, and the
	// view no longer looks like a listing. That is a session loss, not the
	// end of pagination.
	session := newFakeSession(5)
	session.hasNext = false
	session.listing = false
	nav := fastUINav(session)

	err := nav.Goto(context.Background(), 2)
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("err = %v, want ErrSessionInvalid", err)
	}
}

func TestEngineAbortsWhenSessionExpiresMidWalk(t *testing.T) {
	// Session expires after page 2: the walk must surface the loss instead
	// of skipping the rest, and the checkpoint must survive with both
	// collected pages in it.
	session := newFakeSession(5)
	session.expireAfter = 2
	store := &fakeStore{}

	eng := NewEngine(fastUINav(session), extract.NewExtractor(), store, nil, fastConfig())
	_, err := eng.Export(context.Background(), "luna")
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("err = %v, want ErrSessionInvalid", err)
	}

	if len(store.deleted) != 0 {
		t.Error("checkpoint deleted on session loss")
	}
	if len(store.saved) == 0 {
		t.Fatal("accumulator not preserved in checkpoint")
	}
	last := store.saved[len(store.saved)-1]
	if last.LastCompletedPage != 2 {
		t.Errorf("checkpoint page = %d, want 2", last.LastCompletedPage)
	}
	if len(last.RecordsSoFar) != 2 {
		t.Errorf("checkpoint holds %d records, want 2", len(last.RecordsSoFar))
	}
}

func TestUINavigatorStuckBecauseSessionLost(t *testing.T) {
	session := newFakeSession(3)
	session.stuck = true
	session.listing = false
	nav := fastUINav(session)

	err := nav.Goto(context.Background(), 2)
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("err = %v, want ErrSessionInvalid", err)
	}
}

func TestUINavigatorCannotMoveBackward(t *testing.T) {
	session := newFakeSession(3)
	session.current = 3
	nav := fastUINav(session)

	err := nav.Goto(context.Background(), 2)
	if !errors.Is(err, ErrNavigationFailed) {
		t.Fatalf("err = %v, want ErrNavigationFailed", err)
	}
}

func TestUINavigatorJumpsToDistantPage(t *testing.T) {
	session := newFakeSession(10)
	nav := NewUINavigator(session, UIOptions{
		SettleDelay: time.Millisecond,
		JumpURL: func(page int) string {
			return fmt.Sprintf("https://example.test/memories?page=%d", page)
		},
	})

	if err := nav.Goto(context.Background(), 7); err != nil {
		t.Fatalf("Goto(7) failed: %v", err)
	}
	if session.current != 7 {
		t.Errorf("session on page %d, want 7", session.current)
	}
	if len(session.navigated) != 1 {
		t.Errorf("navigated %v, want one jump URL", session.navigated)
	}
	if session.evalCalls != 0 {
		t.Errorf("clicked %d times despite jump", session.evalCalls)
	}
}

func TestUINavigatorLoadsIncrementalListing(t *testing.T) {
	// A listing without a page indicator loads incrementally; Source must
	// scroll it to exhaustion before snapshotting, stopping once the
	// document height settles.
	session := newFakeSession(1)
	session.heights = []int{1000, 2000, 2000}
	nav := fastUINav(session)

	src, err := nav.Source(context.Background())
	if err != nil {
		t.Fatalf("Source failed: %v", err)
	}
	if session.loadCalls != 3 {
		t.Errorf("scroll rounds = %d, want 3 (two growths then a settled read)", session.loadCalls)
	}
	if session.htmlCalls < 2 {
		t.Error("view not re-snapshotted after loading")
	}
	if !strings.Contains(src.HTML, "page1-fact") {
		t.Errorf("snapshot missing listing content: %s", src.HTML)
	}
}

func TestUINavigatorDropsStaleCapturesOnAdvance(t *testing.T) {
	// A payload that lands after the previous page was read must not be
	// attributed to the page being advanced to.
	session := newFakeSession(3)
	session.captured = [][]byte{[]byte(`{"items":[{"content":"late arrival"}]}`)}
	nav := fastUINav(session)

	if err := nav.Goto(context.Background(), 2); err != nil {
		t.Fatalf("Goto(2) failed: %v", err)
	}
	src, err := nav.Source(context.Background())
	if err != nil {
		t.Fatalf("Source failed: %v", err)
	}
	if src.Payload != nil {
		t.Errorf("stale payload carried into the next page: %s", src.Payload)
	}
}

func TestUINavigatorSourcePrefersCapturedPayload(t *testing.T) {
	session := newFakeSession(2)
	session.captured = [][]byte{
		[]byte(`{"items":[{"content":"stale"}]}`),
		[]byte(`{"items":[{"content":"fresh"}]}`),
	}
	nav := fastUINav(session)

	src, err := nav.Source(context.Background())
	if err != nil {
		t.Fatalf("Source failed: %v", err)
	}
	if src.HTML == "" {
		t.Error("source is missing the DOM snapshot")
	}
	if !strings.Contains(string(src.Payload), "fresh") {
		t.Errorf("payload = %s, want the most recent capture", src.Payload)
	}

	// drained: the next source carries no payload
	src, err = nav.Source(context.Background())
	if err != nil {
		t.Fatalf("second Source failed: %v", err)
	}
	if src.Payload != nil {
		t.Errorf("payload = %s, want nil after drain", src.Payload)
	}
}
