package browser

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// The platform blocks DevTools-driven sessions; hide the automation marker
// before any page script runs.
const stealthJS = `
Object.defineProperty(navigator, 'webdriver', { get: () => false });
window.chrome = window.chrome || { runtime: {} };
`

var pageIndicatorRe = regexp.MustCompile(`(?i)page\s+\d+\s+of\s+\d+`)

// Options configures a browser session.
type Options struct {
	Engine      string // chromium, chrome or edge
	ExecPath    string // explicit executable, overrides Engine
	UserAgent   string
	SettleDelay time.Duration // wait after navigations for the view to finish rendering
}

// Session is one authenticated browser view. The exporter walks pagination
// through it one page at a time; there is only ever one current page.
type Session struct {
	ctx     context.Context
	cancels []context.CancelFunc
	logger  *logrus.Logger
	runID   string
	settle  time.Duration

	mu       sync.Mutex
	watching map[network.RequestID]string // in-flight responses worth capturing
	captured [][]byte
	fetches  sync.WaitGroup // body reads still running after EventLoadingFinished
}

// NewSession launches a headed browser. Headed always: login is interactive
// and the platform rejects obviously-headless clients.
func NewSession(parent context.Context, opts Options) (*Session, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2500 * time.Millisecond
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 900),
		chromedp.UserAgent(opts.UserAgent),
	)
	if execPath := resolveExecPath(opts); execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:      ctx,
		cancels:  []context.CancelFunc{ctxCancel, allocCancel},
		logger:   logger,
		runID:    uuid.New().String(),
		settle:   opts.SettleDelay,
		watching: make(map[network.RequestID]string),
	}

	if err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthJS).Do(ctx)
			return err
		}),
	); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	s.listenForMemoryResponses()

	logger.WithFields(logrus.Fields{
		"run_id":     s.runID,
		"engine":     opts.Engine,
		"settle_ms":  opts.SettleDelay.Milliseconds(),
		"user_agent": opts.UserAgent,
	}).Info("browser session started")

	return s, nil
}

func resolveExecPath(opts Options) string {
	if opts.ExecPath != "" {
		return opts.ExecPath
	}
	switch strings.ToLower(opts.Engine) {
	case "chrome":
		return "/usr/bin/google-chrome"
	case "edge":
		return "/usr/bin/microsoft-edge"
	default:
		// chromium: let chromedp probe the usual install locations
		return ""
	}
}

// listenForMemoryResponses captures JSON responses from memory-ish
// endpoints. Bodies are only retrievable once loading finishes, so
// interesting request ids are tracked until then.
func (s *Session) listenForMemoryResponses() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventResponseReceived:
			url := strings.ToLower(ev.Response.URL)
			if ev.Response.Status != 200 {
				return
			}
			if !strings.Contains(url, "memor") && !strings.Contains(url, "api") {
				return
			}
			if !strings.Contains(strings.ToLower(ev.Response.MimeType), "json") {
				return
			}
			s.mu.Lock()
			s.watching[ev.RequestID] = ev.Response.URL
			s.mu.Unlock()
		case *network.EventLoadingFinished:
			s.mu.Lock()
			url, ok := s.watching[ev.RequestID]
			delete(s.watching, ev.RequestID)
			s.mu.Unlock()
			if !ok {
				return
			}
			requestID := ev.RequestID
			s.fetches.Add(1)
			go func() {
				defer s.fetches.Done()
				c := chromedp.FromContext(s.ctx)
				body, err := network.GetResponseBody(requestID).Do(cdp.WithExecutor(s.ctx, c.Target))
				if err != nil {
					s.logger.WithFields(logrus.Fields{
						"run_id": s.runID,
						"url":    url,
					}).WithError(err).Debug("failed to read captured response body")
					return
				}
				s.mu.Lock()
				s.captured = append(s.captured, body)
				s.mu.Unlock()
				s.logger.WithFields(logrus.Fields{
					"run_id": s.runID,
					"url":    url,
					"bytes":  len(body),
				}).Debug("captured memory API response")
			}()
		}
	})
}

// Navigate renders a URL and waits out the settle delay.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(s.ctx,
		chromedp.Navigate(url),
		chromedp.Sleep(s.settle),
	)
}

// HTML snapshots the current view.
func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var html string
	if err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to snapshot page: %w", err)
	}
	return html, nil
}

// Eval runs a script in the current view and decodes its result into out.
func (s *Session) Eval(ctx context.Context, js string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(s.ctx, chromedp.Evaluate(js, out))
}

// Captured drains API payloads intercepted since the last call, oldest
// first. It waits out any in-flight body reads first so a page's payload is
// never attributed to the page after it.
func (s *Session) Captured() [][]byte {
	done := make(chan struct{})
	go func() {
		s.fetches.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.captured
	s.captured = nil
	return out
}

// Cookies exports the session's cookies for the direct-fetch client.
func (s *Session) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cookies []*http.Cookie
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range raw {
			cookies = append(cookies, &http.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to export cookies: %w", err)
	}
	return cookies, nil
}

// LooksLikeMemoryListing reports whether the current view resembles a
// memory listing: the memories heading plus a pagination indicator, a
// select-all control, or an add-memory control.
func (s *Session) LooksLikeMemoryListing(ctx context.Context) bool {
	var text string
	if err := s.Eval(ctx, `document.body ? document.body.innerText : ''`, &text); err != nil {
		return false
	}
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "memor") {
		return false
	}
	return pageIndicatorRe.MatchString(lower) ||
		strings.Contains(lower, "select all") ||
		strings.Contains(lower, "add new memory") ||
		strings.Contains(lower, "add memory")
}

func (s *Session) wait(ctx context.Context) {
	timer := time.NewTimer(s.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Close shuts the browser down.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.logger.WithField("run_id", s.runID).Info("browser session closed")
}
