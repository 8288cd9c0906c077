package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// Selector that only matches once the dashboard has an authenticated user.
const loggedInProbeJS = `!!document.querySelector(
	'a[href*="/dashboard"], [class*="avatar"], [class*="user"], [class*="profile"]')`

const loginControlJS = `(() => {
	const el = document.querySelector(
		'a[href*="auth"], a[href*="login"], a[href*="discord"], button');
	const candidates = Array.from(document.querySelectorAll('a, button'));
	const byText = candidates.find(c => /\b(log ?in|sign in)\b/i.test(c.textContent));
	const target = byText || el;
	if (!target) return false;
	target.click();
	return true;
})()`

// TriggerLogin opens the platform and clicks through to its login control.
// The OAuth dance itself happens in the visible browser window.
func (s *Session) TriggerLogin(ctx context.Context, baseURL string) error {
	if err := s.Navigate(ctx, baseURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", baseURL, err)
	}
	var clicked bool
	if err := s.Eval(ctx, loginControlJS, &clicked); err == nil && clicked {
		s.logger.WithField("run_id", s.runID).Info("login control clicked")
		time.Sleep(3 * time.Second)
	}
	return nil
}

// WaitForLogin polls until the dashboard reports an authenticated user or
// the timeout passes. The user completes the OAuth login in the window
// meanwhile.
func (s *Session) WaitForLogin(ctx context.Context, timeout time.Duration) error {
	s.logger.WithFields(logrus.Fields{
		"run_id":  s.runID,
		"timeout": timeout.String(),
	}).Info("waiting for login")

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var location string
		if err := chromedp.Run(s.ctx, chromedp.Location(&location)); err != nil {
			continue
		}
		var loggedIn bool
		if err := s.Eval(ctx, loggedInProbeJS, &loggedIn); err != nil {
			continue
		}
		if loggedIn {
			s.logger.WithFields(logrus.Fields{
				"run_id":   s.runID,
				"location": location,
			}).Info("login detected")
			return nil
		}
	}
	return fmt.Errorf("login not completed within %s", timeout)
}
