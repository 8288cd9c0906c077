package export

import "errors"

// Error taxonomy for one export walk. Navigation and transport failures are
// retried locally with backoff and then hard-skip the page; a session loss
// aborts the walk and propagates to the caller.
var (
	// ErrSessionInvalid means the current view no longer resembles an
	// authenticated memory listing. Not retried; the caller re-triggers login.
	ErrSessionInvalid = errors.New("session invalid: view does not look like a memory listing")

	// ErrNavigationFailed means no eligible next control was found or the
	// direct-fetch path returned a malformed response.
	ErrNavigationFailed = errors.New("navigation failed")
)
