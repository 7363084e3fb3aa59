// Package driver defines the capability contract for one controlled browser
// tab. Everything above this package talks to the browser exclusively through
// Handle, so the login flow, executor, and checks can be tested against a
// fake without a browser anywhere in sight.
package driver

import "time"

// WaitOutcome reports how a bounded wait ended.
type WaitOutcome int

const (
	// Found means the locator or condition was satisfied within the timeout.
	Found WaitOutcome = iota
	// TimedOut means the timeout elapsed first. Not an error: callers decide
	// whether a missing element is fatal.
	TimedOut
)

// Handle controls a single browser tab. A Handle is exclusively owned by one
// session and must be closed exactly once; Close is idempotent.
type Handle interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(url string) error

	// Fill types text into the first element matching the locator.
	Fill(locator, text string) error

	// Click clicks the first element matching the locator.
	Click(locator string) error

	// WaitForLocator waits until an element matching the locator is visible,
	// or the timeout elapses.
	WaitForLocator(locator string, timeout time.Duration) (WaitOutcome, error)

	// WaitForCondition waits until the JavaScript expression evaluates truthy
	// in the page, or the timeout elapses.
	WaitForCondition(expression string, timeout time.Duration) (WaitOutcome, error)

	// Screenshot captures the current page as PNG bytes.
	Screenshot(fullPage bool) ([]byte, error)

	// CurrentURL returns the page's current URL.
	CurrentURL() string

	// Evaluate runs a JavaScript expression in the page and returns its value.
	Evaluate(expression string) (interface{}, error)

	// Close releases the tab and its underlying browser. Safe to call more
	// than once; only the first call does work.
	Close() error
}
