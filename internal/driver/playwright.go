package driver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PageHandle implements Handle on top of a Playwright page. It owns the
// page, its browser context, and the browser itself; Close tears all three
// down and runs an optional onClose hook (used by the container launcher to
// stop the backing container).
type PageHandle struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	onClose   func() error
	closeOnce sync.Once
	closeErr  error
}

// NewPageHandle wraps an already-launched browser/context/page triple.
// onClose may be nil.
func NewPageHandle(browser playwright.Browser, context playwright.BrowserContext, page playwright.Page, onClose func() error) *PageHandle {
	return &PageHandle{
		browser: browser,
		context: context,
		page:    page,
		onClose: onClose,
	}
}

// Navigate loads the URL and waits for DOMContentLoaded.
func (h *PageHandle) Navigate(url string) error {
	_, err := h.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (h *PageHandle) Fill(locator, text string) error {
	if err := h.page.Fill(locator, text); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (h *PageHandle) Click(locator string) error {
	if err := h.page.Click(locator); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// WaitForLocator waits for the locator to become visible. A Playwright
// timeout maps to TimedOut, not an error.
func (h *PageHandle) WaitForLocator(locator string, timeout time.Duration) (WaitOutcome, error) {
	state := playwright.WaitForSelectorStateVisible
	_, err := h.page.WaitForSelector(locator, playwright.PageWaitForSelectorOptions{
		State:   state,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return TimedOut, nil
		}
		return TimedOut, fmt.Errorf("wait for %q failed: %w", locator, err)
	}
	return Found, nil
}

// WaitForCondition waits for a JavaScript expression to become truthy.
func (h *PageHandle) WaitForCondition(expression string, timeout time.Duration) (WaitOutcome, error) {
	_, err := h.page.WaitForFunction(expression, nil, playwright.PageWaitForFunctionOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return TimedOut, nil
		}
		return TimedOut, fmt.Errorf("wait for condition failed: %w", err)
	}
	return Found, nil
}

func (h *PageHandle) Screenshot(fullPage bool) ([]byte, error) {
	img, err := h.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return img, nil
}

func (h *PageHandle) CurrentURL() string {
	return h.page.URL()
}

func (h *PageHandle) Evaluate(expression string) (interface{}, error) {
	value, err := h.page.Evaluate(expression)
	if err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", err)
	}
	return value, nil
}

// Close tears down the page, context, and browser. Individual close errors
// do not stop the remaining cleanup; the first error is retained.
func (h *PageHandle) Close() error {
	h.closeOnce.Do(func() {
		_ = h.page.Close()
		_ = h.context.Close()
		if err := h.browser.Close(); err != nil {
			h.closeErr = fmt.Errorf("browser close failed: %w", err)
		}
		if h.onClose != nil {
			if err := h.onClose(); err != nil && h.closeErr == nil {
				h.closeErr = err
			}
		}
	})
	return h.closeErr
}
