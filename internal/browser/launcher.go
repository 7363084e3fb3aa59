// Package browser launches Chromium instances and hands them out as driver
// handles. Two launch modes exist: a local headless launch through the
// Playwright runtime, and a container mode that runs each browser in its own
// Docker container and attaches over CDP.
package browser

import (
	"context"
	"fmt"
	"io"

	"github.com/playwright-community/playwright-go"

	"github.com/uiwatch/uiwatch/internal/driver"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
)

// Launcher produces one browser tab per session.
type Launcher interface {
	Launch(ctx context.Context, sessionID string) (driver.Handle, error)
	Close() error
}

// LocalLauncher launches Chromium directly through Playwright.
type LocalLauncher struct {
	pw       *playwright.Playwright
	headless bool
}

// NewLocalLauncher installs the Playwright runtime if needed and starts it.
// Install output is discarded so it does not pollute the server log.
func NewLocalLauncher(headless bool) (*LocalLauncher, error) {
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	return &LocalLauncher{pw: pw, headless: headless}, nil
}

// Launch starts a fresh Chromium with a desktop viewport and returns the
// handle for its single tab.
func (l *LocalLauncher) Launch(_ context.Context, _ string) (driver.Handle, error) {
	b, err := l.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.headless),
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--force-device-scale-factor=1",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: viewportWidth, Height: viewportHeight},
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return driver.NewPageHandle(b, bctx, page, nil), nil
}

// Close stops the Playwright runtime. Open handles must be closed first.
func (l *LocalLauncher) Close() error {
	if err := l.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}
