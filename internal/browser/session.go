// Package browser owns the Playwright session the walkthrough drives and
// the page-level helpers shared by every step.
package browser

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/plantilla-walkthrough/internal/errs"
	"github.com/kuitang/plantilla-walkthrough/internal/obs"
)

// Viewport used for every page; the walkthrough expects a maximized window.
var Viewport = playwright.Size{Width: 1920, Height: 1080}

// Session is a single page plus whatever must be torn down with it.
type Session interface {
	Page() playwright.Page
	Close() error
}

// Options configures Launch and Attach.
type Options struct {
	Browser  string // chromium, firefox or webkit
	Headless bool
	SlowMo   time.Duration
	// Timeout is the default for every Playwright action and navigation.
	Timeout time.Duration
	// RunID is sent on every request in the obs.RunHeader header.
	RunID string
}

// Local is a Session backed by a Playwright driver. Close releases
// everything the session owns exactly once.
type Local struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
	closeErr  error
	closes    int
	mu        sync.Mutex
}

// Launch starts the Playwright driver and a browser, and opens one page.
func Launch(opts Options) (*Local, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "start playwright driver", err)
	}

	bt, err := browserType(pw, opts.Browser)
	if err != nil {
		_ = pw.Stop()
		return nil, err
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if bt == pw.Chromium {
		launch.Args = []string{"--no-sandbox", "--disable-dev-shm-usage"}
	}
	if opts.SlowMo > 0 {
		launch.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}

	b, err := bt.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "launch "+bt.Name(), err)
	}

	s, err := Attach(b, opts)
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, err
	}
	s.pw = pw
	s.browser = b
	return s, nil
}

// Attach opens a fresh context and page on an already running browser.
// Closing the returned session closes only that context; the browser
// stays up for the caller.
func Attach(b playwright.Browser, opts Options) (*Local, error) {
	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: Viewport.Width, Height: Viewport.Height},
	}
	if opts.RunID != "" {
		ctxOpts.ExtraHttpHeaders = map[string]string{obs.RunHeader: opts.RunID}
	}
	bctx, err := b.NewContext(ctxOpts)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "create browser context", err)
	}
	if opts.Timeout > 0 {
		bctx.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))
		bctx.SetDefaultNavigationTimeout(float64(opts.Timeout.Milliseconds()))
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errs.Wrap(errs.Unavailable, "create page", err)
	}
	return &Local{context: bctx, page: page}, nil
}

// Page returns the session's page.
func (s *Local) Page() playwright.Page {
	return s.page
}

// Close releases the context, and the browser and driver when the session
// launched them. Calls after the first return the first result.
func (s *Local) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		var problems []error
		if s.context != nil {
			if err := s.context.Close(); err != nil {
				problems = append(problems, fmt.Errorf("close context: %w", err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				problems = append(problems, fmt.Errorf("close browser: %w", err))
			}
		}
		if s.pw != nil {
			if err := s.pw.Stop(); err != nil {
				problems = append(problems, fmt.Errorf("stop playwright: %w", err))
			}
		}
		s.closeErr = errors.Join(problems...)
	})
	return s.closeErr
}

// CloseCalls returns how many times Close has been called.
func (s *Local) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Install downloads the Playwright driver and the named browsers.
func Install(browsers ...string) error {
	if len(browsers) == 0 {
		browsers = []string{"chromium"}
	}
	if err := playwright.Install(&playwright.RunOptions{Browsers: browsers}); err != nil {
		return errs.Wrap(errs.Unavailable, "install playwright", err)
	}
	return nil
}

func browserType(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case "", "chromium":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown browser %q", name))
	}
}
