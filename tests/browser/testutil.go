// Package browser runs the walkthrough end to end against the in-memory
// fixture in a real headless browser. All tests use BrowserTestEnv via
// SetupBrowserTestEnv(t) and skip when Playwright is not installed.
package browser

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/plantilla-walkthrough/internal/browser"
	"github.com/kuitang/plantilla-walkthrough/internal/config"
	"github.com/kuitang/plantilla-walkthrough/internal/fixture"
	"github.com/kuitang/plantilla-walkthrough/internal/scenario"
	"github.com/kuitang/plantilla-walkthrough/internal/walkthrough"
)

const (
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeout = 5 * time.Second
)

var browserFixtureMu sync.Mutex
var browserShared *sharedBrowser

// sharedBrowser is one Playwright driver and browser reused by every test.
// Each run gets its own context through browser.Attach.
type sharedBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// BrowserTestEnv is a fixture server plus everything a walkthrough run
// against it needs.
type BrowserTestEnv struct {
	Fixture *fixture.Server
	Server  *httptest.Server
	Config  *config.Config
	Output  *bytes.Buffer

	mu       sync.Mutex
	sessions []*browser.Local
	shared   *sharedBrowser
}

// SetupBrowserTestEnv starts a fixture with opts and returns an env whose
// config points at it with short timings. Skips in -short mode and when no
// browser can be launched.
func SetupBrowserTestEnv(t *testing.T, opts fixture.Options) *BrowserTestEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in short mode")
	}

	shared := getOrCreateSharedBrowser(t)

	app, err := fixture.New(opts)
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
	srv := httptest.NewServer(app)
	t.Cleanup(func() {
		srv.Close()
		app.Close()
	})

	dir := t.TempDir()
	cfg := &config.Config{
		BaseURL:     srv.URL,
		ListingPath: config.DefaultListingPath,
		Browser:     "chromium",
		Headless:    true,
		Timings: config.Timings{
			Wait:     browserMaxTimeout,
			Settle:   150 * time.Millisecond,
			Search:   3 * time.Second,
			Save:     browserMaxTimeout,
			HoldOpen: 0,
			Pause:    50 * time.Millisecond,
		},
		ScreenshotPath: filepath.Join(dir, "test_paso1_resultado.png"),
		ReportPath:     filepath.Join(dir, "report.json"),
	}

	return &BrowserTestEnv{
		Fixture: app,
		Server:  srv,
		Config:  cfg,
		Output:  &bytes.Buffer{},
		shared:  shared,
	}
}

func getOrCreateSharedBrowser(t *testing.T) *sharedBrowser {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserShared != nil {
		if browserShared.browser.IsConnected() {
			return browserShared
		}
		cleanupSharedBrowserLocked()
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		t.Skip("Could not launch browser:", err)
	}
	browserShared = &sharedBrowser{pw: pw, browser: b}
	return browserShared
}

func cleanupSharedBrowser() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()
	cleanupSharedBrowserLocked()
}

func cleanupSharedBrowserLocked() {
	if browserShared == nil {
		return
	}
	if browserShared.browser != nil {
		_ = browserShared.browser.Close()
	}
	if browserShared.pw != nil {
		_ = browserShared.pw.Stop()
	}
	browserShared = nil
}

// launcher opens a fresh context on the shared browser and remembers the
// session so tests can count releases.
func (env *BrowserTestEnv) launcher() walkthrough.Launcher {
	return func(runID string) (browser.Session, error) {
		s, err := browser.Attach(env.shared.browser, browser.Options{
			Timeout: env.Config.Timings.Wait,
			RunID:   runID,
		})
		if err != nil {
			return nil, err
		}
		env.mu.Lock()
		env.sessions = append(env.sessions, s)
		env.mu.Unlock()
		return s, nil
	}
}

// Run executes the walkthrough with the default scenario.
func (env *BrowserTestEnv) Run(t *testing.T, opts ...walkthrough.Option) *walkthrough.Report {
	t.Helper()
	return env.RunScenario(t, scenario.Default(), opts...)
}

// RunScenario executes the walkthrough with sc.
func (env *BrowserTestEnv) RunScenario(t *testing.T, sc scenario.Scenario, opts ...walkthrough.Option) *walkthrough.Report {
	t.Helper()
	all := append([]walkthrough.Option{
		walkthrough.WithLauncher(env.launcher()),
		walkthrough.WithOutput(env.Output),
	}, opts...)
	rep := walkthrough.New(env.Config, sc, all...).Run(context.Background())
	if t.Failed() || !rep.Passed {
		t.Logf("walkthrough output:\n%s", env.Output.String())
	}
	return rep
}

// CloseCalls sums Close calls over every session the env handed out.
func (env *BrowserTestEnv) CloseCalls() (sessions, closes int) {
	env.mu.Lock()
	defer env.mu.Unlock()
	for _, s := range env.sessions {
		closes += s.CloseCalls()
	}
	return len(env.sessions), closes
}

// NewPage opens a page on the shared browser for direct DOM checks.
func (env *BrowserTestEnv) NewPage(t *testing.T) playwright.Page {
	t.Helper()
	s, err := browser.Attach(env.shared.browser, browser.Options{Timeout: browserMaxTimeout})
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s.Page()
}
