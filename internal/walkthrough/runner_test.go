package walkthrough

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/plantilla-walkthrough/internal/browser"
	"github.com/kuitang/plantilla-walkthrough/internal/config"
	"github.com/kuitang/plantilla-walkthrough/internal/obs"
	"github.com/kuitang/plantilla-walkthrough/internal/scenario"
)

// fakePage implements only what the first step and failure diagnostics
// touch; anything else hits the nil embedded interface.
type fakePage struct {
	playwright.Page
	gotoErr   error
	gotoPanic bool
	visited   []string
}

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.visited = append(p.visited, url)
	if p.gotoPanic {
		panic("renderer crashed")
	}
	return nil, p.gotoErr
}

func (p *fakePage) URL() string { return "about:blank" }

func (p *fakePage) Title() (string, error) { return "", nil }

func (p *fakePage) Content() (string, error) { return "<html></html>", nil }

func (p *fakePage) Screenshot(...playwright.PageScreenshotOptions) ([]byte, error) {
	return nil, errors.New("not supported")
}

type fakeSession struct {
	page   *fakePage
	closes int
}

func (s *fakeSession) Page() playwright.Page { return s.page }

func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		BaseURL:        "http://fixture.test",
		ListingPath:    config.DefaultListingPath,
		Browser:        "chromium",
		Headless:       true,
		Timings:        config.Timings{Wait: 50 * time.Millisecond, Search: 50 * time.Millisecond, Save: 50 * time.Millisecond},
		ScreenshotPath: filepath.Join(dir, "shot.png"),
		ReportPath:     filepath.Join(dir, "report.json"),
	}
}

func runWith(t *testing.T, ctx context.Context, sess *fakeSession) (*Report, string) {
	t.Helper()
	restore := obs.SetOutputForTests(&bytes.Buffer{})
	t.Cleanup(restore)

	var out bytes.Buffer
	r := New(testConfig(t), scenario.Default(),
		WithOutput(&out),
		WithRunID("run-test"),
		WithLauncher(func(runID string) (browser.Session, error) {
			require.Equal(t, "run-test", runID)
			return sess, nil
		}),
	)
	return r.Run(ctx), out.String()
}

func requireSkippedAfter(t *testing.T, rep *Report, failed string) {
	t.Helper()
	seen := false
	for _, s := range rep.Steps {
		if s.Name == failed {
			require.Equal(t, StatusFailed, s.Status)
			seen = true
			continue
		}
		if seen {
			require.Equal(t, StatusSkipped, s.Status, "step %s", s.Name)
		}
	}
	require.True(t, seen)
}

func TestRun_LaunchFailure(t *testing.T) {
	restore := obs.SetOutputForTests(&bytes.Buffer{})
	defer restore()

	var out bytes.Buffer
	r := New(testConfig(t), scenario.Default(),
		WithOutput(&out),
		WithLauncher(func(string) (browser.Session, error) {
			return nil, errors.New("no chromium")
		}),
	)
	rep := r.Run(context.Background())

	require.False(t, rep.Passed)
	require.Equal(t, 1, rep.ExitCode())
	require.False(t, rep.Released)
	require.Contains(t, rep.Error, "no chromium")
	for _, s := range rep.Steps {
		require.Equal(t, StatusSkipped, s.Status)
	}
	require.Contains(t, out.String(), "Could not start the browser")
}

func TestRun_NavigationFailureIsHard(t *testing.T) {
	sess := &fakeSession{page: &fakePage{gotoErr: errors.New("net::ERR_CONNECTION_REFUSED")}}
	rep, out := runWith(t, context.Background(), sess)

	require.False(t, rep.Passed)
	require.Equal(t, 1, rep.ExitCode())
	require.Equal(t, 1, sess.closes)
	require.True(t, rep.Released)
	require.Equal(t, []string{"http://fixture.test/Home/Plantillas"}, sess.page.visited)
	requireSkippedAfter(t, rep, StepOpenListing)
	require.Contains(t, rep.Error, "ERR_CONNECTION_REFUSED")
	require.Contains(t, out, "Error during walkthrough")
}

func TestRun_PanicInStepIsHard(t *testing.T) {
	sess := &fakeSession{page: &fakePage{gotoPanic: true}}
	rep, _ := runWith(t, context.Background(), sess)

	require.False(t, rep.Passed)
	require.Equal(t, 1, sess.closes)
	requireSkippedAfter(t, rep, StepOpenListing)
	require.Contains(t, rep.Step(StepOpenListing).Error, "renderer crashed")
}

func TestRun_CanceledContextIsHard(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess := &fakeSession{page: &fakePage{}}
	rep, _ := runWith(t, ctx, sess)

	require.False(t, rep.Passed)
	require.Equal(t, 1, sess.closes)
	require.Empty(t, sess.page.visited)
	requireSkippedAfter(t, rep, StepOpenListing)
	require.Contains(t, rep.Error, "interrupted")
}

func TestRun_WritesReport(t *testing.T) {
	restore := obs.SetOutputForTests(&bytes.Buffer{})
	defer restore()

	cfg := testConfig(t)
	sess := &fakeSession{page: &fakePage{gotoErr: errors.New("refused")}}
	r := New(cfg, scenario.Default(),
		WithOutput(&bytes.Buffer{}),
		WithRunID("run-report"),
		WithLauncher(func(string) (browser.Session, error) { return sess, nil }),
	)
	rep := r.Run(context.Background())

	data, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "run-report", decoded.RunID)
	require.False(t, decoded.Passed)
	require.True(t, decoded.Released)
	require.Len(t, decoded.Steps, len(StepNames))
	require.False(t, rep.FinishedAt.Before(rep.StartedAt))
}

func TestReport_Bookkeeping(t *testing.T) {
	rep := newReport("run-1", "http://x", time.Now())
	require.Nil(t, rep.Step("nope"))
	require.Empty(t, rep.Degraded())

	rep.Step(StepPreview).Status = StatusDegraded
	rep.Step(StepClient).Status = StatusDegraded
	require.Equal(t, []string{StepClient, StepPreview}, rep.Degraded())

	rep.Passed = true
	require.Equal(t, 0, rep.ExitCode())
}

func TestStep_EveryNameHasAFunction(t *testing.T) {
	w := &walk{}
	for _, name := range StepNames {
		require.NotNil(t, w.step(name), name)
	}
	err := w.step("bogus")(context.Background())
	require.Error(t, err)
}
