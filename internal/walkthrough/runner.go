// Package walkthrough drives the billing-template wizard end to end in a
// real browser: it opens the template listing, fills step 1 of the wizard,
// saves, takes a screenshot and checks that the template shows up in the
// listing.
//
// Steps run strictly in order. A soft failure is narrated, recorded as
// degraded and the run continues. A hard failure (or a panic, or context
// cancellation) stops the run, skips the remaining steps and makes the run
// fail. The browser session is released exactly once on every path.
package walkthrough

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/plantilla-walkthrough/internal/artifacts"
	"github.com/kuitang/plantilla-walkthrough/internal/browser"
	"github.com/kuitang/plantilla-walkthrough/internal/config"
	"github.com/kuitang/plantilla-walkthrough/internal/errs"
	"github.com/kuitang/plantilla-walkthrough/internal/narrate"
	"github.com/kuitang/plantilla-walkthrough/internal/obs"
	"github.com/kuitang/plantilla-walkthrough/internal/scenario"
)

// Launcher acquires the browser session for one run.
type Launcher func(runID string) (browser.Session, error)

// LocalLauncher launches a browser on this machine as configured.
func LocalLauncher(cfg *config.Config) Launcher {
	return func(runID string) (browser.Session, error) {
		s, err := browser.Launch(browser.Options{
			Browser:  cfg.Browser,
			Headless: cfg.Headless,
			SlowMo:   cfg.SlowMo,
			Timeout:  cfg.Timings.Wait,
			RunID:    runID,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Runner runs the walkthrough. Build one with New.
type Runner struct {
	cfg      *config.Config
	sc       scenario.Scenario
	launch   Launcher
	say      *narrate.Narrator
	uploader artifacts.Uploader
	runID    string
	now      func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLauncher replaces the local browser launcher.
func WithLauncher(l Launcher) Option {
	return func(r *Runner) { r.launch = l }
}

// WithOutput sends narration to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.say = narrate.New(w) }
}

// WithUploader publishes the screenshot and report through u.
func WithUploader(u artifacts.Uploader) Option {
	return func(r *Runner) { r.uploader = u }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// New returns a Runner for cfg and sc.
func New(cfg *config.Config, sc scenario.Scenario, opts ...Option) *Runner {
	r := &Runner{
		cfg: cfg,
		sc:  sc,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.launch == nil {
		r.launch = LocalLauncher(cfg)
	}
	if r.say == nil {
		r.say = narrate.New(os.Stdout)
	}
	if r.runID == "" {
		r.runID = obs.NewRunID()
	}
	return r
}

// stepFunc returns nil on success (including soft failures it recorded)
// and an error for a hard failure.
type stepFunc func(ctx context.Context) error

// Run executes every step and returns the report. It never panics.
func (r *Runner) Run(ctx context.Context) *Report {
	rep := newReport(r.runID, r.cfg.BaseURL, r.now())
	ctx = obs.WithRunID(ctx, rep.RunID)
	pub := artifacts.NewPublisher(r.uploader, rep.RunID)

	defer r.finish(ctx, rep, pub)

	r.say.Say(ctx, narrate.Start, "Starting billing template wizard walkthrough...")

	sess, err := r.launch(rep.RunID)
	if err != nil {
		rep.Error = fmt.Sprintf("launch browser: %v", err)
		r.say.Say(ctx, narrate.Fail, "Could not start the browser: %v", err)
		return rep
	}
	defer r.release(ctx, sess, rep)

	w := &walk{
		cfg:  r.cfg,
		t:    r.cfg.Timings,
		sc:   r.sc,
		say:  r.say,
		pub:  pub,
		rep:  rep,
		page: sess.Page(),
	}

	for i, name := range StepNames {
		if err := ctx.Err(); err != nil {
			res := rep.Step(name)
			res.Status = StatusFailed
			res.Error = errs.Wrap(errs.Canceled, "walkthrough interrupted", err).Error()
			rep.Error = res.Error
			r.say.Say(ctx, narrate.Fail, "Walkthrough interrupted before %s: %v", name, err)
			return rep
		}
		if err := w.runStep(ctx, &rep.Steps[i], w.step(name)); err != nil {
			rep.Error = fmt.Sprintf("%s: %v", name, err)
			r.say.Say(ctx, narrate.Fail, "Error during walkthrough: %v", err)
			obs.From(ctx).Error("walkthrough_hard_failure",
				"step", name,
				"code", string(errs.CodeOf(err)),
				"error", err,
				"page", browser.Describe(w.page))
			return rep
		}
	}

	rep.Passed = true
	return rep
}

// runStep executes fn as the step recorded in res. Panics become hard
// failures.
func (w *walk) runStep(ctx context.Context, res *StepResult, fn stepFunc) (err error) {
	ctx = obs.WithStep(ctx, res.Name)
	start := time.Now()
	w.cur = res
	res.Status = StatusOK

	defer func() {
		if p := recover(); p != nil {
			obs.From(ctx).Error("walkthrough_step_panic", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			err = errs.New(errs.Internal, fmt.Sprintf("panic: %v", p))
		}
		res.Duration = time.Since(start)
		if err != nil {
			res.Status = StatusFailed
			res.Error = err.Error()
		}
		obs.From(ctx).Debug("walkthrough_step_done",
			"status", string(res.Status),
			"dur_ms", res.Duration.Milliseconds())
	}()

	return fn(ctx)
}

func (r *Runner) release(ctx context.Context, sess browser.Session, rep *Report) {
	if err := sess.Close(); err != nil {
		obs.From(ctx).Warn("browser_release_failed", "error", err)
	}
	rep.Released = true
	r.say.Say(ctx, narrate.OK, "Walkthrough finished")
}

// finish stamps the report and writes it out. Failures here never change
// the run's outcome.
func (r *Runner) finish(ctx context.Context, rep *Report, pub *artifacts.Publisher) {
	rep.FinishedAt = r.now()
	obs.From(ctx).Info("walkthrough_done",
		"passed", rep.Passed,
		"degraded", rep.Degraded(),
		"dur_ms", rep.FinishedAt.Sub(rep.StartedAt).Milliseconds())

	if r.cfg.ReportPath == "" {
		return
	}
	data, err := rep.JSON()
	if err != nil {
		obs.From(ctx).Warn("report_encode_failed", "error", err)
		return
	}
	path, err := artifacts.WriteFile(r.cfg.ReportPath, data)
	if err != nil {
		r.say.Say(ctx, narrate.Warn, "Could not write report: %v", err)
		return
	}
	r.say.Detail(ctx, "Report saved: %s", path)
	if url, err := pub.Publish(ctx, path, data); err != nil {
		r.say.Say(ctx, narrate.Warn, "Could not upload report: %v", err)
	} else if url != "" {
		r.say.Detail(ctx, "Report uploaded: %s", url)
	}
}

// walk is the state shared by the steps of one run.
type walk struct {
	cfg  *config.Config
	t    config.Timings
	sc   scenario.Scenario
	say  *narrate.Narrator
	pub  *artifacts.Publisher
	rep  *Report
	page playwright.Page
	cur  *StepResult
}

func (w *walk) step(name string) stepFunc {
	switch name {
	case StepOpenListing:
		return w.openListing
	case StepNewTemplate:
		return w.newTemplate
	case StepIssuer:
		return w.selectIssuer
	case StepClient:
		return w.selectClient
	case StepSeriesFolio:
		return w.fillSeriesFolio
	case StepCatalogs:
		return w.selectCatalogs
	case StepProductLine:
		return w.fillProductLine
	case StepUnitPrice:
		return w.fillUnitPrice
	case StepAdvance:
		return w.advance
	case StepPreview:
		return w.preview
	case StepGenerateSave:
		return w.generateAndSave
	case StepScreenshot:
		return w.screenshot
	case StepVerifyListing:
		return w.verifyListing
	case StepHoldRelease:
		return w.hold
	}
	return func(context.Context) error {
		return errs.New(errs.Internal, "unknown step "+name)
	}
}

// soft records a recoverable problem in the current step and narrates it.
func (w *walk) soft(ctx context.Context, kind narrate.Kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if w.cur != nil && w.cur.Status != StatusFailed {
		w.cur.Status = StatusDegraded
		w.cur.Notes = append(w.cur.Notes, msg)
	}
	w.say.Say(ctx, kind, "%s", msg)
}

// note adds detail to the current step without degrading it.
func (w *walk) note(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if w.cur != nil {
		w.cur.Notes = append(w.cur.Notes, msg)
	}
	w.say.Detail(ctx, "%s", msg)
}

// pause waits for d or until ctx is done.
func (w *walk) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
