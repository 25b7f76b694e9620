package walkthrough

import (
	"encoding/json"
	"time"
)

// Status of a single step.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Step names, in execution order.
const (
	StepOpenListing   = "open-listing"
	StepNewTemplate   = "new-template"
	StepIssuer        = "issuer"
	StepClient        = "client"
	StepSeriesFolio   = "series-folio"
	StepCatalogs      = "catalogs"
	StepProductLine   = "product-line"
	StepUnitPrice     = "unit-price"
	StepAdvance       = "advance"
	StepPreview       = "preview"
	StepGenerateSave  = "generate-save"
	StepScreenshot    = "screenshot"
	StepVerifyListing = "verify-listing"
	StepHoldRelease   = "hold-release"
)

// StepNames lists every step in the order the walkthrough runs them.
var StepNames = []string{
	StepOpenListing,
	StepNewTemplate,
	StepIssuer,
	StepClient,
	StepSeriesFolio,
	StepCatalogs,
	StepProductLine,
	StepUnitPrice,
	StepAdvance,
	StepPreview,
	StepGenerateSave,
	StepScreenshot,
	StepVerifyListing,
	StepHoldRelease,
}

// StepResult records what happened in one step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Notes    []string      `json:"notes,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// ListingResult is what the final listing check saw.
type ListingResult struct {
	Found   bool     `json:"found"`
	Row     string   `json:"row,omitempty"`
	Buttons int      `json:"buttons"`
	Status  string   `json:"status,omitempty"`
	Sample  []string `json:"sample,omitempty"` // first rows when nothing matched
}

// Report is the outcome of one walkthrough run.
type Report struct {
	RunID      string    `json:"run_id"`
	BaseURL    string    `json:"base_url"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Steps []StepResult `json:"steps"`

	Issuer          string        `json:"issuer,omitempty"`
	Client          string        `json:"client,omitempty"`
	ClientSelected  bool          `json:"client_selected"`
	Product         string        `json:"product,omitempty"`
	UnitPrice       string        `json:"unit_price,omitempty"`
	UnitPriceForced bool          `json:"unit_price_forced"`
	SuccessBanners  []string      `json:"success_banners,omitempty"`
	ErrorBanners    []string      `json:"error_banners,omitempty"`
	NextStepFound   bool          `json:"next_step_found"`
	Listing         ListingResult `json:"listing"`

	Screenshot    string `json:"screenshot,omitempty"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`

	Released bool   `json:"released"`
	Passed   bool   `json:"passed"`
	Error    string `json:"error,omitempty"`
}

func newReport(runID, baseURL string, now time.Time) *Report {
	r := &Report{
		RunID:     runID,
		BaseURL:   baseURL,
		StartedAt: now,
		Steps:     make([]StepResult, len(StepNames)),
	}
	for i, name := range StepNames {
		r.Steps[i] = StepResult{Name: name, Status: StatusSkipped}
	}
	return r
}

// Step returns the result for name, or nil for an unknown step.
func (r *Report) Step(name string) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Degraded lists the steps that hit a soft failure.
func (r *Report) Degraded() []string {
	var out []string
	for _, s := range r.Steps {
		if s.Status == StatusDegraded {
			out = append(out, s.Name)
		}
	}
	return out
}

// ExitCode is 0 for a passing run and 1 otherwise.
func (r *Report) ExitCode() int {
	if r.Passed {
		return 0
	}
	return 1
}

// JSON renders the report for the on-disk artifact.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
