package walkthrough

import (
	"context"
	"strings"
	"time"

	"github.com/kuitang/plantilla-walkthrough/internal/narrate"
)

const ruleWidth = 60

// Banner prints the title shown before a run.
func Banner(ctx context.Context, n *narrate.Narrator) {
	n.Rule(ruleWidth)
	n.Say(ctx, narrate.Start, "Recurring invoice template wizard walkthrough")
	n.Rule(ruleWidth)
}

// PrintSummary narrates the per-step outcome and the final verdict.
func PrintSummary(ctx context.Context, n *narrate.Narrator, rep *Report) {
	n.Blank()
	n.Say(ctx, narrate.Summary, "Walkthrough summary (run %s):", rep.RunID)
	n.Rule(ruleWidth)

	for _, s := range rep.Steps {
		kind := narrate.OK
		switch s.Status {
		case StatusDegraded:
			kind = narrate.Warn
		case StatusFailed:
			kind = narrate.Fail
		case StatusSkipped:
			kind = narrate.Info
		}
		n.Say(ctx, kind, "%-16s %-9s %s", s.Name, s.Status, s.Duration.Round(time.Millisecond))
		for _, note := range s.Notes {
			n.Detail(ctx, "- %s", note)
		}
		if s.Error != "" {
			n.Detail(ctx, "- %s", s.Error)
		}
	}

	if rep.Screenshot != "" {
		n.Say(ctx, narrate.Shot, "Screenshot: %s", rep.Screenshot)
	}
	if rep.ScreenshotURL != "" {
		n.Detail(ctx, "uploaded: %s", rep.ScreenshotURL)
	}
	if d := rep.Degraded(); len(d) > 0 {
		n.Say(ctx, narrate.Warn, "Degraded steps: %s", strings.Join(d, ", "))
	}

	n.Blank()
	if rep.Passed {
		n.Say(ctx, narrate.OK, "Test passed")
		return
	}
	n.Say(ctx, narrate.Fail, "Test failed")
	if rep.Error != "" {
		n.Detail(ctx, "%s", rep.Error)
	}
}
