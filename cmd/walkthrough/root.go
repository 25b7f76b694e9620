package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kuitang/plantilla-walkthrough/internal/config"
	"github.com/kuitang/plantilla-walkthrough/internal/obs"
	"github.com/kuitang/plantilla-walkthrough/internal/urlutil"
)

var rootCmd = &cobra.Command{
	Use:   "walkthrough",
	Short: "Scripted browser walkthrough of the template wizard",
	Long: `Opens the recurring invoice template listing, fills step 1 of the wizard,
generates and saves the template, takes a screenshot and checks the listing.
Exits 0 when the run completes and 1 on any hard failure.`,
	SilenceUsage: true,
}

// exitCode is set by commands that finish without an error but must not
// exit 0.
var exitCode int

// Execute runs the root command and exits the process.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func init() {
	addConfigFlags(rootCmd.PersistentFlags())
}

// addConfigFlags registers the flags that override environment settings.
func addConfigFlags(f *pflag.FlagSet) {
	f.String("base-url", "", "Application base URL (WALKTHROUGH_BASE_URL)")
	f.String("listing-path", "", "Template listing path (WALKTHROUGH_LISTING_PATH)")
	f.String("browser", "", "chromium, firefox or webkit (WALKTHROUGH_BROWSER)")
	f.Bool("headed", false, "Show the browser window")
	f.Duration("slow-mo", 0, "Delay between browser operations (WALKTHROUGH_SLOW_MO)")
	f.Duration("wait", 0, "Element wait window (WALKTHROUGH_WAIT)")
	f.Duration("settle", 0, "Pause after navigation (WALKTHROUGH_SETTLE)")
	f.Duration("search-wait", 0, "Client search wait (WALKTHROUGH_SEARCH_WAIT)")
	f.Duration("save-wait", 0, "Save round-trip wait (WALKTHROUGH_SAVE_WAIT)")
	f.Duration("hold-open", 0, "Keep the browser open before closing (WALKTHROUGH_HOLD_OPEN)")
	f.Duration("pause", 0, "Pause between keystroke-level actions (WALKTHROUGH_PAUSE)")
	f.String("screenshot", "", "Screenshot path (WALKTHROUGH_SCREENSHOT)")
	f.String("report", "", "JSON report path (WALKTHROUGH_REPORT)")
	f.String("scenario", "", "YAML scenario overrides (WALKTHROUGH_SCENARIO)")
	f.String("log-level", "", "debug, info, warn or error (WALKTHROUGH_LOG_LEVEL)")
	f.Bool("upload", false, "Upload artifacts to S3 (WALKTHROUGH_UPLOAD)")
}

// loadConfig reads the environment, applies any flag the user set and
// configures logging. It does not validate.
func loadConfig(cmd *cobra.Command) *config.Config {
	return configFromFlags(cmd.Flags())
}

func configFromFlags(f *pflag.FlagSet) *config.Config {
	cfg := config.Load()

	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}

	str("base-url", &cfg.BaseURL)
	str("listing-path", &cfg.ListingPath)
	str("browser", &cfg.Browser)
	str("screenshot", &cfg.ScreenshotPath)
	str("report", &cfg.ReportPath)
	str("scenario", &cfg.ScenarioPath)
	str("log-level", &cfg.LogLevel)
	cfg.BaseURL = urlutil.NormalizeBase(cfg.BaseURL)

	if f.Changed("headed") {
		headed, _ := f.GetBool("headed")
		cfg.Headless = !headed
	}
	if f.Changed("upload") {
		cfg.Upload, _ = f.GetBool("upload")
	}

	for name, dst := range map[string]*time.Duration{
		"slow-mo":     &cfg.SlowMo,
		"wait":        &cfg.Timings.Wait,
		"settle":      &cfg.Timings.Settle,
		"search-wait": &cfg.Timings.Search,
		"save-wait":   &cfg.Timings.Save,
		"hold-open":   &cfg.Timings.HoldOpen,
		"pause":       &cfg.Timings.Pause,
	} {
		if f.Changed(name) {
			*dst, _ = f.GetDuration(name)
		}
	}

	obs.Init()
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
	return cfg
}
