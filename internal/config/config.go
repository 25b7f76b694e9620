// Package config provides configuration for the wizard walkthrough.
// It loads settings from environment variables, lets CLI flags override
// them, validates the result, and provides the defaults the walkthrough
// was tuned with against the real billing application.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/plantilla-walkthrough/internal/logutil"
	"github.com/kuitang/plantilla-walkthrough/internal/urlutil"
)

const (
	DefaultBaseURL        = "http://localhost:5063"
	DefaultListingPath    = "/Home/Plantillas"
	DefaultScreenshotPath = "test_paso1_resultado.png"
	DefaultFixtureAddr    = ":5063"

	defaultS3Region = "auto"
)

// Timings bounds every wait in the walkthrough.
type Timings struct {
	Wait     time.Duration // explicit wait window for elements
	Settle   time.Duration // after navigation and re-rendering clicks
	Search   time.Duration // client autocomplete results
	Save     time.Duration // generate/save server round-trip
	HoldOpen time.Duration // keep the browser up before release
	Pause    time.Duration // between keystroke-level actions on one field
}

// DefaultTimings are the waits the walkthrough uses against a live server.
func DefaultTimings() Timings {
	return Timings{
		Wait:     10 * time.Second,
		Settle:   2 * time.Second,
		Search:   3 * time.Second,
		Save:     5 * time.Second,
		HoldOpen: 5 * time.Second,
		Pause:    300 * time.Millisecond,
	}
}

// Config holds all walkthrough configuration.
type Config struct {
	// Target application
	BaseURL     string
	ListingPath string

	// Browser
	Browser  string // chromium, firefox or webkit
	Headless bool
	SlowMo   time.Duration

	Timings Timings

	// Artifacts
	ScreenshotPath string
	ReportPath     string // optional JSON report
	ScenarioPath   string // optional YAML overrides for scenario literals

	LogLevel string

	// Artifact upload (optional; enabled when Upload is true)
	Upload             bool
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL

	// Fixture server
	FixtureAddr string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load reads configuration from environment variables. It does not
// validate; flags may still override fields before Validate is called.
func Load() *Config {
	cfg := &Config{}

	cfg.BaseURL = urlutil.NormalizeBase(getEnvOrDefault("WALKTHROUGH_BASE_URL", DefaultBaseURL))
	cfg.ListingPath = getEnvOrDefault("WALKTHROUGH_LISTING_PATH", DefaultListingPath)

	cfg.Browser = strings.ToLower(getEnvOrDefault("WALKTHROUGH_BROWSER", "chromium"))
	cfg.Headless = parseBoolOrDefault("WALKTHROUGH_HEADLESS", true)
	cfg.SlowMo = parseDurationOrDefault("WALKTHROUGH_SLOW_MO", 0)

	def := DefaultTimings()
	cfg.Timings = Timings{
		Wait:     parseDurationOrDefault("WALKTHROUGH_WAIT", def.Wait),
		Settle:   parseDurationOrDefault("WALKTHROUGH_SETTLE", def.Settle),
		Search:   parseDurationOrDefault("WALKTHROUGH_SEARCH_WAIT", def.Search),
		Save:     parseDurationOrDefault("WALKTHROUGH_SAVE_WAIT", def.Save),
		HoldOpen: parseDurationOrDefault("WALKTHROUGH_HOLD_OPEN", def.HoldOpen),
		Pause:    parseDurationOrDefault("WALKTHROUGH_PAUSE", def.Pause),
	}

	cfg.ScreenshotPath = getEnvOrDefault("WALKTHROUGH_SCREENSHOT", DefaultScreenshotPath)
	cfg.ReportPath = strings.TrimSpace(os.Getenv("WALKTHROUGH_REPORT"))
	cfg.ScenarioPath = strings.TrimSpace(os.Getenv("WALKTHROUGH_SCENARIO"))
	cfg.LogLevel = getEnvOrDefault("WALKTHROUGH_LOG_LEVEL", "info")

	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSBucketName = strings.TrimSpace(os.Getenv("BUCKET_NAME"))
	cfg.AWSPublicURL = strings.TrimSpace(os.Getenv("S3_PUBLIC_URL"))
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = urlutil.BuildAbsolute(cfg.AWSEndpointS3, cfg.AWSBucketName)
	}
	cfg.Upload = parseBoolOrDefault("WALKTHROUGH_UPLOAD", cfg.AWSBucketName != "")

	cfg.FixtureAddr = getEnvOrDefault("FIXTURE_ADDR", DefaultFixtureAddr)

	return cfg
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var errs []string

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("WALKTHROUGH_BASE_URL must be an absolute URL, got %q", c.BaseURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, "WALKTHROUGH_BASE_URL must use http or https")
	}
	if !strings.HasPrefix(c.ListingPath, "/") {
		errs = append(errs, "WALKTHROUGH_LISTING_PATH must start with /")
	}

	switch c.Browser {
	case "chromium", "firefox", "webkit":
	default:
		errs = append(errs, fmt.Sprintf("WALKTHROUGH_BROWSER must be chromium, firefox or webkit, got %q", c.Browser))
	}

	if c.Timings.Wait <= 0 {
		errs = append(errs, "WALKTHROUGH_WAIT must be positive")
	}
	if c.Timings.Save <= 0 {
		errs = append(errs, "WALKTHROUGH_SAVE_WAIT must be positive")
	}
	if c.Timings.Search <= 0 {
		errs = append(errs, "WALKTHROUGH_SEARCH_WAIT must be positive")
	}
	for name, d := range map[string]time.Duration{
		"WALKTHROUGH_SETTLE":    c.Timings.Settle,
		"WALKTHROUGH_HOLD_OPEN": c.Timings.HoldOpen,
		"WALKTHROUGH_PAUSE":     c.Timings.Pause,
		"WALKTHROUGH_SLOW_MO":   c.SlowMo,
	} {
		if d < 0 {
			errs = append(errs, name+" must not be negative")
		}
	}

	if strings.TrimSpace(c.ScreenshotPath) == "" {
		errs = append(errs, "WALKTHROUGH_SCREENSHOT is required")
	}

	if c.Upload {
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required when artifact upload is enabled")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required when artifact upload is enabled")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required when artifact upload is enabled")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ListingURL is the absolute URL of the template listing page.
func (c *Config) ListingURL() string {
	return urlutil.BuildAbsolute(c.BaseURL, c.ListingPath)
}

// RootURL is the application root, used when the "new template" action is missing.
func (c *Config) RootURL() string {
	return urlutil.BuildAbsolute(c.BaseURL, "/")
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "walkthrough starting...")
	fmt.Fprintf(w, "  Target:     %s\n", c.ListingURL())
	mode := "headless"
	if !c.Headless {
		mode = "headed"
	}
	fmt.Fprintf(w, "  Browser:    %s (%s)\n", c.Browser, mode)
	fmt.Fprintf(w, "  Wait:       %s (save %s, search %s)\n", c.Timings.Wait, c.Timings.Save, c.Timings.Search)
	fmt.Fprintf(w, "  Screenshot: %s\n", c.ScreenshotPath)
	if c.ReportPath != "" {
		fmt.Fprintf(w, "  Report:     %s\n", c.ReportPath)
	}
	if c.ScenarioPath != "" {
		fmt.Fprintf(w, "  Scenario:   %s\n", c.ScenarioPath)
	}
	if c.Upload {
		fmt.Fprintf(w, "  Upload:     s3://%s (endpoint: %s, key: %s)\n",
			c.AWSBucketName, c.AWSEndpointS3,
			logutil.RedactValue("AWS_ACCESS_KEY_ID", c.AWSAccessKeyID))
	} else {
		fmt.Fprintln(w, "  Upload:     disabled")
	}
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
