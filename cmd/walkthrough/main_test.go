package main

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/plantilla-walkthrough/internal/config"
	"github.com/kuitang/plantilla-walkthrough/internal/obs"
)

func parseFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	f := pflag.NewFlagSet("walkthrough", pflag.ContinueOnError)
	addConfigFlags(f)
	require.NoError(t, f.Parse(args))
	return f
}

func TestConfigFromFlags_FlagsOverrideEnv(t *testing.T) {
	t.Cleanup(obs.SetOutputForTests(io.Discard))
	t.Setenv("WALKTHROUGH_BASE_URL", "http://env.test:1")
	t.Setenv("WALKTHROUGH_WAIT", "7s")
	t.Setenv("WALKTHROUGH_SAVE_WAIT", "9s")
	t.Setenv("WALKTHROUGH_HEADLESS", "true")

	cfg := configFromFlags(parseFlags(t,
		"--base-url", "http://flag.test:2/",
		"--save-wait", "1s",
		"--headed",
		"--hold-open", "0s",
	))

	require.Equal(t, "http://flag.test:2", cfg.BaseURL)
	require.Equal(t, 7*time.Second, cfg.Timings.Wait)
	require.Equal(t, time.Second, cfg.Timings.Save)
	require.Zero(t, cfg.Timings.HoldOpen)
	require.False(t, cfg.Headless)
	require.NoError(t, cfg.Validate())
}

func TestConfigFromFlags_UnsetFlagsKeepEnv(t *testing.T) {
	t.Cleanup(obs.SetOutputForTests(io.Discard))
	t.Setenv("WALKTHROUGH_BROWSER", "firefox")
	t.Setenv("WALKTHROUGH_HEADLESS", "false")

	cfg := configFromFlags(parseFlags(t))
	require.Equal(t, "firefox", cfg.Browser)
	require.False(t, cfg.Headless)
	require.Equal(t, config.DefaultTimings().Search, cfg.Timings.Search)
}

func TestConfigFromFlags_InvalidBrowserFailsValidation(t *testing.T) {
	t.Cleanup(obs.SetOutputForTests(io.Discard))
	cfg := configFromFlags(parseFlags(t, "--browser", "lynx"))
	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, config.IsValidationError(err))
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Cleanup(obs.SetOutputForTests(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, "127.0.0.1:0", http.NotFoundHandler())
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestCommands_Registered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["run"])
	require.True(t, names["fixture"])
	require.True(t, names["install"])
	require.NotNil(t, rootCmd.RunE)
}
