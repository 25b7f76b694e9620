package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/plantilla-walkthrough/internal/fixture"
	"github.com/kuitang/plantilla-walkthrough/internal/obs"
)

const shutdownTimeout = 5 * time.Second

var fixtureCmd = &cobra.Command{
	Use:   "fixture",
	Short: "Serve the in-memory wizard fixture",
	Long:  `Serves a stand-in for the billing application's template listing and wizard so the walkthrough can run without the real system.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		f := cmd.Flags()

		addr := cfg.FixtureAddr
		if f.Changed("addr") {
			addr, _ = f.GetString("addr")
		}
		var opts fixture.Options
		opts.HideNewTemplateButton, _ = f.GetBool("hide-new-button")
		opts.OmitIssuerSelect, _ = f.GetBool("omit-issuer")
		opts.RejectSave, _ = f.GetBool("reject-save")
		opts.LockPriceField, _ = f.GetBool("lock-price")
		opts.NoClients, _ = f.GetBool("no-clients")
		opts.SeedTemplates, _ = f.GetBool("seed")

		app, err := fixture.New(opts)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, addr, app)
	},
}

func init() {
	rootCmd.AddCommand(fixtureCmd)
	f := fixtureCmd.Flags()
	f.String("addr", "", "Listen address (FIXTURE_ADDR, default :5063)")
	f.Bool("seed", true, "Start with one inactive template in the listing")
	f.Bool("hide-new-button", false, "Omit the \"Nueva Plantilla\" link from the listing")
	f.Bool("omit-issuer", false, "Omit the issuer select from the wizard")
	f.Bool("reject-save", false, "Fail every template save")
	f.Bool("lock-price", false, "Make the unit price input ignore keystrokes")
	f.Bool("no-clients", false, "Return no client search results")
}

// serve runs h on addr until ctx is done, then drains in-flight requests.
func serve(ctx context.Context, addr string, h http.Handler) error {
	log := obs.Pkg("fixture")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("fixture_listening", "addr", addr)
		fmt.Printf("Fixture listening on %s\n", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("fixture server: %w", err)
	case <-ctx.Done():
	}

	log.Info("fixture_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("fixture_shutdown_incomplete", "error", err)
		return srv.Close()
	}
	return nil
}
