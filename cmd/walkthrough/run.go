package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuitang/plantilla-walkthrough/internal/config"
	"github.com/kuitang/plantilla-walkthrough/internal/narrate"
	"github.com/kuitang/plantilla-walkthrough/internal/s3client"
	"github.com/kuitang/plantilla-walkthrough/internal/scenario"
	"github.com/kuitang/plantilla-walkthrough/internal/walkthrough"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the wizard walkthrough (default)",
	Long:  `Launches a browser, walks step 1 of the template wizard and verifies the saved template in the listing.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}
		sc, err := scenario.Load(cfg.ScenarioPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		code, err := runWalkthrough(ctx, cfg, sc, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		exitCode = code
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.Args = cobra.NoArgs
	rootCmd.RunE = runCmd.RunE
}

func runWalkthrough(ctx context.Context, cfg *config.Config, sc scenario.Scenario, out io.Writer) (int, error) {
	cfg.PrintStartupSummary(out)

	opts := []walkthrough.Option{walkthrough.WithOutput(out)}
	if cfg.Upload {
		client, err := s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucketName,
			PublicURL:       cfg.AWSPublicURL,
			UsePathStyle:    cfg.AWSEndpointS3 != "",
		})
		if err != nil {
			return 1, fmt.Errorf("failed to create S3 client: %w", err)
		}
		opts = append(opts, walkthrough.WithUploader(client))
	}

	n := narrate.New(out)
	walkthrough.Banner(ctx, n)

	rep := walkthrough.New(cfg, sc, opts...).Run(ctx)
	walkthrough.PrintSummary(ctx, n, rep)
	return rep.ExitCode(), nil
}
