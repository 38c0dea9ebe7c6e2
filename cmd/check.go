package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/meetgate/internal/config"
)

// defaultCheckTimeout bounds the whole check command.
const defaultCheckTimeout = 30 * time.Second

func newCheckCmd() *cobra.Command {
	var (
		configFile string
		debugMode  bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directory connectivity and Webex credentials",
		Long: `Check loads the same configuration as serve, connects to the directory
(binding with the service account if one is configured) and performs a Webex
access token refresh. It reports each result and exits non-zero if any check
fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := newLogger(os.Stderr, "text", debugMode)
			if err != nil {
				return err
			}
			comps, err := buildComponents(cfg, nil, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return runChecks(ctx, cmd.OutOrStdout(), []check{
				{name: "directory", run: comps.authenticator.Ping},
				{
					name:   "webex token refresh",
					run:    comps.tokens.Refresh,
					detail: func() string {
						return "valid until " + comps.tokens.Expiry().Format(time.RFC3339)
					},
				},
			})
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultCheckTimeout, "Overall timeout for all checks")

	return cmd
}

type check struct {
	name   string
	run    func(ctx context.Context) error
	// detail is printed after a successful run
	detail func() string
}

// runChecks runs every check, printing one line per result, and returns an
// error naming the failed checks.
func runChecks(ctx context.Context, out io.Writer, checks []check) error {
	var failed []error
	for _, c := range checks {
		start := time.Now()
		err := c.run(ctx)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			fmt.Fprintf(out, "FAIL  %s (%s): %v\n", c.name, elapsed, err)
			failed = append(failed, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		if c.detail != nil {
			fmt.Fprintf(out, "OK    %s (%s): %s\n", c.name, elapsed, c.detail())
			continue
		}
		fmt.Fprintf(out, "OK    %s (%s)\n", c.name, elapsed)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d checks failed: %w", len(failed), len(checks), errors.Join(failed...))
	}
	return nil
}
