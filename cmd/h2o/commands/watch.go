package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/h2o/internal/printer"
	"github.com/dyluth/h2o/internal/watch"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	redisURL string
	runName  string
	output   string
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream a mirrored run as it happens",
		Long: `Stream the log of a run mirrored to Redis.

Lines already written are replayed first, then new lines are printed as the
actors log them. The command exits once every actor has finished or the run
stops.

Output Formats:
  default - The run log line format
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Follow a run
  h2o watch --redis-url redis://localhost:6379/0 --run run-1a2b3c4d

  # Export entries as JSON
  h2o watch --redis-url redis://localhost:6379/0 --run run-1a2b3c4d --output=json > run.jsonl`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.redisURL, "redis-url", "", "Redis server holding the mirror (required)")
	cmd.Flags().StringVar(&opts.runName, "run", "", "Run name (required)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "default", "Output format (default or json)")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *watchOptions) error {
	ctx := cmd.Context()

	format, err := watch.ParseOutputFormat(opts.output)
	if err != nil {
		return withCode(ExitInvalid, printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", opts.output),
			[]string{"Valid formats: default, json"},
		))
	}
	if opts.redisURL == "" {
		return withCode(ExitInvalid, printer.Error("missing Redis URL", "--redis-url is required", []string{usageHint}))
	}

	client, err := connectMirror(ctx, opts.redisURL, opts.runName)
	if err != nil {
		return err
	}
	defer client.Close()

	err = watch.StreamEntries(ctx, client, format, cmd.OutOrStdout())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		// Ctrl-C ends a watch; that is not a failure.
		return nil
	case errors.Is(err, watch.ErrRunNotFound):
		return withCode(ExitInvalid, printer.Error(
			fmt.Sprintf("run '%s' not found", opts.runName),
			fmt.Sprintf("Redis at %s holds no run with that name.", opts.redisURL),
			nil,
		))
	default:
		return withCode(ExitResource, printer.Error("watch failed", err.Error(), nil))
	}
}
