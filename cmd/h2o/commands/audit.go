package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/h2o/internal/audit"
	"github.com/dyluth/h2o/internal/config"
	"github.com/dyluth/h2o/internal/printer"
	"github.com/dyluth/h2o/pkg/runlog"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type auditOptions struct {
	molecules int
	output    string
	redisURL  string
	runName   string
}

func newAuditCmd() *cobra.Command {
	opts := &auditOptions{}

	cmd := &cobra.Command{
		Use:   "audit [FILE]",
		Short: "Check a run log for protocol violations",
		Long: `Check a run log against the rules every correct run satisfies.

The audit verifies that sequence numbers are contiguous, that every actor
passes through its phases in order, that molecules are released only when two
hydrogen and one oxygen are waiting, that molecules bond one at a time with
exactly their three members, and that no actor finishes before every actor
has bonded.

The log is read from FILE (default h2o.out), or from a Redis mirror when
--redis-url and --run are given.

Output Formats:
  default - Molecule table followed by any violations
  json    - The full report as JSON

Examples:
  # Audit the default log file
  h2o audit

  # Audit a mirrored run
  h2o audit --redis-url redis://localhost:6379/0 --run run-1a2b3c4d --output=json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return exactArgs(1)(cmd, args)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, opts, args)
		},
	}

	cmd.Flags().IntVarP(&opts.molecules, "molecules", "n", 0, "Expected molecule count (inferred from the log when 0)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "default", "Output format (default or json)")
	cmd.Flags().StringVar(&opts.redisURL, "redis-url", "", "Read the log from this Redis server")
	cmd.Flags().StringVar(&opts.runName, "run", "", "Run name in Redis (required with --redis-url)")
	return cmd
}

func runAudit(cmd *cobra.Command, opts *auditOptions, args []string) error {
	if opts.output != "default" && opts.output != "json" {
		return withCode(ExitInvalid, printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", opts.output),
			[]string{"Valid formats: default, json"},
		))
	}
	if opts.molecules < 0 {
		return withCode(ExitInvalid, printer.Error("invalid molecule count", "--molecules must be >= 0", nil))
	}

	var entries []runlog.Entry
	var err error
	molecules := opts.molecules

	if opts.redisURL != "" {
		if len(args) > 0 {
			return withCode(ExitInvalid, printer.Error(
				"conflicting inputs",
				"FILE and --redis-url cannot be used together",
				[]string{usageHint},
			))
		}
		var info *runlog.RunInfo
		entries, info, err = mirroredEntries(cmd.Context(), opts.redisURL, opts.runName)
		if err != nil {
			return err
		}
		if molecules == 0 {
			molecules = info.Molecules
		}
	} else {
		path := config.DefaultOutput
		if len(args) == 1 {
			path = args[0]
		}
		entries, err = fileEntries(path)
		if err != nil {
			return err
		}
	}

	report := audit.Check(entries, molecules)

	out := cmd.OutOrStdout()
	if opts.output == "json" {
		if err := audit.FormatJSON(out, report); err != nil {
			return withCode(ExitResource, err)
		}
	} else {
		audit.FormatText(out, report)
	}

	if !report.OK() {
		return withCode(ExitInvalid, fmt.Errorf("%d violations", len(report.Violations)))
	}
	return nil
}

func fileEntries(path string) ([]runlog.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, withCode(ExitResource, printer.ErrorWithContext(
			"cannot open log file",
			err.Error(),
			map[string]string{"File": path},
			[]string{"Run a simulation first:\n  h2o 3 0 0 0"},
		))
	}
	defer f.Close()

	entries, err := audit.Parse(f)
	if err != nil {
		return nil, withCode(ExitInvalid, printer.ErrorWithContext(
			"malformed log file",
			err.Error(),
			map[string]string{"File": path},
			nil,
		))
	}
	return entries, nil
}

func mirroredEntries(ctx context.Context, redisURL, runName string) ([]runlog.Entry, *runlog.RunInfo, error) {
	client, err := connectMirror(ctx, redisURL, runName)
	if err != nil {
		return nil, nil, err
	}
	defer client.Close()

	info, err := client.GetInfo(ctx)
	if err != nil {
		if runlog.IsNotFound(err) {
			return nil, nil, withCode(ExitInvalid, printer.Error(
				fmt.Sprintf("run '%s' not found", runName),
				fmt.Sprintf("Redis at %s holds no run with that name.", redisURL),
				nil,
			))
		}
		return nil, nil, withCode(ExitResource, printer.Error("failed to read run info", err.Error(), nil))
	}

	entries, err := client.Entries(ctx)
	if err != nil {
		return nil, nil, withCode(ExitResource, printer.Error("failed to read run log", err.Error(), nil))
	}
	return entries, info, nil
}

// connectMirror opens a read client for a mirrored run and checks the
// connection.
func connectMirror(ctx context.Context, redisURL, runName string) (*runlog.Client, error) {
	if runName == "" {
		return nil, withCode(ExitInvalid, printer.Error(
			"missing run name",
			"--run is required with --redis-url",
			[]string{"The run name is printed when a mirrored simulation starts"},
		))
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, withCode(ExitInvalid, printer.Error(
			"invalid Redis URL",
			err.Error(),
			[]string{"Expected a URL like redis://localhost:6379/0"},
		))
	}

	client, err := runlog.NewClient(redisOpts, runName)
	if err != nil {
		return nil, withCode(ExitInvalid, printer.Error("invalid run name", err.Error(), nil))
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, withCode(ExitResource, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			map[string]string{"Error": err.Error()},
			nil,
		))
	}
	return client, nil
}
