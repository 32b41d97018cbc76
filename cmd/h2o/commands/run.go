package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/h2o/internal/config"
	"github.com/dyluth/h2o/internal/ledger"
	"github.com/dyluth/h2o/internal/logging"
	"github.com/dyluth/h2o/internal/printer"
	"github.com/dyluth/h2o/internal/reactor"
	"github.com/dyluth/h2o/pkg/runlog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// redisTimeout bounds mirror calls made outside the run context.
const redisTimeout = 5 * time.Second

var errNotStarted = errors.New("run did not start")

type runOptions struct {
	output     string
	configPath string
	seed       uint64
	redisURL   string
	runName    string
	logLevel   string
}

// settings is the merged view of config file and flags.
type settings struct {
	output   string
	seed     *uint64
	redisURL string
	runName  string
	logLevel string
}

func runSimulation(cmd *cobra.Command, opts *runOptions, args []string) error {
	ctx := cmd.Context()

	// Arguments are checked before anything touches the filesystem.
	params, err := config.ParseArgs(args)
	if err != nil {
		return withCode(ExitInvalid, printer.Error("invalid input", err.Error(), []string{usageHint}))
	}

	s, err := loadSettings(cmd, opts)
	if err != nil {
		return withCode(ExitInvalid, printer.Error("invalid configuration", err.Error(), []string{
			"Fix the config file or pass --config with another path",
		}))
	}

	logger, err := logging.InitLogger("h2o", s.logLevel)
	if err != nil {
		return withCode(ExitInvalid, printer.Error("invalid log level", err.Error(), []string{
			"Valid levels: trace, debug, info, warn, error, off",
		}))
	}

	td := &reactor.Teardown{}
	// Covers early returns; the normal path runs it explicitly below.
	defer func() { _ = td.Run() }()

	// runErr stays set until the reactor returns, so an early return marks
	// a mirrored run as failed.
	runErr := errNotStarted

	var mirrors []ledger.Mirror
	if s.redisURL != "" {
		mirror, err := openMirror(ctx, s, params)
		if err != nil {
			return err
		}
		td.AddCloser("redis", mirror)
		td.Add("run status", func() error {
			finishMirror(mirror, runErr, logger)
			return nil
		})
		mirrors = append(mirrors, mirror)
	}

	journal, err := ledger.Create(s.output, mirrors...)
	if err != nil {
		return withCode(ExitResource, printer.ErrorWithContext(
			"cannot open log file",
			err.Error(),
			map[string]string{"File": s.output},
			[]string{"Check that the directory exists and is writable, or pass --output"},
		))
	}
	td.AddCloser("log file", journal)

	ropts := []reactor.Option{reactor.WithLogger(logger)}
	if s.seed != nil {
		ropts = append(ropts, reactor.WithSeed(*s.seed))
	}

	var summary *reactor.Summary
	summary, runErr = runReactor(ctx, params, journal, ropts)

	logger.Debug().Msg("tearing down")
	tdErr := td.Run()

	return report(s, summary, journal.Len(), runErr, tdErr)
}

func runReactor(ctx context.Context, params *config.Params, journal *ledger.Ledger, opts []reactor.Option) (*reactor.Summary, error) {
	r, err := reactor.New(params, journal, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// loadSettings merges the config file with flags. Flags win; for the log
// level the H2O_LOG_LEVEL environment variable sits between the two.
func loadSettings(cmd *cobra.Command, opts *runOptions) (*settings, error) {
	var cfg *config.File
	var err error
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.LoadOrDefault(config.DefaultPath)
	}
	if err != nil {
		return nil, err
	}

	s := &settings{
		output:   cfg.Output,
		seed:     cfg.Seed,
		logLevel: logging.ResolveLevel(cfg.Log.Level),
	}
	if cfg.Redis != nil {
		s.redisURL = cfg.Redis.URL
		s.runName = cfg.Redis.Run
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		s.output = opts.output
	}
	if flags.Changed("seed") {
		seed := opts.seed
		s.seed = &seed
	}
	if flags.Changed("redis-url") {
		s.redisURL = opts.redisURL
	}
	if flags.Changed("run") {
		s.runName = opts.runName
	}
	if flags.Changed("log-level") {
		s.logLevel = opts.logLevel
	}

	if s.output == "" {
		return nil, fmt.Errorf("output file cannot be empty")
	}
	if s.runName != "" && s.redisURL == "" {
		return nil, fmt.Errorf("--run requires a Redis URL")
	}
	if s.redisURL != "" && s.runName == "" {
		s.runName = "run-" + uuid.NewString()[:8]
	}
	return s, nil
}

// openMirror connects to Redis and marks the run as running.
func openMirror(ctx context.Context, s *settings, params *config.Params) (*runlog.Client, error) {
	redisOpts, err := redis.ParseURL(s.redisURL)
	if err != nil {
		return nil, withCode(ExitInvalid, printer.Error(
			"invalid Redis URL",
			err.Error(),
			[]string{"Expected a URL like redis://localhost:6379/0"},
		))
	}

	client, err := runlog.NewClient(redisOpts, s.runName)
	if err != nil {
		return nil, withCode(ExitInvalid, printer.Error("invalid run name", err.Error(), nil))
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, withCode(ExitResource, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", s.redisURL),
			map[string]string{"Error": err.Error()},
			[]string{"Check that Redis is running and reachable", "Run without --redis-url to skip mirroring"},
		))
	}

	info := &runlog.RunInfo{
		Name:            s.runName,
		Molecules:       params.Molecules,
		HydrogenDelayMs: params.HydrogenDelayMs,
		OxygenDelayMs:   params.OxygenDelayMs,
		BondDelayMs:     params.BondDelayMs,
		Status:          runlog.RunStatusRunning,
		StartedAtMs:     time.Now().UnixMilli(),
	}
	if err := client.SetInfo(pingCtx, info); err != nil {
		client.Close()
		return nil, withCode(ExitResource, printer.Error("failed to record run in Redis", err.Error(), nil))
	}

	printer.Step("mirroring run %s to %s\n", s.runName, s.redisURL)
	return client, nil
}

// finishMirror records the final run status. It runs after the run context
// may have been cancelled, so it uses its own deadline.
func finishMirror(client *runlog.Client, runErr error, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	info, err := client.GetInfo(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("run", client.RunName()).Msg("failed to read run info")
		return
	}

	switch {
	case runErr == nil:
		info.Status = runlog.RunStatusFinished
	case errors.Is(runErr, reactor.ErrInterrupted):
		info.Status = runlog.RunStatusInterrupted
	default:
		info.Status = runlog.RunStatusFailed
	}
	info.FinishedAtMs = time.Now().UnixMilli()

	if err := client.SetInfo(ctx, info); err != nil {
		logger.Warn().Err(err).Str("run", client.RunName()).Msg("failed to record final run status")
	}
}

func report(s *settings, summary *reactor.Summary, lines int, runErr, tdErr error) error {
	var writeErr *ledger.WriteError

	switch {
	case runErr == nil && tdErr == nil:
		printer.Success("%d molecules formed by %d actors in %s\n",
			summary.Molecules, summary.Actors, summary.Elapsed.Round(time.Millisecond))
		printer.Info("%d lines written to %s\n", lines, s.output)
		return nil

	case runErr == nil:
		return withCode(ExitResource, printer.ErrorWithContext(
			"failed to release resources",
			tdErr.Error(),
			map[string]string{"File": s.output},
			nil,
		))

	case errors.Is(runErr, reactor.ErrInterrupted):
		printer.Warning("interrupted after %d lines; %s is incomplete\n", lines, s.output)
		return withCode(ExitInterrupted, runErr)

	case errors.As(runErr, &writeErr), errors.Is(runErr, ledger.ErrClosed):
		return withCode(ExitResource, printer.ErrorWithContext(
			"failed to write run log",
			runErr.Error(),
			map[string]string{"File": s.output, "Lines written": fmt.Sprint(lines)},
			nil,
		))

	default:
		return withCode(ExitInvalid, printer.Error("simulation failed", runErr.Error(), nil))
	}
}
