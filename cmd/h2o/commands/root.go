package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/dyluth/h2o/internal/config"
	"github.com/dyluth/h2o/internal/printer"
	"github.com/spf13/cobra"
)

var versionString = "dev"

const usageHint = "Run 'h2o --help' for usage."

// negativeShorthand matches the pflag error for a token like -3.
var negativeShorthand = regexp.MustCompile(`^unknown shorthand flag: '\d' in -\d+$`)

// newRootCmd builds the command tree. The root command runs a simulation;
// audit and watch inspect runs. args are the raw arguments, used to report
// negative numbers as out of range rather than as unknown flags.
func newRootCmd(args []string) *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:   "h2o N GH GO B",
		Short: "Simulate water molecules assembling from hydrogen and oxygen actors",
		Long: `h2o runs 2N hydrogen and N oxygen actors, each on its own goroutine, and
assembles them into N water molecules. Molecules form one at a time: two
hydrogen and one oxygen are admitted as a group, bond together and then wait
until every actor of the run has bonded.

Every phase change is appended to the log file as a numbered line:

  1	: H 1	:started

Arguments:
  N   number of molecules to form (N > 0)
  GH  maximum delay in ms between creating hydrogen actors (0-5000)
  GO  maximum delay in ms between creating oxygen actors (0-5000)
  B   maximum delay in ms each actor spends before bonding (0-5000)

Exit status:
  0    every actor finished
  1    invalid input or configuration
  2    the log file or Redis could not be opened or written
  130  interrupted

Examples:
  # Form three molecules without delays
  h2o 3 0 0 0

  # Reproducible run mirrored to Redis
  h2o 5 100 100 50 --seed 42 --redis-url redis://localhost:6379/0

  # Check the log afterwards
  h2o audit h2o.out

Arguments starting with '-' are read as flags; put them after '--'.`,
		Version:       versionString,
		Args:          exactArgs(4),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, opts, args)
		},
		// Enable strict flag parsing - unknown flags cause an error
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "Log file (default from config, else h2o.out)")
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default h2o.yml if present)")
	flags.Uint64Var(&opts.seed, "seed", 0, "Seed for delay draws (random when omitted)")
	flags.StringVar(&opts.redisURL, "redis-url", "", "Mirror the run log to this Redis server")
	flags.StringVar(&opts.runName, "run", "", "Run name for the Redis mirror (generated when omitted)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Diagnostic log level: trace, debug, info, warn, error or off")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		if !cmd.HasParent() && negativeShorthand.MatchString(err.Error()) {
			if _, perr := config.ParseArgs(positionalArgs(cmd, args)); perr != nil {
				return withCode(ExitInvalid, printer.Error("invalid input", perr.Error(), []string{usageHint}))
			}
		}
		return withCode(ExitInvalid, printer.Error("invalid flags", err.Error(), []string{usageHint}))
	})

	rootCmd.AddCommand(newInitCmd(), newAuditCmd(), newWatchCmd())
	return rootCmd
}

// exactArgs is cobra.ExactArgs with a formatted error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return withCode(ExitInvalid, printer.Error(
				"invalid arguments",
				err.Error(),
				[]string{fmt.Sprintf("Usage:\n  %s", cmd.UseLine())},
			))
		}
		return nil
	}
}

// positionalArgs drops flags and their values from args. Integers, negative
// ones included, are positional.
func positionalArgs(cmd *cobra.Command, args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if _, err := strconv.Atoi(a); err == nil || a == "-" || !strings.HasPrefix(a, "-") {
			out = append(out, a)
			continue
		}
		if a == "--" {
			return append(out, args[i+1:]...)
		}

		name, long := strings.CutPrefix(a, "--")
		if !long {
			name = a[1:]
		}
		// Values attached with '=' or, for shorthands, directly.
		if strings.Contains(name, "=") || (!long && len(name) > 1) {
			continue
		}

		f := cmd.Flags().Lookup(name)
		if !long {
			f = cmd.Flags().ShorthandLookup(name)
		}
		if f != nil && f.NoOptDefVal == "" {
			i++
		}
	}
	return out
}

// Execute runs the CLI against os.Args and returns the process exit code.
// SIGINT and SIGTERM cancel the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	restore := printer.SetOutput(stdout, stderr)
	defer restore()

	rootCmd := newRootCmd(args)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	return exitCode(rootCmd.ExecuteContext(ctx))
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
