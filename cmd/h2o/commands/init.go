package commands

import (
	"errors"

	"github.com/dyluth/h2o/internal/printer"
	"github.com/dyluth/h2o/internal/scaffold"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var force bool
	var dir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter h2o.yml",
		Long: `Write a commented h2o.yml with the default settings.

Runs pick up h2o.yml from the working directory automatically; use --config
to point at another file.

Use --force to overwrite an existing h2o.yml.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := scaffold.Initialize(dir, force)
			if err != nil {
				var exists *scaffold.ExistsError
				if errors.As(err, &exists) {
					return withCode(ExitInvalid, printer.Error(
						"already initialized",
						err.Error(),
						[]string{"Use 'h2o init --force' to overwrite it"},
					))
				}
				return withCode(ExitResource, printer.Error("initialization failed", err.Error(), nil))
			}

			printer.Success("created %s\n", path)
			printer.Info("\nNext steps:\n  1. Adjust %s\n  2. Run 'h2o 3 0 0 0'\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing h2o.yml")
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to write h2o.yml into")
	return cmd
}
