// Package cli implements the formload command line.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/logging"
)

var version = "0.1.0"

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	logLevel  string
	logFormat string

	logger *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:     "formload",
		Short:   "Load test a form-based order processing application",
		Version: version,
		Long: `formload drives many concurrent synthetic users through the pages of a
form-based order processing application. Each user holds its own session,
opens lists, looks up customers and creates and posts sales orders while
every user-visible step is timed as a named transaction.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{Level: opts.logLevel, Format: opts.logFormat})
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "Log format: console or json")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newScenariosCmd())
	cmd.AddCommand(newServeCmd(opts))

	return cmd
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main(). It only needs to happen once.
func Execute() error {
	return NewRootCmd().Execute()
}

// log returns the logger built for the running command.
func (o *globalOptions) log() *zap.Logger {
	return logging.OrNop(o.logger)
}
