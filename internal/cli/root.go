// Package cli implements the reactionsd command line: the server and the
// operator maintenance commands that share its configuration and store.
package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-reactions-backend/internal/config"
	"github.com/tbourn/go-reactions-backend/internal/sysutil"
)

// Version is stamped at build time via -ldflags "-X ...cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
}

// NewRootCommand creates the root command for reactionsd.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "reactionsd",
		Short:         "Reactions vote ledger and live fanout server",
		Long:          "reactionsd serves per-module emoji reactions over HTTP and websockets, and carries the maintenance commands for its store.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing file is ignored)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPurgeTokensCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}

// load reads the env file, the environment and installs the global logger
// writing to the command's stderr.
func (o *RootOptions) load(cmd *cobra.Command) (config.Config, error) {
	if o.EnvFile != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(o.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", o.EnvFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	sysutil.SetupLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	return cfg, nil
}
