package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-reactions-backend/internal/config"
	httpapi "github.com/tbourn/go-reactions-backend/internal/http"
	"github.com/tbourn/go-reactions-backend/internal/jobs"
)

// withApp opens the configured store, runs fn against the wired services and
// closes the store.
func withApp(cmd *cobra.Command, opts *RootOptions, migrate bool, fn func(ctx context.Context, cfg config.Config, app *httpapi.App) error) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(ctx, cfg.Store, migrate)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close(context.Background()) }()
	return fn(ctx, cfg, httpapi.NewApp(st, cfg))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, rootOpts, true, func(_ context.Context, cfg config.Config, _ *httpapi.App) error {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "ok", "driver": cfg.Store.Driver})
			})
		},
	}
}

// NewPurgeTokensCommand creates the purge-tokens command.
func NewPurgeTokensCommand(rootOpts *RootOptions) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "purge-tokens",
		Short: "Delete vote tokens that expired more than the grace period ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, rootOpts, false, func(ctx context.Context, cfg config.Config, app *httpapi.App) error {
				g := cfg.TokenPurgeGrace
				if cmd.Flags().Changed("grace") {
					g = grace
				}
				n, err := jobs.NewTokenJanitor(app.Tokens, 0, g).RunOnce(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"purged": n})
			})
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 0, "override TOKEN_PURGE_GRACE")

	return cmd
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var domainID, moduleID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute a module's counters from stored user reactions",
		Example: `  reactionsd reconcile --domain example.com --module article-42`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, rootOpts, false, func(ctx context.Context, _ config.Config, app *httpapi.App) error {
				snap, err := app.Reactions.Reconcile(ctx, domainID, moduleID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), snap)
			})
		},
	}

	cmd.Flags().StringVar(&domainID, "domain", "", "tenant domain (required)")
	cmd.Flags().StringVar(&moduleID, "module", "", "module id (required)")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("module")

	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var domainID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print module and reaction counts for a domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, rootOpts, false, func(ctx context.Context, _ config.Config, app *httpapi.App) error {
				st, err := app.Reactions.Stats(ctx, domainID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), st)
			})
		},
	}

	cmd.Flags().StringVar(&domainID, "domain", "", "tenant domain (required)")
	_ = cmd.MarkFlagRequired("domain")

	return cmd
}

var errResetNotConfirmed = errors.New("reset deletes every domain's reactions and tokens; pass --yes to confirm")

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all reactions and tokens across every domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errResetNotConfirmed
			}
			return withApp(cmd, rootOpts, false, func(ctx context.Context, _ config.Config, app *httpapi.App) error {
				if err := app.Reactions.Reset(ctx); err != nil {
					return err
				}
				log.Warn().Msg("store reset")
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "reset"})
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")

	return cmd
}
