package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-reactions-backend/docs"
	"github.com/tbourn/go-reactions-backend/internal/config"
	httpapi "github.com/tbourn/go-reactions-backend/internal/http"
	"github.com/tbourn/go-reactions-backend/internal/jobs"
	"github.com/tbourn/go-reactions-backend/internal/observability"
)

const shutdownTimeout = 15 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Migrate bool

	// ready, when set, receives the bound listener address. Tests use it to
	// serve on an ephemeral port.
	ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Long: `Run the reactions server until SIGINT or SIGTERM.

The server exposes the REST API under API_BASE_PATH, the websocket at /ws,
Prometheus metrics at /metrics and, when SWAGGER_ENABLED, the Swagger UI.
Expired vote tokens are purged every TOKEN_PURGE_INTERVAL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Migrate, "migrate", true, "create or update SQL schemas before serving")

	return cmd
}

// newEngine builds the gin engine with compression and all routes.
func newEngine(app *httpapi.App, cfg config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	// Websocket upgrades and scrapes are never compressed.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = Version

	httpapi.RegisterRoutes(r, app, cfg)
	return r
}

func runServe(ctx context.Context, cfg config.Config, opts *ServeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, Version, observability.StoreDriver(cfg.Store.Driver))
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg.Store, opts.Migrate)
	if err != nil {
		return err
	}

	app := httpapi.NewApp(st, cfg)
	srv := &http.Server{
		Handler:           newEngine(app, cfg),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		_ = st.Close(context.Background())
		return err
	}
	if opts.ready != nil {
		opts.ready(ln.Addr().String())
	}

	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	go jobs.NewTokenJanitor(app.Tokens, cfg.TokenPurgeInterval, cfg.TokenPurgeGrace).Run(jobCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("base_path", cfg.APIBasePath).
			Str("store", cfg.Store.Driver).Str("version", Version).Msg("server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server failed")
	}
	stopJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; they end
	// when the process exits.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := st.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("store close")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	return serveErr
}
