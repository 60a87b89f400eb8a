// Package httpapi wires the HTTP transport (Gin) to the reactions services,
// middleware, route handlers and the websocket endpoint. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, logging and
// redaction, panic recovery, metrics, CORS, security headers, vote-token
// validation and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - CORS posture suited to widgets embedded on third-party pages
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-reactions-backend/internal/config"
	"github.com/tbourn/go-reactions-backend/internal/fanout"
	"github.com/tbourn/go-reactions-backend/internal/http/handlers"
	"github.com/tbourn/go-reactions-backend/internal/http/middleware"
	"github.com/tbourn/go-reactions-backend/internal/http/socket"
	"github.com/tbourn/go-reactions-backend/internal/services"
)

// Store is the persistence surface required by the application services.
// Both the gorm store and the mongo store satisfy it.
type Store interface {
	services.ReactionStore
	services.TokenStore
}

// App bundles the services shared by the HTTP routes, the websocket
// endpoint and background jobs.
type App struct {
	Reactions *services.ReactionService
	Tokens    *services.TokenService
	Fanout    *fanout.Router
}

// NewApp wires the token issuer, the vote ledger and the fanout router over
// store. Applied votes are broadcast to websocket subscribers.
func NewApp(store Store, cfg config.Config) *App {
	router := fanout.New()

	tokens := services.NewTokenService(store, cfg.Store.TokenPrefix, cfg.TokenLifetime)
	ledger := services.NewReactionService(store, tokens, cfg.CacheTTL)
	ledger.AggregatePrefix = cfg.Store.AggregatePrefix
	ledger.TitleMaxLen = cfg.TitleMaxLen
	ledger.Broadcaster = socket.NewBroadcaster(router)

	return &App{Reactions: ledger, Tokens: tokens, Fanout: router}
}

// corsHeaders are the request headers a widget page may send.
var corsHeaders = []string{
	"Origin", "Content-Type", "Accept", "If-None-Match",
	middleware.HeaderVoteToken, middleware.HeaderAdminToken,
}

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine: health, metrics, the websocket, optional Swagger UI, and the
// versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. ScopedLogger: request-scoped logger for handlers
//  4. RedactingLogger: structured access logs with token scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. CORS and security headers
//
// The API group additionally applies the per domain+IP rate limiter and
// X-Vote-Token validation; the admin group requires X-Admin-Token.
func RegisterRoutes(r *gin.Engine, app *App, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Request-scoped logger
	r.Use(middleware.ScopedLogger())

	// 4) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (64 KiB; vote payloads are tiny)
	r.Use(limitBody(64 << 10))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Websocket shares the CORS allowlist for its handshake origin check.
	ws := socket.New(app.Reactions, app.Tokens, app.Fanout, socket.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	r.GET("/ws", gin.WrapH(ws.Handler()))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(app.Reactions, app.Tokens, app.Reactions)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByDomainAndIP())
	domains := api.Group("/domains/:domain", rl.Handler(), middleware.VoteToken(middleware.VoteTokenOptions{}))
	{
		domains.POST("/tokens", middleware.NoStore(), h.IssueToken)

		mod := domains.Group("/modules/:module")
		mod.GET("/reactions", h.GetReactions)
		mod.POST("/votes", middleware.NoStore(), h.Vote)
		mod.POST("/votes/retract", middleware.NoStore(), h.Unvote)
	}

	// Administration, renames included, is only reachable when a token is
	// configured.
	if cfg.AdminToken != "" {
		admin := api.Group("/admin/domains/:domain", middleware.AdminToken(cfg.AdminToken), middleware.NoStore())
		{
			admin.GET("/stats", h.DomainStats)
			admin.PUT("/modules/:module/title", h.UpdateTitle)
			admin.POST("/modules/:module/reconcile", h.Reconcile)
			admin.DELETE("/modules/:module", h.RemoveModule)
			admin.DELETE("", h.DropDomain)
		}
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
