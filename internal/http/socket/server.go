// Package socket serves the reactions widget over a websocket.
//
// Clients send flat JSON frames ({type, requestId, domain, moduleId, userId,
// option, token}) and receive {type, requestId, payload} frames. Subscribing
// to a module joins its fanout group; every applied vote on that module is
// then pushed as a reactions.update frame, the voter's own connection
// included.
//
// Each connection has a frame rate budget, a maximum frame size, and a
// budget of consecutive undecodable frames after which it is closed.
package socket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/websocket"

	"github.com/tbourn/go-reactions-backend/internal/domain"
	"github.com/tbourn/go-reactions-backend/internal/fanout"
	"github.com/tbourn/go-reactions-backend/internal/http/middleware"
	"github.com/tbourn/go-reactions-backend/internal/services"
)

const (
	defaultMaxFrameBytes   = 16 * 1024
	defaultFramesPerSecond = 20
	defaultFrameBurst      = 40
	defaultWriteTimeout    = 5 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	maxDecodeErrorsPerConn = 3
)

// Ledger is the subset of the vote ledger reachable over the socket.
type Ledger interface {
	GetReactions(ctx context.Context, domainID, moduleID, userID string) (domain.Snapshot, error)
	Vote(ctx context.Context, domainID, moduleID, userID, option, token string) (services.Result, error)
	Unvote(ctx context.Context, domainID, moduleID, userID, option, token string) (services.Result, error)
}

// TokenIssuer hands out vote tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, domainID, userID string) (string, error)
}

// Options tunes per-connection limits. Zero values take defaults.
type Options struct {
	// AllowedOrigins restricts the Origin header of the handshake. Empty
	// allows every origin, matching the CORS allow-all mode.
	AllowedOrigins []string
	// MaxFrameBytes caps a single inbound frame.
	MaxFrameBytes int
	// FramesPerSecond and FrameBurst shape the per-connection token bucket.
	FramesPerSecond float64
	FrameBurst      int
	// WriteTimeout bounds every outbound frame write.
	WriteTimeout time.Duration
	// RequestTimeout bounds each ledger call made on behalf of a frame.
	RequestTimeout time.Duration
}

// Server dispatches websocket frames to the ledger and the token issuer.
type Server struct {
	ledger  Ledger
	tokens  TokenIssuer
	router  *fanout.Router
	limiter *middleware.RateLimiter
	opts    Options
	origins map[string]struct{}
}

// New returns a Server. router must be the same Router the ledger's
// Broadcaster publishes to.
func New(ledger Ledger, tokens TokenIssuer, router *fanout.Router, opts Options) *Server {
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = defaultMaxFrameBytes
	}
	if opts.FramesPerSecond <= 0 {
		opts.FramesPerSecond = defaultFramesPerSecond
	}
	if opts.FrameBurst <= 0 {
		opts.FrameBurst = defaultFrameBurst
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	var origins map[string]struct{}
	if len(opts.AllowedOrigins) > 0 {
		origins = make(map[string]struct{}, len(opts.AllowedOrigins))
		for _, o := range opts.AllowedOrigins {
			origins[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
		}
	}
	return &Server{
		ledger:  ledger,
		tokens:  tokens,
		router:  router,
		limiter: middleware.NewRateLimiter(opts.FramesPerSecond, opts.FrameBurst, nil),
		opts:    opts,
		origins: origins,
	}
}

// Handler returns the http.Handler that upgrades and serves connections.
func (s *Server) Handler() http.Handler {
	return websocket.Server{
		Handshake: s.handshake,
		Handler:   s.serve,
	}
}

// handshake enforces the origin allowlist. Non-browser clients that send no
// Origin are accepted.
func (s *Server) handshake(cfg *websocket.Config, r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return err
	}
	cfg.Origin = u
	if s.origins == nil {
		return nil
	}
	if _, ok := s.origins[strings.ToLower(strings.TrimRight(origin, "/"))]; !ok {
		return errors.New("origin not allowed")
	}
	return nil
}

func (s *Server) serve(conn *websocket.Conn) {
	conn.MaxPayloadBytes = s.opts.MaxFrameBytes
	p := newPeer(uuid.NewString(), conn, s.opts.WriteTimeout)
	lg := log.With().Str("conn_id", p.id).Logger()
	connections.Inc()
	defer func() {
		s.router.Drop(p)
		connections.Dec()
		_ = conn.Close()
	}()

	decodeErrors := 0
	for {
		var f inFrame
		if err := websocket.JSON.Receive(conn, &f); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				frames.WithLabelValues("oversized").Inc()
				_ = p.writeError("", codeInvalidArgument, "frame too large")
				continue
			}
			decodeErrors++
			frames.WithLabelValues("invalid").Inc()
			lg.Debug().Err(err).Int("decode_errors", decodeErrors).Msg("websocket decode failed")
			if werr := p.writeError("", codeInvalidArgument, "invalid frame payload"); werr != nil {
				return
			}
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if !s.limiter.Allow(p.id) {
			frames.WithLabelValues("rate_limited").Inc()
			_ = p.writeError(f.RequestID, codeRateLimited, "rate limit exceeded")
			lg.Warn().Msg("websocket frame rate exceeded; closing")
			return
		}
		frames.WithLabelValues(frameLabel(f.Type)).Inc()

		ctx, cancel := context.WithTimeout(conn.Request().Context(), s.opts.RequestTimeout)
		s.dispatch(ctx, p, lg, f)
		cancel()
	}
}

func (s *Server) dispatch(ctx context.Context, p *peer, lg zerolog.Logger, f inFrame) {
	switch f.Type {
	case typeSubscribe, typeInitialization:
		s.handleSubscribe(ctx, p, lg, f)
	case typeUnsubscribe:
		s.handleUnsubscribe(p, f)
	case typeGetReactions:
		s.handleGetReactions(ctx, p, lg, f)
	case typeGetToken:
		s.handleGetToken(ctx, p, lg, f)
	case typeVote:
		s.handleVote(ctx, p, lg, f, "vote", s.ledger.Vote)
	case typeUnvote:
		s.handleVote(ctx, p, lg, f, "unvote", s.ledger.Unvote)
	default:
		_ = p.writeError(f.RequestID, codeInvalidArgument, "unsupported frame type")
	}
}

// handleSubscribe joins the module's group and replies with its current
// reactions. Joining first means no update published after the read can be
// missed; an update may arrive just before the reactions reply.
func (s *Server) handleSubscribe(ctx context.Context, p *peer, lg zerolog.Logger, f inFrame) {
	group := fanout.GroupOf(strings.TrimSpace(f.Domain), strings.TrimSpace(f.ModuleID))
	added := s.router.Subscribe(group, p)
	snap, err := s.ledger.GetReactions(ctx, f.Domain, f.ModuleID, f.UserID)
	if err != nil {
		if added {
			s.router.Unsubscribe(group, p)
		}
		s.replyError(p, lg, f, err)
		return
	}
	_ = p.writeFrame(Frame{Type: TypeReactions, RequestID: f.RequestID, Payload: mustJSON(snap)})
}

func (s *Server) handleUnsubscribe(p *peer, f inFrame) {
	d, m := strings.TrimSpace(f.Domain), strings.TrimSpace(f.ModuleID)
	if d == "" || m == "" {
		_ = p.writeError(f.RequestID, codeInvalidArgument, "domain and moduleId are required")
		return
	}
	s.router.Unsubscribe(fanout.GroupOf(d, m), p)
}

func (s *Server) handleGetReactions(ctx context.Context, p *peer, lg zerolog.Logger, f inFrame) {
	snap, err := s.ledger.GetReactions(ctx, f.Domain, f.ModuleID, f.UserID)
	if err != nil {
		s.replyError(p, lg, f, err)
		return
	}
	_ = p.writeFrame(Frame{Type: TypeReactions, RequestID: f.RequestID, Payload: mustJSON(snap)})
}

func (s *Server) handleGetToken(ctx context.Context, p *peer, lg zerolog.Logger, f inFrame) {
	tok, err := s.tokens.Issue(ctx, f.Domain, f.UserID)
	if err != nil {
		s.replyError(p, lg, f, err)
		return
	}
	_ = p.writeFrame(Frame{Type: TypeToken, RequestID: f.RequestID, Payload: mustJSON(tokenPayload{Token: tok})})
}

type voteFunc func(ctx context.Context, domainID, moduleID, userID, option, token string) (services.Result, error)

func (s *Server) handleVote(ctx context.Context, p *peer, lg zerolog.Logger, f inFrame, op string, fn voteFunc) {
	res, err := fn(ctx, f.Domain, f.ModuleID, f.UserID, f.Option, f.Token)
	if err != nil {
		middleware.ObserveVote("ws", op, "error")
		s.replyError(p, lg, f, err)
		return
	}
	middleware.ObserveVote("ws", op, string(res.Outcome))
	_ = p.writeFrame(Frame{Type: TypeVoteResult, RequestID: f.RequestID, Payload: mustJSON(res)})
}

// replyError maps a service error to an error frame. Only unexpected
// failures are logged.
func (s *Server) replyError(p *peer, lg zerolog.Logger, f inFrame, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidOption):
		_ = p.writeError(f.RequestID, codeInvalidOption, "invalid option")
	case errors.Is(err, services.ErrInvalidInput):
		_ = p.writeError(f.RequestID, codeInvalidArgument, "invalid domain, module or user id")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		_ = p.writeError(f.RequestID, codeUnavailable, "store unavailable")
	default:
		lg.Error().Err(err).Str("type", f.Type).Str("domain", f.Domain).Str("module_id", f.ModuleID).
			Msg("websocket request failed")
		_ = p.writeError(f.RequestID, codeInternal, "internal error")
	}
}

func frameLabel(t string) string {
	switch t {
	case typeSubscribe, typeInitialization, typeUnsubscribe, typeGetToken, typeGetReactions, typeVote, typeUnvote:
		return t
	}
	return "unknown"
}
