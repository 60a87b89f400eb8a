// Reaction HTTP handlers.
//
// This file exposes REST endpoints for the reactions widget:
//   - GET  /domains/{domain}/modules/{module}/reactions         (read, ETag support)
//   - POST /domains/{domain}/tokens                             (issue vote token)
//   - POST /domains/{domain}/modules/{module}/votes             (vote)
//   - POST /domains/{domain}/modules/{module}/votes/retract     (unvote)
//
// Handlers are transport-thin: they bind input, call the ledger and token
// services, and translate results into HTTP responses. Validation rejections
// from the ledger are successful responses carrying outcome "rejected".
package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reactions-backend/internal/domain"
	"github.com/tbourn/go-reactions-backend/internal/http/middleware"
	"github.com/tbourn/go-reactions-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ReactionService defines the ledger operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ReactionService interface {
	// GetReactions returns the aggregate annotated with userID's reaction.
	GetReactions(ctx context.Context, domainID, moduleID, userID string) (domain.Snapshot, error)
	// Vote sets userID's single reaction on a module to option.
	Vote(ctx context.Context, domainID, moduleID, userID, option, token string) (services.Result, error)
	// Unvote retracts userID's reaction when it equals option.
	Unvote(ctx context.Context, domainID, moduleID, userID, option, token string) (services.Result, error)
	// UpdateTitle renames a module.
	UpdateTitle(ctx context.Context, domainID, moduleID, title string) (domain.Snapshot, error)
}

// TokenService issues vote tokens and tears them down per domain.
type TokenService interface {
	Issue(ctx context.Context, domainID, userID string) (string, error)
	DropDomain(ctx context.Context, domainID string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for reactions, tokens and administration.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	reactions ReactionService
	tokens    TokenService
	admin     AdminService
}

// New constructs and returns a Handlers instance bound to the given services.
// admin may be nil when the administrative routes are not mounted.
func New(reactions ReactionService, tokens TokenService, admin AdminService) *Handlers {
	return &Handlers{reactions: reactions, tokens: tokens, admin: admin}
}

//
// DTOs
//

// IssueTokenRequest is the JSON payload for requesting a vote token.
type IssueTokenRequest struct {
	UserID string `json:"userId" binding:"required" example:"visitor-1"`
}

// TokenResponse carries an issued vote token.
type TokenResponse struct {
	Token string `json:"token" example:"0b4c61f2-6a3e-4d2f-9f57-2f7e0c3e9a11"`
}

// VoteRequest is the JSON payload for votes and retractions. Token may be
// omitted when sent in the X-Vote-Token header.
type VoteRequest struct {
	UserID string `json:"userId" binding:"required" example:"visitor-1"`
	Option string `json:"option" binding:"required" example:"👍"`
	Token  string `json:"token"  example:"0b4c61f2-6a3e-4d2f-9f57-2f7e0c3e9a11"`
}

// UpdateTitleRequest is the JSON payload for renaming a module.
type UpdateTitleRequest struct {
	Title string `json:"title" example:"Release notes"`
}

//
// Helpers
//

// snapshotETag derives a weak validator from the snapshot content. The
// encoder sorts map keys, so equal snapshots always hash alike.
func snapshotETag(snap domain.Snapshot) string {
	b, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return `W/"` + hex.EncodeToString(sum[:12]) + `"`
}

// etagMatches reports whether any entity tag in an If-None-Match header
// matches etag. Weak comparison applies, so a W/ prefix on either side is
// ignored.
func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "*" || strings.TrimPrefix(part, "W/") == want {
			return true
		}
	}
	return false
}

// presentedToken prefers the body token and falls back to X-Vote-Token.
func presentedToken(c *gin.Context, body string) string {
	if t := strings.TrimSpace(body); t != "" {
		return t
	}
	t, _ := middleware.GetVoteToken(c)
	return t
}

//
// Handlers
//

// GetReactions godoc
// @ID          getReactions
// @Summary     Read a module's reactions
// @Description Returns the module's option counters, creating the module on first read. When userId is given the caller's own reaction is included. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Reactions
// @Produce     json
//
// @Param       domain         path    string  true  "Tenant domain"               example(example.com)
// @Param       module         path    string  true  "Module id"                   example(article-42)
// @Param       userId         query   string  false "Caller's user id"            example(visitor-1)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
//
// @Success     200  {object} domain.Snapshot
// @Header      200  {string} ETag           "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /domains/{domain}/modules/{module}/reactions [get]
func (h *Handlers) GetReactions(c *gin.Context) {
	snap, err := h.reactions.GetReactions(c.Request.Context(), c.Param("domain"), c.Param("module"), c.Query("userId"))
	if err != nil {
		failService(c, err)
		return
	}

	etag := snapshotETag(snap)
	if etag != "" {
		c.Header("ETag", etag)
		c.Header("Cache-Control", "private, no-cache")
		if etagMatches(c.GetHeader("If-None-Match"), etag) {
			c.Status(http.StatusNotModified)
			return
		}
	}
	ok(c, http.StatusOK, snap)
}

// IssueToken godoc
// @ID          issueToken
// @Summary     Issue a vote token
// @Description Returns the caller's current vote token for the domain, issuing a new one when none exists or the previous one expired.
// @Tags        Tokens
// @Accept      json
// @Produce     json
//
// @Param       domain  path  string                       true  "Tenant domain"  example(example.com)
// @Param       body    body  handlers.IssueTokenRequest   true  "Token request"
//
// @Success     200  {object} handlers.TokenResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /domains/{domain}/tokens [post]
func (h *Handlers) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "userId required")
		return
	}
	tok, err := h.tokens.Issue(c.Request.Context(), c.Param("domain"), req.UserID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, TokenResponse{Token: tok})
}

// Vote godoc
// @ID          vote
// @Summary     Vote on a module
// @Description Sets the caller's single reaction to option, moving it from any previous option. Re-voting the held option is a no-op. An invalid token yields outcome "rejected" with HTTP 200.
// @Tags        Reactions
// @Accept      json
// @Produce     json
//
// @Param       domain        path    string                 true  "Tenant domain"  example(example.com)
// @Param       module        path    string                 true  "Module id"      example(article-42)
// @Param       X-Vote-Token  header  string                 false "Vote token (alternative to body token)"
// @Param       body          body    handlers.VoteRequest   true  "Vote payload"
//
// @Success     200  {object} services.Result
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /domains/{domain}/modules/{module}/votes [post]
func (h *Handlers) Vote(c *gin.Context) {
	h.vote(c, "vote", h.reactions.Vote)
}

// Unvote godoc
// @ID          unvote
// @Summary     Retract a vote
// @Description Retracts the caller's reaction when it equals option. Retracting an option the caller does not hold yields outcome "rejected" with HTTP 200.
// @Tags        Reactions
// @Accept      json
// @Produce     json
//
// @Param       domain        path    string                 true  "Tenant domain"  example(example.com)
// @Param       module        path    string                 true  "Module id"      example(article-42)
// @Param       X-Vote-Token  header  string                 false "Vote token (alternative to body token)"
// @Param       body          body    handlers.VoteRequest   true  "Vote payload"
//
// @Success     200  {object} services.Result
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /domains/{domain}/modules/{module}/votes/retract [post]
func (h *Handlers) Unvote(c *gin.Context) {
	h.vote(c, "unvote", h.reactions.Unvote)
}

type voteFunc func(ctx context.Context, domainID, moduleID, userID, option, token string) (services.Result, error)

func (h *Handlers) vote(c *gin.Context, op string, fn voteFunc) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "userId and option required")
		return
	}
	res, err := fn(c.Request.Context(), c.Param("domain"), c.Param("module"), req.UserID, req.Option, presentedToken(c, req.Token))
	if err != nil {
		middleware.ObserveVote("http", op, "error")
		failService(c, err)
		return
	}
	middleware.ObserveVote("http", op, string(res.Outcome))
	ok(c, http.StatusOK, res)
}
