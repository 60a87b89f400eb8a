// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the transport side of vote tokens. Widgets may send
// the token issued by POST /domains/:domain/tokens in the X-Vote-Token header
// instead of the request body; VoteToken validates the header shape and
// stashes it so handlers can read it via GetVoteToken. Whether the token is
// actually valid for the (domain, user) pair is decided by the vote ledger.
//
// AdminToken gates the administrative routes behind a shared secret carried
// in X-Admin-Token.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// Request headers understood by this package.
const (
	HeaderVoteToken  = "X-Vote-Token"
	HeaderAdminToken = "X-Admin-Token"
)

const ctxKeyVoteToken = "vote.token"

// GetVoteToken returns the vote token stashed by VoteToken. The second return
// value indicates presence.
func GetVoteToken(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyVoteToken)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// VoteTokenOptions configures header validation for VoteToken.
type VoteTokenOptions struct {
	// MaxLen caps the accepted token length. Values <= 0 default to 64.
	MaxLen int
	// Pattern restricts allowed characters. If nil, ^[A-Za-z0-9\-]+$ is used,
	// which covers the UUIDs the token issuer hands out.
	Pattern *regexp.Regexp
}

// VoteToken validates the X-Vote-Token header (if present) and stashes it in
// the request context.
//
// Behavior:
//   - If the header is absent: the middleware is a no-op.
//   - If the header fails validation: responds 400 with a compact error body.
//   - Otherwise the token is available to handlers through GetVoteToken.
func VoteToken(opts VoteTokenOptions) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 64
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9\-]+$`)
	}

	return func(c *gin.Context) {
		tok := c.GetHeader(HeaderVoteToken)
		if tok == "" {
			c.Next()
			return
		}
		if len(tok) > maxLen || !pat.MatchString(tok) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "bad_vote_token",
				"message":    "invalid X-Vote-Token",
			})
			return
		}
		c.Set(ctxKeyVoteToken, tok)
		c.Next()
	}
}

// AdminToken rejects requests whose X-Admin-Token header does not match
// secret. An empty secret rejects everything; callers are expected to not
// mount admin routes at all in that case.
func AdminToken(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(HeaderAdminToken))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    "missing or invalid admin token",
			})
			return
		}
		c.Next()
	}
}
