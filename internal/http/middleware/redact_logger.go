package middleware

// The access log. Bodies are never logged, so tokens sent in JSON stay out of
// it; tokens sent as headers are masked, and ids that look like emails, phone
// numbers or UUIDs are pattern-redacted in queries and header values.

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Scrub patterns. UUIDs go first: the phone pattern would otherwise eat the
// digit runs inside them.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// credentialHeaders are always masked.
var credentialHeaders = []string{
	"Authorization", "Cookie", "Set-Cookie", HeaderVoteToken, HeaderAdminToken,
}

// RedactOptions adds header names to mask on top of the credential headers
// (Authorization, cookies, X-Vote-Token, X-Admin-Token).
type RedactOptions struct {
	MaskHeaders []string
}

func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

type headerScrubber map[string]struct{}

func newHeaderScrubber(extra []string) headerScrubber {
	hs := make(headerScrubber, len(credentialHeaders)+len(extra))
	for _, h := range append(append([]string{}, credentialHeaders...), extra...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hs[h] = struct{}{}
		}
	}
	return hs
}

func (hs headerScrubber) apply(src map[string][]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, vv := range src {
		if _, ok := hs[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = scrub(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger writes one access line per request: route template, scrubbed
// query and headers, status, size, latency, and the domain/module the request
// targeted. Level is info, warn for 4xx, error for 5xx or recorded gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	headers := newHeaderScrubber(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		query := truncate(scrub(c.Request.URL.RawQuery), maxQueryLogLength)
		safeHeaders := headers.apply(c.Request.Header)

		c.Next()

		status := c.Writer.Status()
		reqID := c.Writer.Header().Get("X-Request-ID")
		if reqID == "" {
			reqID = c.GetHeader("X-Request-ID")
		}

		ev := accessEvent(status, c.Errors.String())
		if d := c.Param("domain"); d != "" {
			ev = ev.Str("domain", truncate(d, maxFieldLogLength))
		}
		if m := c.Param("module"); m != "" {
			ev = ev.Str("module_id", truncate(m, maxFieldLogLength))
		}
		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

func accessEvent(status int, errs string) *zerolog.Event {
	switch {
	case errs != "":
		return log.Error().Str("errors", errs)
	case status >= 500:
		return log.Error()
	case status >= 400:
		return log.Warn()
	}
	return log.Info()
}
