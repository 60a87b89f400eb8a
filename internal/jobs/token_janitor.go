// Package jobs runs background housekeeping for the reactions service.
package jobs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	purgeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_purge_runs_total",
			Help: "Token purge passes partitioned by result (ok|error).",
		},
		[]string{"result"},
	)
	purgedTokens = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokens_purged_total",
		Help: "Expired vote tokens deleted by the janitor.",
	})
)

func init() {
	prometheus.MustRegister(purgeRuns, purgedTokens)
}

// TokenPurger deletes tokens that expired more than grace ago.
type TokenPurger interface {
	Purge(ctx context.Context, grace time.Duration) (int64, error)
}

// TokenJanitor periodically purges expired vote tokens. Purging never
// changes which tokens validate; it only bounds storage growth.
type TokenJanitor struct {
	Tokens   TokenPurger
	Interval time.Duration
	Grace    time.Duration
}

// NewTokenJanitor returns a janitor purging every interval.
func NewTokenJanitor(tokens TokenPurger, interval, grace time.Duration) *TokenJanitor {
	return &TokenJanitor{Tokens: tokens, Interval: interval, Grace: grace}
}

// RunOnce performs a single purge pass.
func (j *TokenJanitor) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.Tokens.Purge(ctx, j.Grace)
	if err != nil {
		purgeRuns.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("token purge failed")
		return 0, err
	}
	purgeRuns.WithLabelValues("ok").Inc()
	purgedTokens.Add(float64(n))
	if n > 0 {
		log.Info().Int64("purged", n).Dur("grace", j.Grace).Msg("expired vote tokens purged")
	}
	return n, nil
}

// Run purges on every tick until ctx is done. A non-positive interval
// disables the janitor and Run returns immediately. Failed passes are
// logged and retried on the next tick.
func (j *TokenJanitor) Run(ctx context.Context) {
	if j == nil || j.Tokens == nil || j.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}
