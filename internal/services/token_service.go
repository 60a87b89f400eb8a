// Package services – TokenService
//
// This file implements TokenService, which issues and validates the
// short-lived anti-abuse vote tokens that gate vote and unvote calls. A token
// is scoped to one (domain, user) pair; issuing a new one supersedes the old.
// Tokens are not identity credentials.
//
// Observability: Issue and Validate are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reactions-backend/internal/domain"
	"github.com/tbourn/go-reactions-backend/internal/repo"
)

// TokenStore is the persistence contract required by TokenService.
type TokenStore interface {
	FindToken(ctx context.Context, coll, userID string) (*domain.VoteToken, error)
	SaveToken(ctx context.Context, tok domain.VoteToken) error
	PurgeTokens(ctx context.Context, prefix string, before time.Time) (int64, error)
	DropCollection(ctx context.Context, coll string) error
}

// TokenService issues and validates vote tokens.
type TokenService struct {
	Store TokenStore

	// Prefix namespaces token collections per domain.
	Prefix string
	// Lifetime bounds how long an issued token stays valid.
	Lifetime time.Duration

	// Now and NewID are injectable for tests.
	Now   func() time.Time
	NewID func() string

	locks keyedMutex
}

// NewTokenService constructs a TokenService with a wall clock and UUIDv4 ids.
func NewTokenService(store TokenStore, prefix string, lifetime time.Duration) *TokenService {
	return &TokenService{
		Store:    store,
		Prefix:   prefix,
		Lifetime: lifetime,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    func() string { return uuid.NewString() },
	}
}

// Collection returns the token collection for domainID.
func (s *TokenService) Collection(domainID string) string { return s.Prefix + domainID }

// Issue returns the user's current token id, minting and persisting a new
// one when none exists or the stored one has expired.
func (s *TokenService) Issue(ctx context.Context, domainID, userID string) (string, error) {
	tr := otel.Tracer("services/TokenService")
	ctx, span := tr.Start(ctx, "Issue",
		trace.WithAttributes(
			attribute.String("domain", domainID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	d, err := normalizeID(domainID, MaxDomainRunes)
	if err != nil {
		return "", err
	}
	u, err := normalizeID(userID, MaxIDRunes)
	if err != nil {
		return "", err
	}

	// Concurrent issues for one user must agree on a single token.
	unlock := s.locks.Lock(d + "\x00" + u)
	defer unlock()

	coll := s.Collection(d)
	now := s.Now()
	cur, err := s.Store.FindToken(ctx, coll, u)
	switch {
	case err == nil && !cur.Expired(now, s.Lifetime):
		span.SetAttributes(attribute.Bool("token.reused", true))
		return cur.TokenID, nil
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		return "", fmt.Errorf("find token: %w", err)
	}

	tok := domain.VoteToken{Collection: coll, UserID: u, TokenID: s.NewID(), IssuedAt: now}
	if err := s.Store.SaveToken(ctx, tok); err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	span.SetAttributes(attribute.Bool("token.reused", false))
	return tok.TokenID, nil
}

// Validate reports whether presented is the user's current, unexpired token.
// Store failures are returned as errors, never as "no token".
func (s *TokenService) Validate(ctx context.Context, domainID, userID, presented string) (bool, error) {
	tr := otel.Tracer("services/TokenService")
	ctx, span := tr.Start(ctx, "Validate",
		trace.WithAttributes(
			attribute.String("domain", domainID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	d, err := normalizeID(domainID, MaxDomainRunes)
	if err != nil {
		return false, err
	}
	u, err := normalizeID(userID, MaxIDRunes)
	if err != nil {
		return false, err
	}
	if presented == "" {
		return false, nil
	}

	tok, err := s.Store.FindToken(ctx, s.Collection(d), u)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find token: %w", err)
	}
	return tok.TokenID == presented && !tok.Expired(s.Now(), s.Lifetime), nil
}

// Purge deletes tokens that expired more than grace ago across all domains.
// Purged tokens were already invalid, so this never changes a Validate result.
func (s *TokenService) Purge(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := s.Now().Add(-s.Lifetime - grace)
	n, err := s.Store.PurgeTokens(ctx, s.Prefix, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return n, nil
}

// DropDomain deletes every token of domainID.
func (s *TokenService) DropDomain(ctx context.Context, domainID string) error {
	d, err := normalizeID(domainID, MaxDomainRunes)
	if err != nil {
		return err
	}
	return s.Store.DropCollection(ctx, s.Collection(d))
}
