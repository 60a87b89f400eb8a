// Package services – ReactionService
//
// This file implements ReactionService, the vote ledger. It keeps each
// module's option counters and every user's single reaction mutually
// consistent under concurrent votes:
//
//   - counter updates are atomic store-side increments, never
//     read-modify-write in the process;
//   - the previous reaction is read from the store (not the cache) under a
//     per-(domain, module, user) lock, and a failed read aborts the call
//     before any write;
//   - once the first write starts the remaining writes run on a detached
//     context, so a client disconnect cannot leave half a vote behind;
//   - every write path invalidates the cache keys it can stale, also when a
//     later write fails.
//
// Applied votes and unvotes are handed to the Broadcaster. Rejections
// (invalid token, unvote of an option not held) change nothing and are not
// broadcast.
//
// Observability: public methods are OpenTelemetry-instrumented; consistency
// violations are logged at error level with the domain and module.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reactions-backend/internal/cache"
	"github.com/tbourn/go-reactions-backend/internal/domain"
	"github.com/tbourn/go-reactions-backend/internal/repo"
)

// ReactionStore is the persistence contract required by ReactionService.
// Collections are supplied by the caller; implementations are domain-agnostic.
type ReactionStore interface {
	FindModule(ctx context.Context, coll, moduleID string) (*domain.Module, error)
	InsertModule(ctx context.Context, coll, moduleID string) (*domain.Module, error)
	SetModuleTitle(ctx context.Context, coll, moduleID, title string) error
	RemoveModule(ctx context.Context, coll, moduleID string) error

	// IncrementOption must be a single atomic store operation. Negative
	// deltas must fail with repo.ErrNegativeCount instead of going below zero.
	IncrementOption(ctx context.Context, coll, moduleID, option string, delta int64) error
	ReplaceCounters(ctx context.Context, coll, moduleID string, counts map[string]int64) error

	FindReaction(ctx context.Context, coll, moduleID, userID string) (*domain.UserReaction, error)
	UpsertReaction(ctx context.Context, coll, moduleID, userID, reaction string) error
	RemoveReaction(ctx context.Context, coll, moduleID, userID string) error
	CountReactions(ctx context.Context, coll, moduleID string) (map[string]int64, error)

	Stats(ctx context.Context, coll string) (domain.CollectionStats, error)
	DropCollection(ctx context.Context, coll string) error
	DropAll(ctx context.Context) error
}

// TokenValidator checks a presented vote token.
type TokenValidator interface {
	Validate(ctx context.Context, domainID, userID, presented string) (bool, error)
}

// Broadcaster publishes a module's new aggregate to its subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, snap domain.Snapshot)
}

// Outcome tags the result of a vote or unvote.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRejected  Outcome = "rejected"
)

// Rejection reasons.
const (
	ReasonInvalidToken = "invalid_token"
	ReasonNotHeld      = "reaction_not_held"
)

// Result is the outcome of a vote or unvote. Reactions is nil on rejection.
type Result struct {
	Outcome   Outcome          `json:"outcome" example:"applied"`
	Reason    string           `json:"reason,omitempty"`
	Reactions *domain.Snapshot `json:"reactions,omitempty"`
}

const (
	kindAggregate = "agg"
	kindUser      = "usr"
	kindLock      = "lock"
)

// ReactionService is the vote ledger.
type ReactionService struct {
	Store       ReactionStore
	Tokens      TokenValidator
	Broadcaster Broadcaster // optional

	// AggregatePrefix namespaces module collections per domain.
	AggregatePrefix string
	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int

	aggregates *cache.Cache[domain.Module]
	reactions  *cache.Cache[string]
	locks      keyedMutex
}

// NewReactionService constructs a ReactionService whose caches keep entries
// for ttl.
func NewReactionService(store ReactionStore, tokens TokenValidator, ttl time.Duration) *ReactionService {
	return &ReactionService{
		Store:           store,
		Tokens:          tokens,
		AggregatePrefix: "reactions_",
		TitleMaxLen:     255,
		aggregates: cache.New[domain.Module]("aggregates", ttl,
			cache.WithClone(func(m domain.Module) domain.Module { return m.Clone() })),
		reactions: cache.New[string]("user_reactions", ttl),
	}
}

// Collection returns the aggregate collection for domainID.
func (s *ReactionService) Collection(domainID string) string { return s.AggregatePrefix + domainID }

// GetAggregate returns the module's aggregate, creating an empty module when
// none exists. It never reports "not found".
func (s *ReactionService) GetAggregate(ctx context.Context, domainID, moduleID string) (domain.Snapshot, error) {
	tr := otel.Tracer("services/ReactionService")
	ctx, span := tr.Start(ctx, "GetAggregate", trace.WithAttributes(scopeAttrs(domainID, moduleID)...))
	defer span.End()

	d, m, err := normalizeScope(domainID, moduleID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return s.aggregate(ctx, d, m)
}

// GetUserReaction returns the user's current option, or "" when the user has
// no reaction on the module. It does not create records.
func (s *ReactionService) GetUserReaction(ctx context.Context, domainID, moduleID, userID string) (string, error) {
	tr := otel.Tracer("services/ReactionService")
	ctx, span := tr.Start(ctx, "GetUserReaction", trace.WithAttributes(userAttrs(domainID, moduleID, userID)...))
	defer span.End()

	d, m, err := normalizeScope(domainID, moduleID)
	if err != nil {
		return "", err
	}
	u, err := normalizeID(userID, MaxIDRunes)
	if err != nil {
		return "", err
	}
	return s.userReaction(ctx, d, m, u)
}

// GetReactions returns the aggregate, annotated with the user's reaction when
// userID is non-empty.
func (s *ReactionService) GetReactions(ctx context.Context, domainID, moduleID, userID string) (domain.Snapshot, error) {
	tr := otel.Tracer("services/ReactionService")
	ctx, span := tr.Start(ctx, "GetReactions", trace.WithAttributes(userAttrs(domainID, moduleID, userID)...))
	defer span.End()

	d, m, err := normalizeScope(domainID, moduleID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap, err := s.aggregate(ctx, d, m)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return snap, nil
	}
	u, err := normalizeID(userID, MaxIDRunes)
	if err != nil {
		return domain.Snapshot{}, err
	}
	r, err := s.userReaction(ctx, d, m, u)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.UserID, snap.Reaction = u, r
	return snap, nil
}

// Vote records option as the user's reaction, moving the user's previous vote
// if there was one. Re-voting the held option is OutcomeUnchanged.
func (s *ReactionService) Vote(ctx context.Context, domainID, moduleID, userID, option, token string) (Result, error) {
	tr := otel.Tracer("services/ReactionService")
	ctx, span := tr.Start(ctx, "Vote", trace.WithAttributes(userAttrs(domainID, moduleID, userID)...))
	defer span.End()

	d, m, u, opt, err := normalizeVote(domainID, moduleID, userID, option)
	if err != nil {
		return Result{}, err
	}
	if ok, err := s.Tokens.Validate(ctx, d, u, token); err != nil {
		return Result{}, fmt.Errorf("validate token: %w", err)
	} else if !ok {
		span.SetAttributes(attribute.String("outcome", string(OutcomeRejected)))
		return Result{Outcome: OutcomeRejected, Reason: ReasonInvalidToken}, nil
	}

	unlock := s.locks.Lock(cache.Key(kindLock, d, m, u))
	defer unlock()

	coll := s.Collection(d)
	prev, err := s.storedReaction(ctx, coll, m, u)
	if err != nil {
		return Result{}, s.fail(span, d, m, err)
	}
	if prev == opt {
		snap, err := s.annotated(ctx, d, m, u, opt)
		if err != nil {
			return Result{}, err
		}
		span.SetAttributes(attribute.String("outcome", string(OutcomeUnchanged)))
		return Result{Outcome: OutcomeUnchanged, Reactions: &snap}, nil
	}

	wctx := context.WithoutCancel(ctx)
	err = s.applyVote(wctx, coll, m, u, prev, opt)
	s.invalidate(d, m, u)
	if err != nil {
		return Result{}, s.fail(span, d, m, err)
	}

	snap, err := s.annotated(wctx, d, m, u, opt)
	if err != nil {
		return Result{}, err
	}
	s.broadcast(wctx, snap)
	span.SetAttributes(attribute.String("outcome", string(OutcomeApplied)))
	return Result{Outcome: OutcomeApplied, Reactions: &snap}, nil
}

func (s *ReactionService) applyVote(ctx context.Context, coll, moduleID, userID, prev, option string) error {
	if err := s.Store.IncrementOption(ctx, coll, moduleID, option, 1); err != nil {
		return fmt.Errorf("increment %q: %w", option, err)
	}
	if prev != "" {
		if err := s.Store.IncrementOption(ctx, coll, moduleID, prev, -1); err != nil {
			return fmt.Errorf("decrement %q: %w", prev, err)
		}
	}
	if err := s.Store.UpsertReaction(ctx, coll, moduleID, userID, option); err != nil {
		return fmt.Errorf("record reaction: %w", err)
	}
	return nil
}

// Unvote retracts the user's reaction. The presented option must equal the
// held one; otherwise the call is rejected without effect. The returned
// snapshot echoes option as Reaction for the caller's bookkeeping.
func (s *ReactionService) Unvote(ctx context.Context, domainID, moduleID, userID, option, token string) (Result, error) {
	tr := otel.Tracer("services/ReactionService")
	ctx, span := tr.Start(ctx, "Unvote", trace.WithAttributes(userAttrs(domainID, moduleID, userID)...))
	defer span.End()

	d, m, u, opt, err := normalizeVote(domainID, moduleID, userID, option)
	if err != nil {
		return Result{}, err
	}
	if ok, err := s.Tokens.Validate(ctx, d, u, token); err != nil {
		return Result{}, fmt.Errorf("validate token: %w", err)
	} else if !ok {
		span.SetAttributes(attribute.String("outcome", string(OutcomeRejected)))
		return Result{Outcome: OutcomeRejected, Reason: ReasonInvalidToken}, nil
	}

	unlock := s.locks.Lock(cache.Key(kindLock, d, m, u))
	defer unlock()

	coll := s.Collection(d)
	prev, err := s.storedReaction(ctx, coll, m, u)
	if err != nil {
		return Result{}, s.fail(span, d, m, err)
	}
	if prev != opt {
		span.SetAttributes(attribute.String("outcome", string(OutcomeRejected)))
		return Result{Outcome: OutcomeRejected, Reason: ReasonNotHeld}, nil
	}

	wctx := context.WithoutCancel(ctx)
	err = s.applyUnvote(wctx, coll, m, u, opt)
	s.invalidate(d, m, u)
	if err != nil {
		return Result{}, s.fail(span, d, m, err)
	}

	snap, err := s.aggregate(wctx, d, m)
	if err != nil {
		return Result{}, err
	}
	s.broadcast(wctx, snap)
	snap.UserID, snap.Reaction = u, opt
	span.SetAttributes(attribute.String("outcome", string(OutcomeApplied)))
	return Result{Outcome: OutcomeApplied, Reactions: &snap}, nil
}

func (s *ReactionService) applyUnvote(ctx context.Context, coll, moduleID, userID, option string) error {
	if err := s.Store.IncrementOption(ctx, coll, moduleID, option, -1); err != nil {
		return fmt.Errorf("decrement %q: %w", option, err)
	}
	if err := s.Store.RemoveReaction(ctx, coll, moduleID, userID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

// UpdateTitle normalizes and stores the module title, then broadcasts the
// new aggregate.
func (s *ReactionService) UpdateTitle(ctx context.Context, domainID, moduleID, title string) (domain.Snapshot, error) {
	tr := otel.Tracer("services/ReactionService")
	ctx, span := tr.Start(ctx, "UpdateTitle", trace.WithAttributes(scopeAttrs(domainID, moduleID)...))
	defer span.End()

	d, m, err := normalizeScope(domainID, moduleID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	title = clip(normalizeTitle(title), s.TitleMaxLen)

	wctx := context.WithoutCancel(ctx)
	err = s.Store.SetModuleTitle(wctx, s.Collection(d), m, title)
	s.aggregates.Invalidate(cache.Key(kindAggregate, d, m))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("set title: %w", err)
	}
	snap, err := s.aggregate(wctx, d, m)
	if err != nil {
		return domain.Snapshot{}, err
	}
	s.broadcast(wctx, snap)
	return snap, nil
}

// Reconcile recomputes the module's counters from its reaction records.
// Existing option keys are kept, zeroed when no reaction holds them. It is an
// explicit repair for a crash between a counter write and a reaction write
// and never runs on its own. Votes racing with it may be miscounted until
// the next reconcile.
func (s *ReactionService) Reconcile(ctx context.Context, domainID, moduleID string) (domain.Snapshot, error) {
	tr := otel.Tracer("services/ReactionService")
	ctx, span := tr.Start(ctx, "Reconcile", trace.WithAttributes(scopeAttrs(domainID, moduleID)...))
	defer span.End()

	d, m, err := normalizeScope(domainID, moduleID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	coll := s.Collection(d)

	mod, err := s.Store.FindModule(ctx, coll, m)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Snapshot{}, ErrModuleNotFound
	}
	if err != nil {
		return domain.Snapshot{}, s.fail(span, d, m, err)
	}
	held, err := s.Store.CountReactions(ctx, coll, m)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("count reactions: %w", err)
	}

	next := make(map[string]int64, len(mod.Options)+len(held))
	for k := range mod.Options {
		next[k] = 0
	}
	for k, v := range held {
		next[k] = v
	}

	changed := 0
	for k, v := range next {
		if old, ok := mod.Options[k]; !ok || old != v {
			changed++
		}
	}
	span.SetAttributes(attribute.Int("counters.changed", changed))
	if changed > 0 {
		log.Warn().Str("domain", d).Str("module_id", m).Int("changed", changed).
			Msg("reconcile corrected option counters")
	}

	wctx := context.WithoutCancel(ctx)
	err = s.Store.ReplaceCounters(wctx, coll, m, next)
	s.aggregates.Invalidate(cache.Key(kindAggregate, d, m))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("replace counters: %w", err)
	}
	snap, err := s.aggregate(wctx, d, m)
	if err != nil {
		return domain.Snapshot{}, err
	}
	s.broadcast(wctx, snap)
	return snap, nil
}

// RemoveModule deletes a module with its counters and reactions.
func (s *ReactionService) RemoveModule(ctx context.Context, domainID, moduleID string) error {
	d, m, err := normalizeScope(domainID, moduleID)
	if err != nil {
		return err
	}
	err = s.Store.RemoveModule(context.WithoutCancel(ctx), s.Collection(d), m)
	s.aggregates.Invalidate(cache.Key(kindAggregate, d, m))
	s.reactions.InvalidatePrefix(cache.Key(kindUser, d, m))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrModuleNotFound
	}
	return err
}

// DropDomain deletes every module and reaction of domainID.
func (s *ReactionService) DropDomain(ctx context.Context, domainID string) error {
	d, err := normalizeID(domainID, MaxDomainRunes)
	if err != nil {
		return err
	}
	err = s.Store.DropCollection(context.WithoutCancel(ctx), s.Collection(d))
	s.aggregates.InvalidatePrefix(cache.Key(kindAggregate, d))
	s.reactions.InvalidatePrefix(cache.Key(kindUser, d))
	return err
}

// Reset deletes all persisted state across every domain.
func (s *ReactionService) Reset(ctx context.Context) error {
	err := s.Store.DropAll(context.WithoutCancel(ctx))
	s.aggregates.InvalidateAll()
	s.reactions.InvalidateAll()
	return err
}

// Stats summarizes one domain.
func (s *ReactionService) Stats(ctx context.Context, domainID string) (domain.CollectionStats, error) {
	d, err := normalizeID(domainID, MaxDomainRunes)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	return s.Store.Stats(ctx, s.Collection(d))
}

// aggregate reads the module through the cache, creating it when absent.
func (s *ReactionService) aggregate(ctx context.Context, d, m string) (domain.Snapshot, error) {
	coll := s.Collection(d)
	mod, err := s.aggregates.Get(ctx, cache.Key(kindAggregate, d, m), func(ctx context.Context) (domain.Module, error) {
		found, err := s.Store.FindModule(ctx, coll, m)
		if errors.Is(err, repo.ErrNotFound) {
			found, err = s.Store.InsertModule(ctx, coll, m)
		}
		if err != nil {
			return domain.Module{}, err
		}
		return *found, nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrMalformedRecord) {
			return domain.Snapshot{}, s.consistency(d, m, err)
		}
		return domain.Snapshot{}, fmt.Errorf("load module: %w", err)
	}
	return domain.NewSnapshot(d, mod), nil
}

// annotated returns the aggregate with the user's reaction attached.
func (s *ReactionService) annotated(ctx context.Context, d, m, u, reaction string) (domain.Snapshot, error) {
	snap, err := s.aggregate(ctx, d, m)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.UserID, snap.Reaction = u, reaction
	return snap, nil
}

// userReaction reads the user's reaction through the cache.
func (s *ReactionService) userReaction(ctx context.Context, d, m, u string) (string, error) {
	coll := s.Collection(d)
	r, err := s.reactions.Get(ctx, cache.Key(kindUser, d, m, u), func(ctx context.Context) (string, error) {
		return s.storedReaction(ctx, coll, m, u)
	})
	if err != nil {
		if errors.Is(err, repo.ErrMalformedRecord) {
			return "", s.consistency(d, m, err)
		}
		return "", fmt.Errorf("load reaction: %w", err)
	}
	return r, nil
}

// storedReaction reads the user's reaction from the store. A missing record
// is "", any other failure is returned so callers fail closed.
func (s *ReactionService) storedReaction(ctx context.Context, coll, m, u string) (string, error) {
	r, err := s.Store.FindReaction(ctx, coll, m, u)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return r.Reaction, nil
}

func (s *ReactionService) invalidate(d, m, u string) {
	s.aggregates.Invalidate(cache.Key(kindAggregate, d, m))
	s.reactions.Invalidate(cache.Key(kindUser, d, m, u))
}

func (s *ReactionService) broadcast(ctx context.Context, snap domain.Snapshot) {
	if s.Broadcaster == nil {
		return
	}
	snap.UserID, snap.Reaction = "", ""
	s.Broadcaster.Broadcast(ctx, snap)
}

// fail records err on the span and escalates invariant violations.
func (s *ReactionService) fail(span trace.Span, d, m string, err error) error {
	if errors.Is(err, repo.ErrNegativeCount) || errors.Is(err, repo.ErrMalformedRecord) {
		err = s.consistency(d, m, err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *ReactionService) consistency(d, m string, err error) error {
	log.Error().Err(err).Str("domain", d).Str("module_id", m).Msg("reaction state consistency violation")
	return fmt.Errorf("%w: %w", ErrConsistency, err)
}

func normalizeVote(domainID, moduleID, userID, option string) (d, m, u, opt string, err error) {
	if d, m, err = normalizeScope(domainID, moduleID); err != nil {
		return
	}
	if u, err = normalizeID(userID, MaxIDRunes); err != nil {
		return
	}
	opt, err = NormalizeOption(option)
	return
}

func scopeAttrs(domainID, moduleID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("domain", domainID),
		attribute.String("module.id", moduleID),
	}
}

func userAttrs(domainID, moduleID, userID string) []attribute.KeyValue {
	return append(scopeAttrs(domainID, moduleID), attribute.String("user.id", userID))
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
