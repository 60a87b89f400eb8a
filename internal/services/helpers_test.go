package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-reactions-backend/internal/domain"
	"github.com/tbourn/go-reactions-backend/internal/repo"
)

// newSQLStore returns a migrated file-backed SQLite store. A single connection
// keeps concurrent writers from tripping over SQLite's database-level lock.
func newSQLStore(t *testing.T) *repo.Store {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "reactions.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return repo.NewStore(db)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []domain.Snapshot
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, snap domain.Snapshot) {
	b.mu.Lock()
	b.sent = append(b.sent, snap)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func (b *recordingBroadcaster) last() domain.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent[len(b.sent)-1]
}

// ledger bundles a ReactionService wired to a real SQLite store and token
// service with a controllable clock.
type ledger struct {
	svc    *ReactionService
	tokens *TokenService
	store  *repo.Store
	clock  *testClock
	bc     *recordingBroadcaster
}

func newLedger(t *testing.T) *ledger {
	t.Helper()
	store := newSQLStore(t)
	clk := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tokens := NewTokenService(store, "tokens_", 30*time.Minute)
	tokens.Now = clk.Now
	bc := &recordingBroadcaster{}
	svc := NewReactionService(store, tokens, time.Minute)
	svc.Broadcaster = bc
	return &ledger{svc: svc, tokens: tokens, store: store, clock: clk, bc: bc}
}

func (l *ledger) token(t *testing.T, d, u string) string {
	t.Helper()
	tok, err := l.tokens.Issue(context.Background(), d, u)
	require.NoError(t, err)
	return tok
}

func (l *ledger) vote(t *testing.T, d, m, u, opt string) Result {
	t.Helper()
	res, err := l.svc.Vote(context.Background(), d, m, u, opt, l.token(t, d, u))
	require.NoError(t, err)
	return res
}

func (l *ledger) unvote(t *testing.T, d, m, u, opt string) Result {
	t.Helper()
	res, err := l.svc.Unvote(context.Background(), d, m, u, opt, l.token(t, d, u))
	require.NoError(t, err)
	return res
}

func (l *ledger) options(t *testing.T, d, m string) map[string]int64 {
	t.Helper()
	snap, err := l.svc.GetAggregate(context.Background(), d, m)
	require.NoError(t, err)
	return snap.Options
}

// faultyStore wraps a real store and injects failures into selected calls.
type faultyStore struct {
	*repo.Store

	mu              sync.Mutex
	findReactionErr error
	decrementErr    error
	upsertErr       error
	writes          int
}

func (f *faultyStore) FindReaction(ctx context.Context, coll, moduleID, userID string) (*domain.UserReaction, error) {
	f.mu.Lock()
	err := f.findReactionErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.FindReaction(ctx, coll, moduleID, userID)
}

func (f *faultyStore) IncrementOption(ctx context.Context, coll, moduleID, option string, delta int64) error {
	f.mu.Lock()
	f.writes++
	err := f.decrementErr
	f.mu.Unlock()
	if delta < 0 && err != nil {
		return err
	}
	return f.Store.IncrementOption(ctx, coll, moduleID, option, delta)
}

func (f *faultyStore) UpsertReaction(ctx context.Context, coll, moduleID, userID, reaction string) error {
	f.mu.Lock()
	f.writes++
	err := f.upsertErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.UpsertReaction(ctx, coll, moduleID, userID, reaction)
}

func (f *faultyStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}
