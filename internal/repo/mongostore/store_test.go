package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-reactions-backend/internal/domain"
	"github.com/tbourn/go-reactions-backend/internal/repo"
)

// newTestStore connects to MONGO_TEST_URI and isolates each test in its own
// database, dropped on cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("set MONGO_TEST_URI to run MongoDB tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Connect(ctx, uri, fmt.Sprintf("reactions_test_%d", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.DropAll(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestOptionField_RejectsPathCharacters(t *testing.T) {
	for _, k := range []string{"", "a.b", "$inc", "x$"} {
		if _, err := optionField(k); !errors.Is(err, repo.ErrMalformedRecord) {
			t.Fatalf("optionField(%q): expected ErrMalformedRecord, got %v", k, err)
		}
	}
	f, err := optionField("👍")
	if err != nil || f != "options.👍" {
		t.Fatalf("optionField(👍) = %q, %v", f, err)
	}
}

func TestToModule_NegativeCountIsMalformed(t *testing.T) {
	_, err := toModule("reactions_d", moduleDoc{ID: "m1", Options: map[string]int64{"up": -1}})
	if !errors.Is(err, repo.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	m, err := toModule("reactions_d", moduleDoc{ID: "m1"})
	if err != nil || m.Options == nil || m.Collection != "reactions_d" {
		t.Fatalf("unexpected module %+v, %v", m, err)
	}
}

func TestStore_ModuleLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.FindModule(ctx, "reactions_d", "m1")
	require.ErrorIs(t, err, repo.ErrNotFound)

	m, err := s.InsertModule(ctx, "reactions_d", "m1")
	require.NoError(t, err)
	assert.Empty(t, m.Options)

	require.NoError(t, s.SetModuleTitle(ctx, "reactions_d", "m1", "Hello"))
	require.NoError(t, s.IncrementOption(ctx, "reactions_d", "m1", "up", 1))

	m, err = s.FindModule(ctx, "reactions_d", "m1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", m.Title)
	assert.Equal(t, map[string]int64{"up": 1}, m.Options)

	require.NoError(t, s.RemoveModule(ctx, "reactions_d", "m1"))
	require.ErrorIs(t, s.RemoveModule(ctx, "reactions_d", "m1"), repo.ErrNotFound)
}

func TestStore_IncrementGuardsAndConcurrency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.IncrementOption(ctx, "reactions_d", "m1", "up", -1), repo.ErrNegativeCount)

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.IncrementOption(ctx, "reactions_d", "m1", "up", 1))
		}()
	}
	wg.Wait()

	m, err := s.FindModule(ctx, "reactions_d", "m1")
	require.NoError(t, err)
	require.EqualValues(t, n, m.Options["up"])

	require.ErrorIs(t, s.IncrementOption(ctx, "reactions_d", "m1", "up", -(n + 1)), repo.ErrNegativeCount)
	require.NoError(t, s.IncrementOption(ctx, "reactions_d", "m1", "up", -n))

	m, err = s.FindModule(ctx, "reactions_d", "m1")
	require.NoError(t, err)
	v, ok := m.Options["up"]
	assert.True(t, ok)
	assert.Zero(t, v)
}

func TestStore_ReactionsAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertReaction(ctx, "reactions_d", "m1", "u1", "up"))
	require.NoError(t, s.UpsertReaction(ctx, "reactions_d", "m1", "u1", "down"))
	require.NoError(t, s.UpsertReaction(ctx, "reactions_d", "m1", "u2", "down"))
	require.NoError(t, s.IncrementOption(ctx, "reactions_d", "m1", "down", 2))

	r, err := s.FindReaction(ctx, "reactions_d", "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "down", r.Reaction)

	counts, err := s.CountReactions(ctx, "reactions_d", "m1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"down": 2}, counts)

	st, err := s.Stats(ctx, "reactions_d")
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Modules)
	assert.EqualValues(t, 2, st.Reactions)
	assert.NotNil(t, st.LastActivity)

	require.NoError(t, s.RemoveReaction(ctx, "reactions_d", "m1", "u1"))
	_, err = s.FindReaction(ctx, "reactions_d", "m1", "u1")
	require.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, s.DropCollection(ctx, "reactions_d"))
	_, err = s.FindModule(ctx, "reactions_d", "m1")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStore_TokensAndPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cut := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.SaveToken(ctx, domain.VoteToken{Collection: "tokens_a", UserID: "old", TokenID: "1", IssuedAt: cut.Add(-time.Hour)}))
	require.NoError(t, s.SaveToken(ctx, domain.VoteToken{Collection: "tokens_a", UserID: "fresh", TokenID: "2", IssuedAt: cut.Add(time.Hour)}))
	require.NoError(t, s.SaveToken(ctx, domain.VoteToken{Collection: "tokensXa", UserID: "old", TokenID: "3", IssuedAt: cut.Add(-time.Hour)}))

	tok, err := s.FindToken(ctx, "tokens_a", "fresh")
	require.NoError(t, err)
	assert.Equal(t, "2", tok.TokenID)

	n, err := s.PurgeTokens(ctx, "tokens_", cut)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.FindToken(ctx, "tokens_a", "old")
	require.ErrorIs(t, err, repo.ErrNotFound)
	_, err = s.FindToken(ctx, "tokensXa", "old")
	require.NoError(t, err)
}
