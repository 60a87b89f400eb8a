package repo

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/tbourn/go-reactions-backend/internal/domain"
)

// newPostgresDB starts a throwaway Postgres container. It runs only when
// REACTIONS_INTEGRATION=1 because it needs a Docker daemon.
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("REACTIONS_INTEGRATION") != "1" {
		t.Skip("set REACTIONS_INTEGRATION=1 to run Postgres integration tests")
	}
	ctx := context.Background()

	pg, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("reactions"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pg) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := OpenPostgres(dsn)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestPostgres_CountersAreAtomicAndGuarded(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, IncrementOption(ctx, db, "reactions_d", "m1", "❤️", 1))
		}()
	}
	wg.Wait()

	m, err := FindModule(ctx, db, "reactions_d", "m1")
	require.NoError(t, err)
	require.EqualValues(t, n, m.Options["❤️"])

	err = IncrementOption(ctx, db, "reactions_d", "m1", "❤️", -(n + 1))
	require.True(t, errors.Is(err, ErrNegativeCount), "got %v", err)
}

func TestPostgres_ReactionsTokensAndPurge(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()

	require.NoError(t, UpsertReaction(ctx, db, "reactions_d", "m1", "u1", "up"))
	require.NoError(t, UpsertReaction(ctx, db, "reactions_d", "m1", "u1", "down"))
	counts, err := CountReactions(ctx, db, "reactions_d", "m1")
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"down": 1}, counts)

	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, SaveToken(ctx, db, domain.VoteToken{Collection: "tokens_d", UserID: "u1", TokenID: "t1", IssuedAt: old}))
	purged, err := PurgeTokens(ctx, db, "tokens_", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)
}
