package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-reactions-backend/internal/repo"
)

func TestGetAggregate_CreatesEmptyModule(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	snap, err := l.svc.GetAggregate(ctx, "d", "m1")
	require.NoError(t, err)
	assert.Equal(t, "d", snap.Domain)
	assert.Equal(t, "m1", snap.ID)
	assert.NotNil(t, snap.Options)
	assert.Empty(t, snap.Options)

	_, err = l.store.FindModule(ctx, "reactions_d", "m1")
	require.NoError(t, err, "read-or-create must persist the module")
}

func TestGetUserReaction_DoesNotCreate(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	r, err := l.svc.GetUserReaction(ctx, "d", "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "", r)

	_, err = l.store.FindModule(ctx, "reactions_d", "m1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestScenarioA_FirstVote(t *testing.T) {
	l := newLedger(t)
	res := l.vote(t, "d", "m1", "u1", "👍")

	require.Equal(t, OutcomeApplied, res.Outcome)
	require.NotNil(t, res.Reactions)
	assert.Equal(t, map[string]int64{"👍": 1}, res.Reactions.Options)
	assert.Equal(t, "u1", res.Reactions.UserID)
	assert.Equal(t, "👍", res.Reactions.Reaction)
}

func TestScenarioB_ChangeMovesTheVote(t *testing.T) {
	l := newLedger(t)
	l.vote(t, "d", "m1", "u1", "👍")
	res := l.vote(t, "d", "m1", "u1", "❤️")

	require.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, map[string]int64{"👍": 0, "❤️": 1}, res.Reactions.Options)
}

func TestScenarioC_UnvoteRetracts(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	l.vote(t, "d", "m1", "u1", "👍")
	l.vote(t, "d", "m1", "u1", "❤️")
	res := l.unvote(t, "d", "m1", "u1", "❤️")

	require.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, map[string]int64{"👍": 0, "❤️": 0}, res.Reactions.Options)
	assert.Equal(t, "❤️", res.Reactions.Reaction, "retracted option is echoed back")

	r, err := l.svc.GetUserReaction(ctx, "d", "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "", r)
}

func TestScenarioD_ExpiredTokenIsRejected(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	issued := l.clock.Now()
	tok := l.token(t, "d", "u2")
	l.clock.Set(issued.Add(30*time.Minute + time.Minute))

	res, err := l.svc.Vote(ctx, "d", "m1", "u2", "👍", tok)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, ReasonInvalidToken, res.Reason)
	assert.Nil(t, res.Reactions)
	assert.Empty(t, l.options(t, "d", "m1"))
	assert.Zero(t, l.bc.count(), "rejections are not broadcast")
}

func TestScenarioE_ConcurrentVotersDoNotLoseUpdates(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	tokA := l.token(t, "d", "ua")
	tokB := l.token(t, "d", "ub")

	var wg sync.WaitGroup
	for _, p := range []struct{ user, tok string }{{"ua", tokA}, {"ub", tokB}} {
		wg.Add(1)
		go func(user, tok string) {
			defer wg.Done()
			res, err := l.svc.Vote(ctx, "d", "m1", user, "❤️", tok)
			assert.NoError(t, err)
			assert.Equal(t, OutcomeApplied, res.Outcome)
		}(p.user, p.tok)
	}
	wg.Wait()

	assert.Equal(t, map[string]int64{"❤️": 2}, l.options(t, "d", "m1"))
}

func TestVote_IdempotentRevote(t *testing.T) {
	l := newLedger(t)
	l.vote(t, "d", "m1", "u1", "👍")
	before := l.bc.count()

	res := l.vote(t, "d", "m1", "u1", "👍")
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	require.NotNil(t, res.Reactions)
	assert.Equal(t, map[string]int64{"👍": 1}, res.Reactions.Options)
	assert.Equal(t, "👍", res.Reactions.Reaction)
	assert.Equal(t, before, l.bc.count(), "no-op re-vote is not broadcast")
}

func TestVote_NormalizesOptionBeforeComparing(t *testing.T) {
	l := newLedger(t)
	l.vote(t, "d", "m1", "u1", "e\u0301")
	res := l.vote(t, "d", "m1", "u1", "\u00e9")
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.Equal(t, map[string]int64{"\u00e9": 1}, l.options(t, "d", "m1"))
}

func TestVote_TokenGate(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	l.token(t, "d", "u1")

	for _, tok := range []string{"", "forged"} {
		res, err := l.svc.Vote(ctx, "d", "m1", "u1", "👍", tok)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRejected, res.Outcome)
	}
	// A token of another user does not work either.
	other := l.token(t, "d", "u2")
	res, err := l.svc.Vote(ctx, "d", "m1", "u1", "👍", other)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)

	_, err = l.store.FindReaction(ctx, "reactions_d", "m1", "u1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Zero(t, l.bc.count())
}

func TestVote_InvalidInputs(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	tok := l.token(t, "d", "u1")

	_, err := l.svc.Vote(ctx, "d", "m1", "u1", "a.b", tok)
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = l.svc.Vote(ctx, "d", "", "u1", "👍", tok)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = l.svc.Unvote(ctx, "d", "m1", "", "👍", tok)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUnvote_NotHeldIsRejected(t *testing.T) {
	l := newLedger(t)
	l.vote(t, "d", "m1", "u1", "👍")
	before := l.bc.count()

	res := l.unvote(t, "d", "m1", "u1", "❤️")
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, ReasonNotHeld, res.Reason)

	res = l.unvote(t, "d", "m1", "u2", "👍")
	assert.Equal(t, OutcomeRejected, res.Outcome, "user without a reaction cannot unvote")

	assert.Equal(t, map[string]int64{"👍": 1}, l.options(t, "d", "m1"))
	assert.Equal(t, before, l.bc.count())
}

func TestSingleActiveReactionAndSumInvariant(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	users := []string{"u1", "u2", "u3", "u4", "u5"}
	opts := []string{"👍", "❤️", "😂"}

	for i := 0; i < 120; i++ {
		u := users[rng.Intn(len(users))]
		o := opts[rng.Intn(len(opts))]
		if rng.Intn(3) == 0 {
			held, err := l.svc.GetUserReaction(ctx, "d", "m1", u)
			require.NoError(t, err)
			if held != "" {
				l.unvote(t, "d", "m1", u, held)
			}
			continue
		}
		l.vote(t, "d", "m1", u, o)

		var active int64
		for _, uu := range users {
			r, err := l.svc.GetUserReaction(ctx, "d", "m1", uu)
			require.NoError(t, err)
			if r != "" {
				active++
			}
		}
		var sum int64
		for _, v := range l.options(t, "d", "m1") {
			require.GreaterOrEqual(t, v, int64(0))
			sum += v
		}
		require.Equal(t, active, sum, "sum invariant after step %d", i)
	}

	counts, err := l.store.CountReactions(ctx, "reactions_d", "m1")
	require.NoError(t, err)
	for k, v := range l.options(t, "d", "m1") {
		assert.Equal(t, counts[k], v, "counter %q must match reaction records", k)
	}
}

func TestCacheTransparency(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	// Warm both cache kinds.
	_, err := l.svc.GetReactions(ctx, "d", "m1", "u1")
	require.NoError(t, err)

	l.vote(t, "d", "m1", "u1", "👍")
	snap, err := l.svc.GetReactions(ctx, "d", "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"👍": 1}, snap.Options)
	assert.Equal(t, "👍", snap.Reaction)

	l.unvote(t, "d", "m1", "u1", "👍")
	snap, err = l.svc.GetReactions(ctx, "d", "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"👍": 0}, snap.Options)
	assert.Equal(t, "", snap.Reaction)

	// Mutating a returned snapshot never leaks into the next read.
	snap.Options["👍"] = 42
	again, _ := l.svc.GetAggregate(ctx, "d", "m1")
	assert.EqualValues(t, 0, again.Options["👍"])
}

func TestDomainsAreIsolated(t *testing.T) {
	l := newLedger(t)
	l.vote(t, "a.com", "m1", "u1", "👍")
	assert.Empty(t, l.options(t, "b.com", "m1"))
	assert.Equal(t, map[string]int64{"👍": 1}, l.options(t, "a.com", "m1"))
}

func TestBroadcast_AppliedOnlyAndWithoutUser(t *testing.T) {
	l := newLedger(t)
	l.vote(t, "d", "m1", "u1", "👍")
	require.Equal(t, 1, l.bc.count())
	last := l.bc.last()
	assert.Equal(t, "m1", last.ID)
	assert.Equal(t, "", last.UserID, "broadcasts carry the aggregate only")
	assert.Equal(t, map[string]int64{"👍": 1}, last.Options)

	l.unvote(t, "d", "m1", "u1", "👍")
	assert.Equal(t, 2, l.bc.count())
}

func TestVote_FailsClosedWhenPrevUnreadable(t *testing.T) {
	l := newLedger(t)
	fs := &faultyStore{Store: l.store, findReactionErr: errors.New("store unavailable")}
	l.svc.Store = fs

	_, err := l.svc.Vote(context.Background(), "d", "m1", "u1", "👍", l.token(t, "d", "u1"))
	require.Error(t, err)
	assert.Zero(t, fs.writeCount(), "no write after a failed precondition read")
	assert.Zero(t, l.bc.count())
}

func TestVote_NegativeDecrementIsConsistencyError(t *testing.T) {
	l := newLedger(t)
	l.vote(t, "d", "m1", "u1", "👍")

	fs := &faultyStore{Store: l.store, decrementErr: repo.ErrNegativeCount}
	l.svc.Store = fs
	before := l.bc.count()

	_, err := l.svc.Vote(context.Background(), "d", "m1", "u1", "❤️", l.token(t, "d", "u1"))
	require.ErrorIs(t, err, ErrConsistency)
	require.ErrorIs(t, err, repo.ErrNegativeCount)
	assert.Equal(t, before, l.bc.count())

	// The increment that did apply is visible: invalidation ran despite the failure.
	assert.EqualValues(t, 1, l.options(t, "d", "m1")["❤️"])
}

func TestVote_InvalidatesOnPartialFailure(t *testing.T) {
	l := newLedger(t)
	_ = l.options(t, "d", "m1") // warm cache

	fs := &faultyStore{Store: l.store, upsertErr: errors.New("write failed")}
	l.svc.Store = fs
	_, err := l.svc.Vote(context.Background(), "d", "m1", "u1", "👍", l.token(t, "d", "u1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConsistency)

	assert.EqualValues(t, 1, l.options(t, "d", "m1")["👍"], "cached aggregate must not hide the applied increment")
}

func TestVote_CanceledContextStillCompletesWrites(t *testing.T) {
	l := newLedger(t)
	tok := l.token(t, "d", "u1")
	ctx, cancel := context.WithCancel(context.Background())

	fs := &cancelOnFirstWrite{Store: l.store, cancel: cancel}
	l.svc.Store = fs
	res, err := l.svc.Vote(ctx, "d", "m1", "u1", "👍", tok)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	r, err := l.store.FindReaction(context.Background(), "reactions_d", "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "👍", r.Reaction)
}

type cancelOnFirstWrite struct {
	*repo.Store
	cancel context.CancelFunc
}

func (c *cancelOnFirstWrite) IncrementOption(ctx context.Context, coll, moduleID, option string, delta int64) error {
	c.cancel()
	return c.Store.IncrementOption(ctx, coll, moduleID, option, delta)
}

func TestVote_SameUserConcurrentVotesStayConsistent(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	tok := l.token(t, "d", "u1")

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opt := []string{"👍", "❤️", "😂"}[i%3]
			_, err := l.svc.Vote(ctx, "d", "m1", "u1", opt, tok)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var sum int64
	for _, v := range l.options(t, "d", "m1") {
		sum += v
	}
	assert.EqualValues(t, 1, sum, "one user holds exactly one vote")
	assert.Equal(t, 0, l.svc.locks.size())
}

func TestUpdateTitle(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	l.svc.TitleMaxLen = 10

	snap, err := l.svc.UpdateTitle(ctx, "d", "m1", "  Release \n\n notes for v2 ")
	require.NoError(t, err)
	assert.Equal(t, "Release no", snap.Title)
	assert.Equal(t, 1, l.bc.count())

	got, _ := l.svc.GetAggregate(ctx, "d", "m1")
	assert.Equal(t, "Release no", got.Title)
}

func TestReconcile_RepairsDriftAndKeepsKeys(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	l.vote(t, "d", "m1", "u1", "👍")
	l.vote(t, "d", "m1", "u2", "❤️")
	l.unvote(t, "d", "m1", "u2", "❤️")

	// Simulate a crash between the counter write and the reaction write.
	require.NoError(t, l.store.IncrementOption(ctx, "reactions_d", "m1", "👍", 2))
	require.NoError(t, l.store.IncrementOption(ctx, "reactions_d", "m1", "😂", 1))

	snap, err := l.svc.Reconcile(ctx, "d", "m1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"👍": 1, "❤️": 0, "😂": 0}, snap.Options)
	assert.Equal(t, snap.Options, l.options(t, "d", "m1"))

	_, err = l.svc.Reconcile(ctx, "d", "missing")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestRemoveModuleAndDropDomain(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	l.vote(t, "d", "m1", "u1", "👍")
	l.vote(t, "d", "m2", "u1", "❤️")

	require.NoError(t, l.svc.RemoveModule(ctx, "d", "m1"))
	assert.Empty(t, l.options(t, "d", "m1"), "removed module reads as empty")
	r, _ := l.svc.GetUserReaction(ctx, "d", "m1", "u1")
	assert.Equal(t, "", r)
	assert.ErrorIs(t, l.svc.RemoveModule(ctx, "d", "never"), ErrModuleNotFound)

	_ = l.options(t, "d", "m2") // warm cache
	require.NoError(t, l.svc.DropDomain(ctx, "d"))
	assert.Empty(t, l.options(t, "d", "m2"))

	st, err := l.svc.Stats(ctx, "d")
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Modules, "only the read after the drop recreated m2")
	assert.Zero(t, st.Reactions)
}

func TestReset_ClearsEverything(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	l.vote(t, "a", "m", "u", "👍")
	l.vote(t, "b", "m", "u", "👍")

	require.NoError(t, l.svc.Reset(ctx))
	for _, d := range []string{"a", "b"} {
		st, err := l.svc.Stats(ctx, d)
		require.NoError(t, err)
		assert.Zero(t, st.Modules)
	}
}

func TestStats_CountsActiveReactions(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		l.vote(t, "d", "m1", fmt.Sprintf("u%d", i), "👍")
	}
	l.unvote(t, "d", "m1", "u0", "👍")

	st, err := l.svc.Stats(ctx, "d")
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Modules)
	assert.EqualValues(t, 2, st.Reactions)
	require.NotNil(t, st.LastActivity)

	_, err = l.svc.Stats(ctx, strings.Repeat("x", MaxDomainRunes+1))
	assert.ErrorIs(t, err, ErrInvalidInput)
}
