package rewards

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grove/internal/config"
	"grove/internal/models"
	"grove/internal/store"
)

type countingAnnouncer struct{ calls int }

func (c *countingAnnouncer) RewardsUpdated() { c.calls++ }

func cycleConfig() config.RewardsConfig {
	return config.RewardsConfig{
		Interval:      config.Duration(time.Minute),
		AuthorCut:     0.7,
		CuratorCut:    0.3,
		Normalization: 1.0,
	}
}

func setup(t *testing.T) (*store.Store, *Engine, *countingAnnouncer) {
	t.Helper()
	s := store.New()
	for _, u := range []string{"author", "curator1", "curator2"} {
		require.NoError(t, s.Register(u, "pw", nil))
	}
	ann := &countingAnnouncer{}
	return s, New(s, cycleConfig(), ann, nil), ann
}

func balance(t *testing.T, s *store.Store, user string) float64 {
	t.Helper()
	w, err := s.Wallet(user)
	require.NoError(t, err)
	return w.Balance
}

func TestCycleSplitsAuthorAndCurators(t *testing.T) {
	s, engine, ann := setup(t)
	id, err := s.CreatePost("author", "Hi", "World")
	require.NoError(t, err)
	require.NoError(t, s.AddVote(id, "curator1", 1))
	require.NoError(t, s.AddVote(id, "curator2", 1))

	engine.RunCycle()

	// Two new upvotes, no downvotes, no comments, age 1.
	gain := math.Log1p(2)
	assert.InDelta(t, 0.7*gain, balance(t, s, "author"), 1e-9)
	assert.InDelta(t, 0.3*gain/2, balance(t, s, "curator1"), 1e-9)
	assert.InDelta(t, 0.3*gain/2, balance(t, s, "curator2"), 1e-9)
	assert.Equal(t, 1, ann.calls)

	// Counters cleared: the next cycle pays nothing for the same votes.
	engine.RunCycle()
	assert.InDelta(t, 0.7*gain, balance(t, s, "author"), 1e-9)
	assert.Equal(t, 2, ann.calls)
}

func TestZeroScorePostStillAges(t *testing.T) {
	s, engine, _ := setup(t)
	id, err := s.CreatePost("author", "Hi", "World")
	require.NoError(t, err)

	engine.RunCycle()
	engine.RunCycle()

	assert.Zero(t, balance(t, s, "author"))
	s.Exclusive(func(tx *store.Tx) {
		tx.ForEachPost(func(p *models.Post) {
			assert.Equal(t, 2, p.Age)
			assert.Equal(t, id, p.ID)
		})
	})
}

func TestDownvotesNeverDebit(t *testing.T) {
	s, engine, _ := setup(t)
	id, err := s.CreatePost("author", "Hi", "World")
	require.NoError(t, err)
	require.NoError(t, s.AddVote(id, "curator1", -1))

	engine.RunCycle()

	assert.Zero(t, balance(t, s, "author"))
	assert.Zero(t, balance(t, s, "curator1"))
}

func TestCommentersShareCuratorCut(t *testing.T) {
	s, engine, _ := setup(t)
	id, err := s.CreatePost("author", "Hi", "World")
	require.NoError(t, err)
	require.NoError(t, s.AddComment(id, "curator1", "nice"))
	require.NoError(t, s.AddComment(id, "curator1", "really nice"))

	engine.RunCycle()

	// One distinct commenter with two comments, saturating contribution.
	contrib := 2.0 / (1.0 + math.Exp(-1.0))
	gain := math.Log1p(contrib)
	assert.InDelta(t, 0.7*gain, balance(t, s, "author"), 1e-9)
	assert.InDelta(t, 0.3*gain, balance(t, s, "curator1"), 1e-9)

	// Wallet history carries the credit.
	w, err := s.Wallet("curator1")
	require.NoError(t, err)
	require.Len(t, w.History, 1)
	assert.InDelta(t, 0.3*gain, w.History[0].Amount, 1e-9)
}

func TestSpamCommentingIsBounded(t *testing.T) {
	s, engine, _ := setup(t)
	id, err := s.CreatePost("author", "Hi", "World")
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, s.AddComment(id, "curator1", "spam"))
	}

	engine.RunCycle()

	// A single commenter's contribution saturates at 2, so the whole gain
	// stays under ln(3) no matter how many comments they post.
	assert.Less(t, balance(t, s, "curator1"), math.Log1p(2.0))
}

func TestAgeDiscountsLaterCycles(t *testing.T) {
	s, engine, _ := setup(t)
	id, err := s.CreatePost("author", "Hi", "World")
	require.NoError(t, err)

	require.NoError(t, s.AddVote(id, "curator1", 1))
	engine.RunCycle()
	first := balance(t, s, "author")

	require.NoError(t, s.AddVote(id, "curator2", 1))
	engine.RunCycle()
	second := balance(t, s, "author") - first

	require.Positive(t, first)
	require.Positive(t, second)
	// Same activity, older post, smaller reward.
	assert.Less(t, second, first)
}
