package store

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grove/internal/models"
)

// No normal operation may overlap an exclusive section, and an exclusive
// section must wait for admitted operations to drain.
func TestExclusiveBarrierMutualExclusion(t *testing.T) {
	s := newStoreWith(t, "alice", "bob")

	var inExclusive atomic.Bool
	var violations atomic.Int64
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = s.Follow("alice", "bob")
				if inExclusive.Load() {
					violations.Add(1)
				}
				_ = s.Unfollow("alice", "bob")
			}
		}()
	}

	for i := 0; i < 20; i++ {
		s.Exclusive(func(tx *Tx) {
			inExclusive.Store(true)
			// Give racing operations a chance to trip the detector if the
			// gate were broken.
			time.Sleep(time.Millisecond)
			inExclusive.Store(false)
		})
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, violations.Load())
}

// The maintenance view must never see the symmetric follow edge half
// applied.
func TestExclusiveSeesNoTornState(t *testing.T) {
	s := newStoreWith(t, "alice", "bob")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = s.Follow("alice", "bob")
			_ = s.Unfollow("alice", "bob")
		}
	}()

	for i := 0; i < 50; i++ {
		s.Exclusive(func(tx *Tx) {
			alice, bob := tx.User("alice"), tx.User("bob")
			_, aliceFollows := alice.Following["bob"]
			_, bobFollowed := bob.Followers["alice"]
			assert.Equal(t, aliceFollows, bobFollowed, "follow edge is torn")
		})
	}
	close(stop)
	wg.Wait()
}

func TestExclusiveSectionsSerialized(t *testing.T) {
	s := New()
	var active atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Exclusive(func(tx *Tx) {
				assert.EqualValues(t, 1, active.Add(1))
				time.Sleep(time.Millisecond)
				active.Add(-1)
			})
		}()
	}
	wg.Wait()
}

func TestPutAndIterateRoundTrip(t *testing.T) {
	s := newStoreWith(t, "alice")
	id, err := s.CreatePost("alice", "Hi", "World")
	require.NoError(t, err)

	var users, posts int
	s.Exclusive(func(tx *Tx) {
		tx.ForEachUser(func(_ *models.User) { users++ })
		tx.ForEachPost(func(_ *models.Post) { posts++ })
		assert.Equal(t, id, tx.NextPostID())
	})
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, posts)
}
