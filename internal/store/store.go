// Package store is the concurrent in-memory database beneath the request
// pipeline. Users and posts live in sharded mutex-guarded maps so that
// operations on different keys never contend; an admission gate lets
// maintenance passes (rewards, snapshots) drain in-flight operations and
// scan a quiescent view of everything.
package store

import (
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"grove/internal/models"
	"grove/internal/utils"
)

const shardCount = 16

type userShard struct {
	mu    sync.Mutex
	users map[string]*models.User
}

type postShard struct {
	mu    sync.Mutex
	posts map[uint64]*models.Post
}

// Store owns every User and Post. Normal operations hold the read side of
// the gate for their whole duration; Exclusive takes the write side, which
// stops admitting new operations and waits for admitted ones to finish.
type Store struct {
	gate sync.RWMutex

	users [shardCount]userShard
	posts [shardCount]postShard

	nextID    atomic.Uint64
	userCount atomic.Int64
	postCount atomic.Int64

	sessions sessionRegistry
}

func New() *Store {
	s := &Store{}
	for i := range s.users {
		s.users[i].users = make(map[string]*models.User)
	}
	for i := range s.posts {
		s.posts[i].posts = make(map[uint64]*models.Post)
	}
	s.sessions.init()
	return s
}

func userShardIndex(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return int(h.Sum32() % shardCount)
}

func (s *Store) userShardFor(name string) *userShard {
	return &s.users[userShardIndex(name)]
}

func (s *Store) postShardFor(id uint64) *postShard {
	return &s.posts[id%shardCount]
}

// lockUserPair locks the shards of both usernames in index order so that
// symmetric updates (follow/unfollow) cannot deadlock.
func (s *Store) lockUserPair(a, b string) (*userShard, *userShard, func()) {
	ia, ib := userShardIndex(a), userShardIndex(b)
	sa, sb := &s.users[ia], &s.users[ib]
	if ia == ib {
		sa.mu.Lock()
		return sa, sb, sa.mu.Unlock
	}
	first, second := sa, sb
	if ib < ia {
		first, second = sb, sa
	}
	first.mu.Lock()
	second.mu.Lock()
	return sa, sb, func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// Register creates a user. Exactly one of two racing registrations of the
// same username succeeds; the loser observes ErrUserExists with no side
// effects.
func (s *Store) Register(username, password string, tags []string) error {
	if username == "" {
		return ErrEmptyUsername
	}
	// Hash before taking the shard lock; bcrypt is slow on purpose.
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	sh := s.userShardFor(username)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, taken := sh.users[username]; taken {
		return ErrUserExists
	}
	sh.users[username] = models.NewUser(username, hash, tags)
	s.userCount.Add(1)
	return nil
}

// Follow records the symmetric follower/following edge. Following an
// already-followed user is a no-op, not an error.
func (s *Store) Follow(follower, target string) error {
	if follower == target {
		return ErrSelfFollow
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	shF, shT, unlock := s.lockUserPair(follower, target)
	defer unlock()
	f, ok := shF.users[follower]
	if !ok {
		return ErrUserNotFound
	}
	t, ok := shT.users[target]
	if !ok {
		return ErrUserNotFound
	}
	f.Following[target] = struct{}{}
	t.Followers[follower] = struct{}{}
	return nil
}

// Unfollow removes the symmetric edge.
func (s *Store) Unfollow(follower, target string) error {
	if follower == target {
		return ErrSelfFollow
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	shF, shT, unlock := s.lockUserPair(follower, target)
	defer unlock()
	f, ok := shF.users[follower]
	if !ok {
		return ErrUserNotFound
	}
	t, ok := shT.users[target]
	if !ok {
		return ErrUserNotFound
	}
	delete(f.Following, target)
	delete(t.Followers, follower)
	return nil
}

// CreatePost validates authoring bounds, allocates the next id and inserts
// the post. The post is inserted before the author's id set is updated so
// readers that see the id always find the post.
func (s *Store) CreatePost(author, title, content string) (uint64, error) {
	if title == "" || content == "" {
		return 0, ErrEmptyContent
	}
	if utf8.RuneCountInString(title) > models.MaxTitleLen {
		return 0, ErrTitleTooLong
	}
	if utf8.RuneCountInString(content) > models.MaxContentLen {
		return 0, ErrBodyTooLong
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	if !s.userExists(author) {
		return 0, ErrUserNotFound
	}
	id := s.nextID.Add(1)
	post := models.NewPost(id, author, title, content)

	ps := s.postShardFor(id)
	ps.mu.Lock()
	ps.posts[id] = post
	ps.mu.Unlock()
	s.postCount.Add(1)

	us := s.userShardFor(author)
	us.mu.Lock()
	us.users[author].Posts[id] = struct{}{}
	us.mu.Unlock()
	return id, nil
}

// Rewin reshares a post by reference. The post must be in the caller's
// feed (the caller follows its author), must not be the caller's own and
// must not have been rewinned by the caller already.
func (s *Store) Rewin(username string, postID uint64) (uint64, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	ps := s.postShardFor(postID)
	ps.mu.Lock()
	original, ok := ps.posts[postID]
	ps.mu.Unlock()
	if !ok {
		return 0, ErrPostNotFound
	}
	if original.Author == username {
		return 0, ErrOwnPost
	}

	us := s.userShardFor(username)
	us.mu.Lock()
	defer us.mu.Unlock()
	user, ok := us.users[username]
	if !ok {
		return 0, ErrUserNotFound
	}
	if _, follows := user.Following[original.Author]; !follows {
		return 0, ErrNotInFeed
	}
	if _, done := user.Rewins[postID]; done {
		return 0, ErrDuplicateRewin
	}

	id := s.nextID.Add(1)
	rewin := models.NewRewin(id, username, postID)
	rs := s.postShardFor(id)
	rs.mu.Lock()
	rs.posts[id] = rewin
	rs.mu.Unlock()
	s.postCount.Add(1)

	user.Rewins[postID] = struct{}{}
	user.Posts[id] = struct{}{}
	return id, nil
}

// AddVote records a signed vote. A voter contributes at most one vote per
// post; the first vote wins and later votes fail with ErrDuplicateVote.
// The author-cannot-vote-own-post rule is the handler's contract, not
// enforced here.
func (s *Store) AddVote(postID uint64, voter string, value int) error {
	if value != 1 && value != -1 {
		return ErrInvalidVote
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	if !s.userExists(voter) {
		return ErrUserNotFound
	}
	ps := s.postShardFor(postID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	post, ok := ps.posts[postID]
	if !ok {
		return ErrPostNotFound
	}
	if _, voted := post.Votes[voter]; voted {
		return ErrDuplicateVote
	}
	post.Votes[voter] = value
	if value > 0 {
		post.NewUpvoters[voter] = struct{}{}
	} else {
		post.NewDownvotes++
	}
	return nil
}

// AddComment appends an immutable comment to the post.
func (s *Store) AddComment(postID uint64, author, content string) error {
	if content == "" {
		return ErrEmptyContent
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	if !s.userExists(author) {
		return ErrUserNotFound
	}
	ps := s.postShardFor(postID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	post, ok := ps.posts[postID]
	if !ok {
		return ErrPostNotFound
	}
	post.Comments = append(post.Comments, models.Comment{
		Author: author, Content: content, At: time.Now(),
	})
	post.NewComments[author]++
	return nil
}

// GetPost returns a detached view of one post.
func (s *Store) GetPost(id uint64) (models.PostView, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	ps := s.postShardFor(id)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	post, ok := ps.posts[id]
	if !ok {
		return models.PostView{}, ErrPostNotFound
	}
	return post.View(), nil
}

// GetUser returns a detached view of one user.
func (s *Store) GetUser(username string) (models.UserView, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	us := s.userShardFor(username)
	us.mu.Lock()
	defer us.mu.Unlock()
	user, ok := us.users[username]
	if !ok {
		return models.UserView{}, ErrUserNotFound
	}
	return user.View(), nil
}

// ListUsers returns the users sharing at least one interest tag with the
// requester, requester excluded.
func (s *Store) ListUsers(requester string) ([]models.UserView, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	me, err := s.lookupCopyTags(requester)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserView, 0)
	for i := range s.users {
		sh := &s.users[i]
		sh.mu.Lock()
		for name, u := range sh.users {
			if name != requester && me.SharesTagWith(u) {
				out = append(out, u.View())
			}
		}
		sh.mu.Unlock()
	}
	sortViews(out)
	return out, nil
}

// Followers lists usernames following the given user, sorted.
func (s *Store) Followers(username string) ([]string, error) {
	return s.edgeList(username, func(u *models.User) map[string]struct{} { return u.Followers })
}

// Following lists usernames the given user follows, sorted.
func (s *Store) Following(username string) ([]string, error) {
	return s.edgeList(username, func(u *models.User) map[string]struct{} { return u.Following })
}

func (s *Store) edgeList(username string, pick func(*models.User) map[string]struct{}) ([]string, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	us := s.userShardFor(username)
	us.mu.Lock()
	defer us.mu.Unlock()
	user, ok := us.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := make([]string, 0, len(pick(user)))
	for name := range pick(user) {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Blog returns the posts (originals and rewins) authored by the user,
// newest first.
func (s *Store) Blog(username string) ([]models.PostView, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	us := s.userShardFor(username)
	us.mu.Lock()
	user, ok := us.users[username]
	if !ok {
		us.mu.Unlock()
		return nil, ErrUserNotFound
	}
	ids := make([]uint64, 0, len(user.Posts))
	for id := range user.Posts {
		ids = append(ids, id)
	}
	us.mu.Unlock()

	return s.collectPosts(ids), nil
}

// Feed returns the posts authored (or rewinned) by the users the given
// user follows, newest first.
func (s *Store) Feed(username string) ([]models.PostView, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	us := s.userShardFor(username)
	us.mu.Lock()
	user, ok := us.users[username]
	if !ok {
		us.mu.Unlock()
		return nil, ErrUserNotFound
	}
	followed := make(map[string]struct{}, len(user.Following))
	for name := range user.Following {
		followed[name] = struct{}{}
	}
	us.mu.Unlock()

	out := make([]models.PostView, 0)
	for i := range s.posts {
		sh := &s.posts[i]
		sh.mu.Lock()
		for _, p := range sh.posts {
			if _, ok := followed[p.Author]; ok {
				out = append(out, p.View())
			}
		}
		sh.mu.Unlock()
	}
	sortPosts(out)
	return out, nil
}

// Wallet returns the user's balance and credit history.
func (s *Store) Wallet(username string) (models.WalletView, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	us := s.userShardFor(username)
	us.mu.Lock()
	defer us.mu.Unlock()
	user, ok := us.users[username]
	if !ok {
		return models.WalletView{}, ErrUserNotFound
	}
	return models.WalletView{
		Username: username,
		Balance:  user.Balance,
		History:  append([]models.RewardEntry(nil), user.History...),
	}, nil
}

// UserCount and PostCount feed the ops surface.
func (s *Store) UserCount() int64 { return s.userCount.Load() }
func (s *Store) PostCount() int64 { return s.postCount.Load() }

func (s *Store) userExists(name string) bool {
	us := s.userShardFor(name)
	us.mu.Lock()
	defer us.mu.Unlock()
	_, ok := us.users[name]
	return ok
}

// lookupCopyTags fetches a user and returns a shallow copy carrying only
// the tag slice, enough for tag intersection without holding the lock.
func (s *Store) lookupCopyTags(name string) (*models.User, error) {
	us := s.userShardFor(name)
	us.mu.Lock()
	defer us.mu.Unlock()
	user, ok := us.users[name]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &models.User{Username: name, Tags: append([]string(nil), user.Tags...)}, nil
}

func (s *Store) collectPosts(ids []uint64) []models.PostView {
	out := make([]models.PostView, 0, len(ids))
	for _, id := range ids {
		ps := s.postShardFor(id)
		ps.mu.Lock()
		if p, ok := ps.posts[id]; ok {
			out = append(out, p.View())
		}
		ps.mu.Unlock()
	}
	sortPosts(out)
	return out
}

func sortPosts(views []models.PostView) {
	sort.Slice(views, func(i, j int) bool { return views[i].ID > views[j].ID })
}

func sortViews(views []models.UserView) {
	sort.Slice(views, func(i, j int) bool { return views[i].Username < views[j].Username })
}
