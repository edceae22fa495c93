// Package snapshot produces detached images of the whole store under the
// exclusive barrier and feeds them to persistence sinks. Copying happens
// inside the exclusive section; serialization and persistence happen after
// it is released, so a slow sink never holds up traffic.
package snapshot

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"grove/internal/config"
	"grove/internal/metrics"
	"grove/internal/models"
	"grove/internal/store"
)

// Image is the serializable snapshot of the store at one instant. It
// shares no memory with the live store.
type Image struct {
	TakenAt    time.Time   `json:"taken_at"`
	NextPostID uint64      `json:"next_post_id"`
	Users      []UserImage `json:"users"`
	Posts      []PostImage `json:"posts"`
}

type UserImage struct {
	Username     string               `json:"username"`
	PasswordHash string               `json:"password_hash"`
	Tags         []string             `json:"tags"`
	Followers    []string             `json:"followers"`
	Following    []string             `json:"following"`
	Posts        []uint64             `json:"posts"`
	Rewins       []uint64             `json:"rewins"`
	Balance      float64              `json:"balance"`
	History      []models.RewardEntry `json:"history"`
	CreatedAt    time.Time            `json:"created_at"`
}

type PostImage struct {
	ID           uint64           `json:"id"`
	Author       string           `json:"author"`
	Title        string           `json:"title,omitempty"`
	Content      string           `json:"content,omitempty"`
	RewinOf      uint64           `json:"rewin_of,omitempty"`
	Votes        map[string]int   `json:"votes"`
	Comments     []models.Comment `json:"comments"`
	Age          int              `json:"age"`
	NewUpvoters  []string         `json:"new_upvoters"`
	NewDownvotes int              `json:"new_downvotes"`
	NewComments  map[string]int   `json:"new_comments"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Capture takes the exclusive section and copies everything out. Users and
// posts are sorted so the image serializes deterministically.
func Capture(s *store.Store) *Image {
	start := time.Now()
	img := &Image{TakenAt: start}
	s.Exclusive(func(tx *store.Tx) {
		img.NextPostID = tx.NextPostID()
		tx.ForEachUser(func(u *models.User) {
			img.Users = append(img.Users, copyUser(u))
		})
		tx.ForEachPost(func(p *models.Post) {
			img.Posts = append(img.Posts, copyPost(p))
		})
	})
	sort.Slice(img.Users, func(i, j int) bool { return img.Users[i].Username < img.Users[j].Username })
	sort.Slice(img.Posts, func(i, j int) bool { return img.Posts[i].ID < img.Posts[j].ID })
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	return img
}

// Restore rebuilds a store from an image. Sessions are not part of the
// image; a restored store starts with nobody logged in.
func Restore(img *Image) *store.Store {
	s := store.New()
	s.Exclusive(func(tx *store.Tx) {
		tx.SetNextPostID(img.NextPostID)
		for i := range img.Users {
			tx.PutUser(restoreUser(&img.Users[i]))
		}
		for i := range img.Posts {
			tx.PutPost(restorePost(&img.Posts[i]))
		}
	})
	return s
}

func copyUser(u *models.User) UserImage {
	return UserImage{
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Tags:         append([]string(nil), u.Tags...),
		Followers:    sortedKeys(u.Followers),
		Following:    sortedKeys(u.Following),
		Posts:        sortedIDs(u.Posts),
		Rewins:       sortedIDs(u.Rewins),
		Balance:      u.Balance,
		History:      append([]models.RewardEntry(nil), u.History...),
		CreatedAt:    u.CreatedAt,
	}
}

func restoreUser(img *UserImage) *models.User {
	u := models.NewUser(img.Username, img.PasswordHash, img.Tags)
	u.CreatedAt = img.CreatedAt
	u.Balance = img.Balance
	u.History = append(u.History, img.History...)
	for _, name := range img.Followers {
		u.Followers[name] = struct{}{}
	}
	for _, name := range img.Following {
		u.Following[name] = struct{}{}
	}
	for _, id := range img.Posts {
		u.Posts[id] = struct{}{}
	}
	for _, id := range img.Rewins {
		u.Rewins[id] = struct{}{}
	}
	return u
}

func copyPost(p *models.Post) PostImage {
	votes := make(map[string]int, len(p.Votes))
	for k, v := range p.Votes {
		votes[k] = v
	}
	newComments := make(map[string]int, len(p.NewComments))
	for k, v := range p.NewComments {
		newComments[k] = v
	}
	return PostImage{
		ID:           p.ID,
		Author:       p.Author,
		Title:        p.Title,
		Content:      p.Content,
		RewinOf:      p.RewinOf,
		Votes:        votes,
		Comments:     append([]models.Comment(nil), p.Comments...),
		Age:          p.Age,
		NewUpvoters:  sortedKeys(p.NewUpvoters),
		NewDownvotes: p.NewDownvotes,
		NewComments:  newComments,
		CreatedAt:    p.CreatedAt,
	}
}

func restorePost(img *PostImage) *models.Post {
	p := models.NewPost(img.ID, img.Author, img.Title, img.Content)
	p.RewinOf = img.RewinOf
	p.Age = img.Age
	p.NewDownvotes = img.NewDownvotes
	p.CreatedAt = img.CreatedAt
	p.Comments = append(p.Comments, img.Comments...)
	for k, v := range img.Votes {
		p.Votes[k] = v
	}
	for _, name := range img.NewUpvoters {
		p.NewUpvoters[name] = struct{}{}
	}
	for k, v := range img.NewComments {
		p.NewComments[k] = v
	}
	return p
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedIDs(m map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sink receives captured images. Implementations must tolerate being
// called from the snapshot loop's goroutine.
type Sink interface {
	Persist(img *Image) error
}

// Snapshotter drives periodic captures into the configured sinks.
type Snapshotter struct {
	store    *store.Store
	interval time.Duration
	sinks    []Sink
	log      *slog.Logger
}

func NewSnapshotter(s *store.Store, cfg config.PersistenceConfig, log *slog.Logger, sinks ...Sink) *Snapshotter {
	if log == nil {
		log = slog.Default()
	}
	return &Snapshotter{
		store:    s,
		interval: cfg.Interval.Std(),
		sinks:    sinks,
		log:      log.With("component", "snapshot"),
	}
}

// Run captures on the configured interval until ctx is cancelled.
func (sn *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(sn.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			sn.log.Info("snapshotter stopped")
			return
		case <-ticker.C:
			sn.RunOnce()
		}
	}
}

// RunOnce captures one image and hands it to every sink. A failing sink is
// logged and skipped; it never blocks the barrier, which was already
// released by the time sinks run.
func (sn *Snapshotter) RunOnce() {
	img := Capture(sn.store)
	for _, sink := range sn.sinks {
		if err := sink.Persist(img); err != nil {
			sn.log.Error("snapshot sink failed", "err", err)
		}
	}
	sn.log.Info("snapshot taken", "users", len(img.Users), "posts", len(img.Posts))
}
