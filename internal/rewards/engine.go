// Package rewards turns post activity into wallet credits. Once per cycle
// the engine takes the store's exclusive section, scores every post on the
// votes and comments accrued since the previous cycle, splits the reward
// between the author and the curators, and clears the per-post counters.
package rewards

import (
	"context"
	"log/slog"
	"math"
	"time"

	"grove/internal/config"
	"grove/internal/metrics"
	"grove/internal/models"
	"grove/internal/store"
)

// Announcer is notified after every completed cycle. Delivery is the
// collaborator's problem; the engine only triggers it.
type Announcer interface {
	RewardsUpdated()
}

type Engine struct {
	store     *store.Store
	cfg       config.RewardsConfig
	announcer Announcer
	log       *slog.Logger
}

func New(s *store.Store, cfg config.RewardsConfig, announcer Announcer, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, cfg: cfg, announcer: announcer, log: log.With("component", "rewards")}
}

// Run drives cycles on the configured interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("reward engine stopped")
			return
		case <-ticker.C:
			e.RunCycle()
		}
	}
}

// RunCycle performs one reward pass under the exclusive barrier.
func (e *Engine) RunCycle() {
	start := time.Now()
	var paid float64
	var posts, rewarded int

	e.store.Exclusive(func(tx *store.Tx) {
		now := time.Now()
		tx.ForEachPost(func(p *models.Post) {
			posts++
			p.Age++
			gain := e.postGain(p)
			if gain > 0 {
				rewarded++
				paid += e.credit(tx, p, gain, now)
			}
			p.NewUpvoters = make(map[string]struct{})
			p.NewDownvotes = 0
			p.NewComments = make(map[string]int)
		})
	})

	metrics.RewardCycles.Inc()
	metrics.RewardsPaid.Add(paid)
	if e.announcer != nil {
		e.announcer.RewardsUpdated()
	}
	e.log.Info("reward cycle complete",
		"posts", posts, "rewarded", rewarded, "paid", paid,
		"took", time.Since(start))
}

// postGain scores one post on its activity since the last cycle. Both
// terms are logarithmic so the score is monotonic in votes and comments
// but boundedly diminishing; the per-commenter term saturates, so spam
// commenting cannot dominate. The result decays with post age.
func (e *Engine) postGain(p *models.Post) float64 {
	net := len(p.NewUpvoters) - p.NewDownvotes
	if net < 0 {
		net = 0
	}
	votePart := math.Log1p(float64(net))

	var commentSum float64
	for _, n := range p.NewComments {
		commentSum += 2.0 / (1.0 + math.Exp(-(float64(n) - 1.0)))
	}
	commentPart := math.Log1p(commentSum)

	return e.cfg.Normalization * (votePart + commentPart) / float64(p.Age)
}

// credit splits the gain between author and curators and returns the total
// amount actually paid out.
func (e *Engine) credit(tx *store.Tx, p *models.Post, gain float64, now time.Time) float64 {
	var paid float64
	if amount := gain * e.cfg.AuthorCut; amount > 0 {
		paid += pay(tx, p.Author, amount, now)
	}

	curators := make(map[string]struct{}, len(p.NewUpvoters)+len(p.NewComments))
	for name := range p.NewUpvoters {
		curators[name] = struct{}{}
	}
	for name := range p.NewComments {
		curators[name] = struct{}{}
	}
	if len(curators) == 0 {
		return paid
	}
	share := gain * e.cfg.CuratorCut / float64(len(curators))
	for name := range curators {
		paid += pay(tx, name, share, now)
	}
	return paid
}

func pay(tx *store.Tx, username string, amount float64, now time.Time) float64 {
	u := tx.User(username)
	if u == nil || amount <= 0 {
		return 0
	}
	u.Balance += amount
	u.History = append(u.History, models.RewardEntry{Amount: amount, At: now})
	return amount
}
