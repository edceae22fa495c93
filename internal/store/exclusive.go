package store

import (
	"grove/internal/models"
)

// Tx is the maintenance view handed to an exclusive section. While a Tx is
// live no normal operation runs, so it may touch any user or post directly
// without shard locks.
type Tx struct {
	s *Store
}

// Exclusive runs fn under the store's barrier: admission of new normal
// operations stops, operations already admitted drain, then fn gets sole
// access to the whole store. Exclusive sections are serialized relative to
// each other. fn must not retain the Tx or any object reached through it.
func (s *Store) Exclusive(fn func(tx *Tx)) {
	s.gate.Lock()
	defer s.gate.Unlock()
	fn(&Tx{s: s})
}

// ForEachPost visits every post in unspecified order.
func (tx *Tx) ForEachPost(fn func(*models.Post)) {
	for i := range tx.s.posts {
		for _, p := range tx.s.posts[i].posts {
			fn(p)
		}
	}
}

// ForEachUser visits every user in unspecified order.
func (tx *Tx) ForEachUser(fn func(*models.User)) {
	for i := range tx.s.users {
		for _, u := range tx.s.users[i].users {
			fn(u)
		}
	}
}

// User returns the live user record, or nil.
func (tx *Tx) User(name string) *models.User {
	return tx.s.userShardFor(name).users[name]
}

// NextPostID exposes the id counter for snapshots.
func (tx *Tx) NextPostID() uint64 {
	return tx.s.nextID.Load()
}

// SetNextPostID seeds the id counter when rebuilding from a snapshot.
func (tx *Tx) SetNextPostID(v uint64) {
	tx.s.nextID.Store(v)
}

// PutUser inserts a restored user record.
func (tx *Tx) PutUser(u *models.User) {
	sh := tx.s.userShardFor(u.Username)
	if _, exists := sh.users[u.Username]; !exists {
		tx.s.userCount.Add(1)
	}
	sh.users[u.Username] = u
}

// PutPost inserts a restored post record.
func (tx *Tx) PutPost(p *models.Post) {
	sh := tx.s.postShardFor(p.ID)
	if _, exists := sh.posts[p.ID]; !exists {
		tx.s.postCount.Add(1)
	}
	sh.posts[p.ID] = p
}
