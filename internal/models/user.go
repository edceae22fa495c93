package models

import (
	"time"
)

// User is the in-memory record for one registered account. The store owns
// every User; handlers only ever see detached views built by View.
type User struct {
	Username     string
	PasswordHash string
	Tags         []string
	Followers    map[string]struct{}
	Following    map[string]struct{}
	Posts        map[uint64]struct{} // authored post ids
	Rewins       map[uint64]struct{} // reshared post ids
	Balance      float64
	History      []RewardEntry
	CreatedAt    time.Time
}

// RewardEntry is one wallet credit from a reward cycle.
type RewardEntry struct {
	Amount float64   `json:"amount"`
	At     time.Time `json:"at"`
}

func NewUser(username, passwordHash string, tags []string) *User {
	return &User{
		Username:     username,
		PasswordHash: passwordHash,
		Tags:         append([]string(nil), tags...),
		Followers:    make(map[string]struct{}),
		Following:    make(map[string]struct{}),
		Posts:        make(map[uint64]struct{}),
		Rewins:       make(map[uint64]struct{}),
		History:      make([]RewardEntry, 0),
		CreatedAt:    time.Now(),
	}
}

// SharesTagWith reports whether the two users have at least one tag in common.
func (u *User) SharesTagWith(other *User) bool {
	for _, a := range u.Tags {
		for _, b := range other.Tags {
			if a == b {
				return true
			}
		}
	}
	return false
}

// UserView is a detached copy safe to hold after the store call returns.
type UserView struct {
	Username  string   `json:"username"`
	Tags      []string `json:"tags"`
	Followers int      `json:"followers"`
	Following int      `json:"following"`
}

// View builds a detached view of the user.
func (u *User) View() UserView {
	return UserView{
		Username:  u.Username,
		Tags:      append([]string(nil), u.Tags...),
		Followers: len(u.Followers),
		Following: len(u.Following),
	}
}

// WalletView is the wallet surface: current balance plus credit history.
type WalletView struct {
	Username string        `json:"username"`
	Balance  float64       `json:"balance"`
	History  []RewardEntry `json:"history"`
}
