package models

import (
	"time"
)

// Authoring bounds, enforced when a post is created.
const (
	MaxTitleLen   = 20
	MaxContentLen = 500
)

// Post is the in-memory record for one post. A post is either an original
// (Title/Content set, RewinOf zero) or a rewin of another post (RewinOf set,
// Title/Content empty). Posts are never deleted.
type Post struct {
	ID      uint64
	Author  string
	Title   string
	Content string
	RewinOf uint64 // 0 for originals

	Votes    map[string]int // voter -> +1/-1, first vote wins
	Comments []Comment

	// Reward accounting. Age counts completed reward cycles; the "new"
	// fields accumulate only activity since the last cycle and are cleared
	// when the cycle credits wallets.
	Age          int
	NewUpvoters  map[string]struct{}
	NewDownvotes int
	NewComments  map[string]int // commenter -> comments since last cycle

	CreatedAt time.Time
}

// Comment is immutable once appended and ordered within its post.
type Comment struct {
	Author  string    `json:"author"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

func NewPost(id uint64, author, title, content string) *Post {
	return &Post{
		ID:          id,
		Author:      author,
		Title:       title,
		Content:     content,
		Votes:       make(map[string]int),
		Comments:    make([]Comment, 0),
		NewUpvoters: make(map[string]struct{}),
		NewComments: make(map[string]int),
		CreatedAt:   time.Now(),
	}
}

func NewRewin(id uint64, author string, original uint64) *Post {
	p := NewPost(id, author, "", "")
	p.RewinOf = original
	return p
}

func (p *Post) IsRewin() bool { return p.RewinOf != 0 }

// Upvotes counts recorded positive votes.
func (p *Post) Upvotes() int {
	n := 0
	for _, v := range p.Votes {
		if v > 0 {
			n++
		}
	}
	return n
}

// Downvotes counts recorded negative votes.
func (p *Post) Downvotes() int {
	return len(p.Votes) - p.Upvotes()
}

// PostView is a detached copy of a post, safe to serialize after the store
// call returns.
type PostView struct {
	ID        uint64    `json:"id"`
	Author    string    `json:"author"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content,omitempty"`
	RewinOf   uint64    `json:"rewin_of,omitempty"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	Comments  []Comment `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
}

// View builds a detached view of the post.
func (p *Post) View() PostView {
	return PostView{
		ID:        p.ID,
		Author:    p.Author,
		Title:     p.Title,
		Content:   p.Content,
		RewinOf:   p.RewinOf,
		Upvotes:   p.Upvotes(),
		Downvotes: p.Downvotes(),
		Comments:  append([]Comment(nil), p.Comments...),
		CreatedAt: p.CreatedAt,
	}
}
