package store

import "errors"

// Domain conflicts and failures surfaced by store operations. Handlers map
// these onto wire status codes with errors.Is.
var (
	ErrUserExists      = errors.New("user already exists")
	ErrUserNotFound    = errors.New("user does not exist")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrAlreadyLoggedIn = errors.New("user already logged in")
	ErrInvalidToken    = errors.New("invalid or expired token")

	ErrPostNotFound   = errors.New("post does not exist")
	ErrDuplicateVote  = errors.New("already voted on this post")
	ErrInvalidVote    = errors.New("vote must be +1 or -1")
	ErrDuplicateRewin = errors.New("post already rewinned")
	ErrOwnPost        = errors.New("cannot rewin your own post")
	ErrNotInFeed      = errors.New("post is not in your feed")

	ErrSelfFollow    = errors.New("cannot follow yourself")
	ErrEmptyUsername = errors.New("username must not be empty")
	ErrEmptyContent  = errors.New("content must not be empty")
	ErrTitleTooLong  = errors.New("title exceeds 20 characters")
	ErrBodyTooLong   = errors.New("content exceeds 500 characters")
)
