package handlers

import (
	"errors"
	"log/slog"

	"grove/internal/protocol"
	"grove/internal/router"
	"grove/internal/store"
)

// requireUser resolves the session token on the request. Handlers for
// authenticated endpoints call it first and return the error response
// untouched when it is non-nil.
func requireUser(s *store.Store, c *router.Context) (string, *protocol.Response) {
	token := c.Request.Header(protocol.AuthHeader)
	if token == "" {
		return "", protocol.Error(protocol.StatusUnauthorized, "missing auth token")
	}
	username, ok := s.Authenticate(token)
	if !ok {
		return "", protocol.Error(protocol.StatusUnauthorized, "invalid auth token")
	}
	return username, nil
}

// domainError maps store errors onto wire responses. Anything unknown is a
// logged 500; domain conflicts keep their specific names so clients can
// tell them apart from generic failure.
func domainError(err error) *protocol.Response {
	switch {
	case errors.Is(err, store.ErrUserExists),
		errors.Is(err, store.ErrAlreadyLoggedIn),
		errors.Is(err, store.ErrDuplicateVote),
		errors.Is(err, store.ErrDuplicateRewin):
		return protocol.Error(protocol.StatusConflict, err.Error())
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrPostNotFound):
		return protocol.Error(protocol.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrAuthFailed),
		errors.Is(err, store.ErrInvalidToken):
		return protocol.Error(protocol.StatusUnauthorized, err.Error())
	case errors.Is(err, store.ErrOwnPost),
		errors.Is(err, store.ErrNotInFeed):
		return protocol.Error(protocol.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrSelfFollow),
		errors.Is(err, store.ErrInvalidVote),
		errors.Is(err, store.ErrEmptyUsername),
		errors.Is(err, store.ErrEmptyContent),
		errors.Is(err, store.ErrTitleTooLong),
		errors.Is(err, store.ErrBodyTooLong):
		return protocol.Error(protocol.StatusBadRequest, err.Error())
	default:
		slog.Error("unexpected store error", "err", err)
		return protocol.Error(protocol.StatusInternal, "internal error")
	}
}
