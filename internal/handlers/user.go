package handlers

import (
	"grove/internal/protocol"
	"grove/internal/router"
	"grove/internal/services"
	"grove/internal/store"
)

type UserHandler struct {
	store    *store.Store
	notifier services.Notifier
}

func NewUserHandler(s *store.Store, n services.Notifier) *UserHandler {
	return &UserHandler{store: s, notifier: n}
}

// List returns the users sharing at least one interest tag with the caller.
func (h *UserHandler) List(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	views, err := h.store.ListUsers(username)
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusOK, views)
}

func (h *UserHandler) Followers(c *router.Context) *protocol.Response {
	if _, errResp := requireUser(h.store, c); errResp != nil {
		return errResp
	}
	names, err := h.store.Followers(c.Str(0))
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusOK, names)
}

func (h *UserHandler) Following(c *router.Context) *protocol.Response {
	if _, errResp := requireUser(h.store, c); errResp != nil {
		return errResp
	}
	names, err := h.store.Following(c.Str(0))
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusOK, names)
}

func (h *UserHandler) Follow(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	target := c.Str(0)
	if err := h.store.Follow(username, target); err != nil {
		return domainError(err)
	}
	h.notifier.NotifyFollowed(target, username)
	return protocol.JSON(protocol.StatusOK, map[string]string{"following": target})
}

func (h *UserHandler) Unfollow(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	target := c.Str(0)
	if err := h.store.Unfollow(username, target); err != nil {
		return domainError(err)
	}
	h.notifier.NotifyUnfollowed(target, username)
	return protocol.JSON(protocol.StatusOK, map[string]string{"unfollowed": target})
}
