package handlers

import (
	"grove/internal/protocol"
	"grove/internal/router"
	"grove/internal/store"
	"grove/internal/utils"
)

type PostHandler struct {
	store *store.Store
}

func NewPostHandler(s *store.Store) *PostHandler {
	return &PostHandler{store: s}
}

type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *PostHandler) Create(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	req := c.Body.(*CreatePostRequest)
	id, err := h.store.CreatePost(username,
		utils.Sanitize(req.Title), utils.Sanitize(req.Content))
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusCreated, map[string]uint64{"id": id})
}

func (h *PostHandler) Show(c *router.Context) *protocol.Response {
	if _, errResp := requireUser(h.store, c); errResp != nil {
		return errResp
	}
	view, err := h.store.GetPost(uint64(c.Int(0)))
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusOK, view)
}

func (h *PostHandler) Rewin(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	id, err := h.store.Rewin(username, uint64(c.Int(0)))
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusCreated, map[string]uint64{"id": id})
}

// Blog returns the caller's own posts.
func (h *PostHandler) Blog(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	return h.blogOf(username)
}

// BlogOf returns another user's posts.
func (h *PostHandler) BlogOf(c *router.Context) *protocol.Response {
	if _, errResp := requireUser(h.store, c); errResp != nil {
		return errResp
	}
	return h.blogOf(c.Str(0))
}

func (h *PostHandler) blogOf(username string) *protocol.Response {
	views, err := h.store.Blog(username)
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusOK, views)
}

func (h *PostHandler) Feed(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	views, err := h.store.Feed(username)
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusOK, views)
}
