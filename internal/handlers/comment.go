package handlers

import (
	"grove/internal/protocol"
	"grove/internal/router"
	"grove/internal/store"
	"grove/internal/utils"
)

type CommentHandler struct {
	store *store.Store
}

func NewCommentHandler(s *store.Store) *CommentHandler {
	return &CommentHandler{store: s}
}

type CommentRequest struct {
	Content string `json:"content"`
}

func (h *CommentHandler) Create(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	req := c.Body.(*CommentRequest)
	id := uint64(c.Int(0))
	if err := h.store.AddComment(id, username, utils.Sanitize(req.Content)); err != nil {
		return domainError(err)
	}
	view, err := h.store.GetPost(id)
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusCreated, map[string]int{"comments": len(view.Comments)})
}
