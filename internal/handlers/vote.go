package handlers

import (
	"grove/internal/protocol"
	"grove/internal/router"
	"grove/internal/store"
)

type VoteHandler struct {
	store *store.Store
}

func NewVoteHandler(s *store.Store) *VoteHandler {
	return &VoteHandler{store: s}
}

type RateRequest struct {
	Vote int `json:"vote"`
}

// Rate casts a signed vote on a post. The store keeps the vote set; the
// author-cannot-vote-own-post rule lives here, per the store's contract.
func (h *VoteHandler) Rate(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	id := uint64(c.Int(0))
	view, err := h.store.GetPost(id)
	if err != nil {
		return domainError(err)
	}
	if view.Author == username {
		return protocol.Error(protocol.StatusForbidden, "cannot vote your own post")
	}
	req := c.Body.(*RateRequest)
	if err := h.store.AddVote(id, username, req.Vote); err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusOK, map[string]int{"vote": req.Vote})
}
