package handlers

import (
	"grove/internal/protocol"
	"grove/internal/router"
	"grove/internal/store"
)

type AuthHandler struct {
	store *store.Store
}

func NewAuthHandler(s *store.Store) *AuthHandler {
	return &AuthHandler{store: s}
}

type RegisterRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Tags     []string `json:"tags"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *router.Context) *protocol.Response {
	req := c.Body.(*RegisterRequest)
	if req.Username == "" || req.Password == "" {
		return protocol.Error(protocol.StatusBadRequest, "username and password are required")
	}
	if err := h.store.Register(req.Username, req.Password, req.Tags); err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusCreated, map[string]string{"username": req.Username})
}

func (h *AuthHandler) Login(c *router.Context) *protocol.Response {
	req := c.Body.(*LoginRequest)
	token, err := h.store.Login(req.Username, req.Password)
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusOK, map[string]string{"token": token})
}

func (h *AuthHandler) Logout(c *router.Context) *protocol.Response {
	token := c.Request.Header(protocol.AuthHeader)
	if err := h.store.Logout(token); err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusOK, map[string]string{"status": "logged out"})
}
