package handlers

import (
	"math/rand"

	"grove/internal/protocol"
	"grove/internal/router"
	"grove/internal/store"
)

type WalletHandler struct {
	store *store.Store
}

func NewWalletHandler(s *store.Store) *WalletHandler {
	return &WalletHandler{store: s}
}

func (h *WalletHandler) Show(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	wallet, err := h.store.Wallet(username)
	if err != nil {
		return domainError(err)
	}
	return protocol.JSON(protocol.StatusOK, wallet)
}

// ShowBTC converts the balance at a pseudo-random exchange rate. The rate
// is advisory, regenerated per request.
func (h *WalletHandler) ShowBTC(c *router.Context) *protocol.Response {
	username, errResp := requireUser(h.store, c)
	if errResp != nil {
		return errResp
	}
	wallet, err := h.store.Wallet(username)
	if err != nil {
		return domainError(err)
	}
	rate := rand.Float64()
	return protocol.JSON(protocol.StatusOK, map[string]float64{
		"balance": wallet.Balance,
		"rate":    rate,
		"btc":     wallet.Balance * rate,
	})
}
