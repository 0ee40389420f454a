package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/services"
)

type WalletHandler struct {
	wallet    *services.WalletService
	payments  *services.PaymentVerificationService
	validator *services.ValidationHelper
}

func NewWalletHandler(wallet *services.WalletService, payments *services.PaymentVerificationService) *WalletHandler {
	return &WalletHandler{
		wallet:    wallet,
		payments:  payments,
		validator: services.NewValidationHelper(),
	}
}

// OpenWallet creates the caller's wallet, or returns the existing one
// @Summary Open wallet
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Account
// @Router /wallet [post]
func (h *WalletHandler) OpenWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	account, err := h.wallet.OpenAccount(r.Context(), id.ID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// GetBalance returns the caller's wallet balance
// @Summary Wallet balance
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Balance
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	balance, err := h.wallet.GetUserBalance(r.Context(), id.ID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.wallet.ListUserTransactions(r.Context(), id.ID, limit)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

// RequestReload submits proof of an external transfer for admin review
// @Summary Request wallet reload
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ProofSubmission true "Transfer proof"
// @Success 201 {object} models.Payment
// @Failure 400 {object} services.ErrorResponse
// @Router /wallet/reload-requests [post]
func (h *WalletHandler) RequestReload(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.ProofSubmission
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	payment, err := h.payments.SubmitProof(r.Context(), id.ID, nil, req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// AdminReload credits a user's wallet directly. reference_id makes retries
// safe.
func (h *WalletHandler) AdminReload(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
		ReferenceID string `json:"reference_id" validate:"required,max=200"`
		Memo        string `json:"memo" validate:"max=500"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	userID := chi.URLParam(r, "userId")
	log.Printf("[WALLET] Admin %s reloading %d cents to %s (ref %s)", admin.ID, req.AmountCents, userID, req.ReferenceID)
	ref, err := h.wallet.Reload(r.Context(), userID, req.AmountCents, req.Memo, "admin:"+req.ReferenceID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (h *WalletHandler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.wallet.GetBalance(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *WalletHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.wallet.Reconcile(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
