package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/services"
)

type PaymentHandler struct {
	payments  *services.PaymentVerificationService
	validator *services.ValidationHelper
}

func NewPaymentHandler(payments *services.PaymentVerificationService) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		validator: services.NewValidationHelper(),
	}
}

// Verify approves or rejects a pending payment proof
// @Summary Verify payment
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param paymentId path string true "Payment ID"
// @Param request body object{action=string,notes=string} true "Verdict"
// @Success 200 {object} services.VerificationResult
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/payments/{paymentId}/verify [post]
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action" validate:"required,oneof=approve reject"`
		Notes  string `json:"notes" validate:"max=1000"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.payments.Verify(r.Context(), chi.URLParam(r, "paymentId"), models.VerifyAction(req.Action), admin.ID, req.Notes)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
