package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/services"
)

type BookingHandler struct {
	bookings  *services.BookingService
	payments  *services.PaymentVerificationService
	validator *services.ValidationHelper
}

func NewBookingHandler(bookings *services.BookingService, payments *services.PaymentVerificationService) *BookingHandler {
	return &BookingHandler{
		bookings:  bookings,
		payments:  payments,
		validator: services.NewValidationHelper(),
	}
}

// CreateBooking reserves a service for the caller
// @Summary Create booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{service_id=string} true "Service to book"
// @Success 201 {object} models.Booking
// @Failure 404 {object} services.ErrorResponse
// @Router /bookings [post]
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		ServiceID string `json:"service_id" validate:"required"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	b, err := h.bookings.CreateBooking(r.Context(), id.ID, req.ServiceID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	b, err := h.bookings.Get(r.Context(), id, chi.URLParam(r, "bookingId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	events, err := h.bookings.History(r.Context(), id, chi.URLParam(r, "bookingId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.providerAction(w, r, h.bookings.ProviderApprove)
}

// Decline rejects a pending or confirmed booking; a paid booking is refunded
// to the customer's wallet.
// @Summary Decline booking
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} services.TransitionResult
// @Failure 409 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/decline [post]
func (h *BookingHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.providerAction(w, r, h.bookings.ProviderDecline)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.providerAction(w, r, h.bookings.ProviderCancel)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	result, err := h.bookings.MarkCompleted(r.Context(), id, chi.URLParam(r, "bookingId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BookingHandler) Payout(w http.ResponseWriter, r *http.Request) {
	ref, err := h.bookings.Payout(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// SubmitPayment attaches the first payment proof to a booking
// @Summary Submit booking payment proof
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Param request body models.ProofSubmission true "Transfer proof"
// @Success 201 {object} models.Payment
// @Failure 409 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/payments [post]
func (h *BookingHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.ProofSubmission
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	bookingID := chi.URLParam(r, "bookingId")
	payment, err := h.payments.SubmitProof(r.Context(), id.ID, &bookingID, req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *BookingHandler) ResubmitPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.ProofSubmission
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	payment, err := h.payments.ResubmitProof(r.Context(), id.ID, chi.URLParam(r, "bookingId"), req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *BookingHandler) PayWithWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	result, err := h.payments.PayWithWallet(r.Context(), id.ID, chi.URLParam(r, "bookingId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type providerOp func(ctx context.Context, providerID, bookingID string) (*services.TransitionResult, error)

func (h *BookingHandler) providerAction(w http.ResponseWriter, r *http.Request, op providerOp) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	result, err := op(r.Context(), id.ID, chi.URLParam(r, "bookingId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
