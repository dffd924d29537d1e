package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"booking-engine/internal/booking"
	"booking-engine/internal/commission"
	"booking-engine/internal/db"
	"booking-engine/internal/event"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const maxWebhookBodyBytes = 1 << 20

type Handler struct {
	bookings   *booking.Service
	rates      *db.CommissionConfigRepository
	reconciler *event.Reconciler
	logger     *slog.Logger
}

func NewHandler(bookings *booking.Service, rates *db.CommissionConfigRepository, reconciler *event.Reconciler, logger *slog.Logger) http.Handler {
	h := &Handler{
		bookings:   bookings,
		rates:      rates,
		reconciler: reconciler,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /bookings", h.createBooking)
	mux.HandleFunc("POST /bookings/{id}/payment-reference", h.attachPaymentReference)
	mux.HandleFunc("GET /tenants/{tenantId}/availability", h.availability)
	mux.HandleFunc("GET /tenants/{tenantId}/commission-preview", h.commissionPreview)
	mux.HandleFunc("POST /webhooks/payment", h.paymentWebhook)
	return mux
}

type createBookingRequest struct {
	TenantID    string `json:"tenantId"`
	Date        string `json:"date"`
	GrossAmount int64  `json:"grossAmount"`
}

type bookingResponse struct {
	BookingID string `json:"bookingId"`
	Status    string `json:"status"`
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	entity, err := h.bookings.Create(r.Context(), req.TenantID, date, req.GrossAmount)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookingResponse{BookingID: entity.ID.String(), Status: entity.Status})
}

type attachPaymentReferenceRequest struct {
	PaymentRef string `json:"paymentRef"`
}

func (h *Handler) attachPaymentReference(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	var req attachPaymentReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	entity, err := h.bookings.AttachPaymentReference(r.Context(), id, req.PaymentRef)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookingResponse{BookingID: entity.ID.String(), Status: entity.Status})
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	available, err := h.bookings.Available(r.Context(), r.PathValue("tenantId"), date)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Availability read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func (h *Handler) commissionPreview(w http.ResponseWriter, r *http.Request) {
	gross, err := strconv.ParseInt(r.URL.Query().Get("gross"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	rate, err := h.rates.GetRate(r.Context(), r.PathValue("tenantId"))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Commission rate read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	result, err := commission.Fee(gross, rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"fee": result.Fee, "rate": rate})
}

func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	outcome := h.reconciler.Process(r.Context(), payload, r.Header.Get(event.SignatureHeader))

	switch outcome {
	case event.OutcomeProcessed, event.OutcomeDuplicate:
		writeJSON(w, http.StatusOK, map[string]string{"status": outcome.String()})
	case event.OutcomeAuthFailed:
		writeError(w, http.StatusUnauthorized, "invalid_signature")
	case event.OutcomeRejected:
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload")
	default:
		// Non-2xx asks the provider to redeliver.
		writeError(w, http.StatusInternalServerError, "processing_failed")
	}
}

// writeBookingError maps domain errors to the small, stable code set that
// callers see; internal details stay in the logs.
func (h *Handler) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrDateConflict):
		writeError(w, http.StatusConflict, "date_conflict")
	case errors.Is(err, booking.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "timeout")
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition")
	case errors.Is(err, booking.ErrPaymentRefInUse):
		writeError(w, http.StatusConflict, "payment_ref_conflict")
	case errors.Is(err, booking.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input")
	default:
		h.logger.Error("Unhandled booking error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
