package db

import (
	"time"

	"github.com/google/uuid"
)

const (
	BookingPending   = "PENDING"
	BookingConfirmed = "CONFIRMED"
	BookingFailed    = "FAILED"
	BookingRefunded  = "REFUNDED"
)

const (
	EventReceived  = "RECEIVED"
	EventProcessed = "PROCESSED"
	EventFailed    = "FAILED"
)

// BookingEntity is one reserved date for one tenant. Money fields are in
// minor units. Commission fields are set once at confirmation and never
// overwritten; refund amounts are stored separately.
type BookingEntity struct {
	ID                 uuid.UUID
	TenantID           string
	BookingDate        time.Time
	GrossAmount        int64
	CommissionAmount   *int64
	CommissionRate     *float64
	PaymentRef         *string
	RefundedAmount     *int64
	RefundedCommission *int64
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PaymentEventEntity is one provider webhook delivery, keyed by the
// provider-assigned event id. Rows are never deleted.
type PaymentEventEntity struct {
	ID              uuid.UUID
	ProviderEventID string
	EventType       string
	PaymentRef      string
	Payload         string
	Status          string
	Attempts        int
	LastError       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessedAt     *time.Time
}
