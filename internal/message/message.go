package message

import "encoding/json"

// Provider event types.
const (
	PaymentSucceeded = "payment.succeeded"
	PaymentFailed    = "payment.failed"
	PaymentRefunded  = "payment.refunded"
)

// PaymentEvent is the decoded body of one provider delivery. The payment
// reference is the only pointer to a booking; client-supplied booking ids
// are never trusted.
type PaymentEvent struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	PaymentRef string `json:"paymentRef"`
	Amount     int64  `json:"amount,omitempty"`
}

// SignedEnvelope wraps a raw event payload with its signature for
// queue-based delivery, mirroring the webhook's body + signature header.
type SignedEnvelope struct {
	Signature string          `json:"signature"`
	Payload   json.RawMessage `json:"payload"`
}
