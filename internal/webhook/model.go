package webhook

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrEventNotFound    = errors.New("webhook event not found")
)

// Status is the processing state of a received event.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Event is one gateway notification kept for deduplication and retry.
type Event struct {
	ID           uuid.UUID
	EventID      string
	EventType    string
	Status       Status
	Payload      []byte
	ReceivedAt   time.Time
	ProcessedAt  *time.Time
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Payload is the gateway's notification body.
type Payload struct {
	EventID   string      `json:"eventId"`
	EventType string      `json:"eventType"`
	CreatedAt string      `json:"createdAt"`
	Data      PaymentData `json:"data"`
}

// PaymentData is the payment snapshot carried by a notification.
type PaymentData struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// DedupKey identifies the notification. Gateways that send no event id are
// deduplicated on order and status.
func (p Payload) DedupKey() string {
	if p.EventID != "" {
		return p.EventID
	}
	return p.Data.OrderID + ":" + p.Data.Status
}
