package paymentsrepo

import (
	"context"
	"time"
)

// Status is the payment lifecycle state. Only pending records may transition;
// confirmed, failed and expired are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is permitted out of s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusExpired
}

type Purpose string

const (
	PurposeRegistration Purpose = "registration"
	PurposeRenewal      Purpose = "renewal"
	PurposeLateFee      Purpose = "late_fee"
)

func ValidPurpose(p Purpose) bool {
	switch p {
	case PurposeRegistration, PurposeRenewal, PurposeLateFee:
		return true
	}
	return false
}

type Payment struct {
	ID                int64      `json:"id"`
	Reference         string     `json:"payment_reference"`
	MemberID          int64      `json:"member_id"`
	AmountCents       int64      `json:"amount_cents"`
	Currency          string     `json:"currency"`
	Purpose           Purpose    `json:"purpose"`
	PhoneNumber       string     `json:"phone_number"`
	Status            Status     `json:"status"`
	MpesaReceipt      *string    `json:"mpesa_receipt_number"` // M-Pesa confirmation code, set by callback only
	CheckoutRequestID *string    `json:"checkout_request_id"`
	MerchantRequestID *string    `json:"merchant_request_id"`
	FailureReason     *string    `json:"failure_reason,omitempty"`
	AttemptCount      int        `json:"attempt_count"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ConfirmedAt       *time.Time `json:"confirmed_at"`
}

// ListFilters narrows List results. Zero values mean "no filter".
type ListFilters struct {
	Status  string
	Purpose string
	Since   *time.Time
}

type Store interface {
	Create(ctx context.Context, p *Payment) (*Payment, error)
	GetByReference(ctx context.Context, reference string) (*Payment, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Payment, error)
	SetCheckoutIDs(ctx context.Context, reference, merchantRequestID, checkoutRequestID string) error
	IncrementAttempts(ctx context.Context, reference string) (int, error)

	// Transition conditionally moves a pending record to a terminal status.
	// Returns false when the record was not pending (duplicate delivery or a
	// lost race with a concurrent caller) -- a no-op for the caller.
	Transition(ctx context.Context, reference string, target Status, mpesaReceipt, reason string) (bool, error)

	ListPendingOlderThan(ctx context.Context, age time.Duration) ([]*Payment, error)
	List(ctx context.Context, f ListFilters, limit, offset int) ([]*Payment, int, error)
}
