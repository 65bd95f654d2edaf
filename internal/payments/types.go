package payments

import (
	"kalda/internal/domain/paymentsrepo"
)

// PushRequest is an outbound STK-Push charge.
type PushRequest struct {
	AmountCents int64
	PhoneNumber string // normalized 2547XXXXXXXX / 2541XXXXXXXX
	Reference   string // our payment reference, sent as AccountReference
	Description string
}

// PushAck is Daraja's synchronous acknowledgement. It only confirms the
// request was accepted for processing -- never payment success.
type PushAck struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResponseInfo      string
	CustomerMessage   string
}

// State is the gateway's view of a transaction when actively queried.
type State string

const (
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
	StateExpired   State = "expired" // STK prompt timed out on the handset
	StatePending   State = "pending" // still being processed
	StateUnknown   State = "unknown" // gateway never heard of it
)

type StatusResult struct {
	State      State
	ResultCode string
	ResultDesc string
}

// InitiateRequest is the caller-facing contract for starting a payment.
type InitiateRequest struct {
	MemberID    int64
	AmountCents int64
	Currency    string
	Purpose     paymentsrepo.Purpose
	PhoneNumber string
}

// Outcome is a terminal result to apply to a pending record. Both ingestion
// paths (gateway callback and reconciliation query) are expressed as one.
type Outcome struct {
	Target       paymentsrepo.Status
	MpesaReceipt string
	Reason       string
	Source       string // "callback" or "reconcile"
}
