package payments

import "errors"

var (
	// ErrValidation covers bad caller input. Never retried, surfaced immediately.
	ErrValidation = errors.New("invalid payment request")

	// ErrNotFound means the referenced payment or member does not exist.
	ErrNotFound = errors.New("payment record not found")

	// ErrGatewayUnavailable is a transport-level failure talking to Daraja.
	// Retried with backoff during initiation; during reconciliation the record
	// is simply left pending for the next sweep.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayRejected means Daraja synchronously refused the request
	// (non-zero ResponseCode). Not retryable.
	ErrGatewayRejected = errors.New("payment gateway rejected request")
)
