package main

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"net/http"

	"kalda/internal/payments"
)

// stkCallback mirrors Daraja's asynchronous result envelope.
type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string  `json:"MerchantRequestID"`
			CheckoutRequestID string  `json:"CheckoutRequestID"`
			ResultCode        int     `json:"ResultCode"`
			ResultDesc        string  `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// mpesaReceipt digs the MpesaReceiptNumber out of the callback metadata.
// Present only on success.
func (c *stkCallback) mpesaReceipt() string {
	meta := c.Body.StkCallback.CallbackMetadata
	if meta == nil {
		return ""
	}
	for _, item := range meta.Item {
		if item.Name == "MpesaReceiptNumber" {
			if s, ok := item.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// verifyCallbackToken compares the token query parameter against the secret
// registered with the gateway. Daraja does not sign callbacks, so the token
// embedded in the callback URL is the authenticity check; compare in constant
// time and fail closed.
func verifyCallbackToken(got, want string) bool {
	if want == "" {
		return false
	}
	return hmac.Equal([]byte(got), []byte(want))
}

// POST /v1/payments/mpesa/callback?token=...
//
// Daraja redelivers until it sees 200, so every recognised-but-unusable
// payload (unknown CheckoutRequestID, already settled) is acknowledged with
// 200 and only logged. A 5xx is reserved for our own failures, where a
// redelivery can actually help.
func (app *application) mpesaCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if !verifyCallbackToken(r.URL.Query().Get("token"), app.config.daraja.callbackToken) {
		app.unauthorizedCallbackResponse(w, r, fmt.Errorf("callback token mismatch"))
		return
	}

	// Safaricom owns this envelope and adds fields without notice; decode
	// leniently so the primary ingestion path never 400s on an extra field.
	var payload stkCallback
	if err := readJSONLenient(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid callback payload: %v", err))
		return
	}

	cb := payload.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("callback missing CheckoutRequestID"))
		return
	}

	err := app.payments.ApplyCallback(r.Context(), cb.CheckoutRequestID, cb.ResultCode, cb.ResultDesc, payload.mpesaReceipt())
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			// Forged or stale callback. Never create a record from it.
			app.logger.Warnw("callback for unknown payment discarded",
				"checkout_request_id", cb.CheckoutRequestID, "result_code", cb.ResultCode)
			app.acknowledgeCallback(w)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	app.acknowledgeCallback(w)
}

// acknowledgeCallback answers in the shape Daraja expects.
func (app *application) acknowledgeCallback(w http.ResponseWriter) {
	_ = writeJSON(w, http.StatusOK, map[string]any{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}
