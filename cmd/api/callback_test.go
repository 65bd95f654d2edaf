package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// successCallback is the envelope Daraja sends for a completed STK prompt.
// Metadata values mix numbers and strings, as on the wire.
const successCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1500.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20260901114510},
          {"Name": "PhoneNumber", "Value": 254712000111}
        ]
      }
    }
  }
}`

const cancelledCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-2",
      "CheckoutRequestID": "ws_CO_191220191020363926",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

func TestStkCallbackParsing(t *testing.T) {
	t.Run("Given a success envelope When decoded Then ids, code and receipt are extracted", func(t *testing.T) {
		var cb stkCallback
		if err := json.Unmarshal([]byte(successCallback), &cb); err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		got := cb.Body.StkCallback
		if got.CheckoutRequestID != "ws_CO_191220191020363925" {
			t.Errorf("checkout request id wrong: %s", got.CheckoutRequestID)
		}
		if got.ResultCode != 0 {
			t.Errorf("result code wrong: %d", got.ResultCode)
		}
		if r := cb.mpesaReceipt(); r != "NLJ7RT61SV" {
			t.Errorf("receipt wrong: %q", r)
		}
	})

	t.Run("Given a failure envelope without metadata When decoded Then the receipt is empty", func(t *testing.T) {
		var cb stkCallback
		if err := json.Unmarshal([]byte(cancelledCallback), &cb); err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if cb.Body.StkCallback.ResultCode != 1032 {
			t.Errorf("result code wrong: %d", cb.Body.StkCallback.ResultCode)
		}
		if r := cb.mpesaReceipt(); r != "" {
			t.Errorf("expected no receipt, got %q", r)
		}
	})

	t.Run("Given metadata with a non-string receipt value When extracted Then it is ignored", func(t *testing.T) {
		var cb stkCallback
		raw := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,
			"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":12345}]}}}}`
		if err := json.Unmarshal([]byte(raw), &cb); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if r := cb.mpesaReceipt(); r != "" {
			t.Errorf("expected empty receipt for non-string value, got %q", r)
		}
	})
}

func TestVerifyCallbackToken(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
		ok   bool
	}{
		{name: "matching token", got: "s3cret", want: "s3cret", ok: true},
		{name: "wrong token", got: "guess", want: "s3cret", ok: false},
		{name: "missing token", got: "", want: "s3cret", ok: false},
		{name: "unconfigured secret fails closed", got: "", want: "", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := verifyCallbackToken(tc.got, tc.want); got != tc.ok {
				t.Errorf("verifyCallbackToken(%q, %q) = %v, want %v", tc.got, tc.want, got, tc.ok)
			}
		})
	}
}

func TestMpesaCallbackHandler_Rejections(t *testing.T) {
	app := &application{
		config: config{daraja: darajaConfig{callbackToken: "s3cret"}},
		logger: zap.NewNop().Sugar(),
	}

	t.Run("Given a wrong token When the callback arrives Then 401 without touching the body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/mpesa/callback?token=forged", strings.NewReader(successCallback))
		rr := httptest.NewRecorder()

		app.mpesaCallbackHandler(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("Given an undecodable body When the callback arrives Then 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/mpesa/callback?token=s3cret", strings.NewReader("{not json"))
		rr := httptest.NewRecorder()

		app.mpesaCallbackHandler(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("Given an envelope with fields we do not model When decoded Then it is not rejected as malformed", func(t *testing.T) {
		// Safaricom-added fields must pass the decoder; only the missing
		// CheckoutRequestID is rejected here.
		body := `{"Body":{"stkCallback":{"ResultCode":0,"ResultDesc":"ok","NewField":"surprise"},"NewEnvelopeField":1}}`
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/mpesa/callback?token=s3cret", strings.NewReader(body))
		rr := httptest.NewRecorder()

		app.mpesaCallbackHandler(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "CheckoutRequestID") {
			t.Errorf("rejection must be about the missing id, not the decode: %s", rr.Body.String())
		}
	})

	t.Run("Given a body without a CheckoutRequestID When the callback arrives Then 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/mpesa/callback?token=s3cret", strings.NewReader(`{"Body":{"stkCallback":{"ResultCode":0}}}`))
		rr := httptest.NewRecorder()

		app.mpesaCallbackHandler(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}
