package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"kalda/internal/domain/paymentsrepo"
	"kalda/internal/payments"

	"github.com/go-chi/chi/v5"
)

type InitiatePaymentPayload struct {
	MemberID    int64  `json:"member_id" validate:"required,gt=0"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	Purpose     string `json:"purpose" validate:"required,oneof=registration renewal late_fee"`
	PhoneNumber string `json:"phone_number" validate:"required,kenyanphone"`
}

// POST /v1/payments
func (app *application) initiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	// Covers the pending insert plus up to three push attempts with backoff.
	ctx, cancel := context.WithTimeout(r.Context(), 45*time.Second)
	defer cancel()

	var payload InitiatePaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	p, err := app.payments.Initiate(ctx, payments.InitiateRequest{
		MemberID:    payload.MemberID,
		AmountCents: payload.AmountCents,
		Currency:    payload.Currency,
		Purpose:     paymentsrepo.Purpose(payload.Purpose),
		PhoneNumber: payload.PhoneNumber,
	})
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrValidation):
			app.badRequestResponse(w, r, err)
		case errors.Is(err, payments.ErrNotFound):
			app.notFoundResponse(w, r, err)
		case errors.Is(err, payments.ErrGatewayUnavailable), errors.Is(err, payments.ErrGatewayRejected):
			app.badGatewayResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, p); err != nil {
		app.internalServerError(w, r, err)
	}
}

// GET /v1/payments/{reference}
func (app *application) getPaymentHandler(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing payment reference"))
		return
	}

	p, err := app.store.Payments.GetByReference(r.Context(), reference)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if p == nil {
		app.notFoundResponse(w, r, fmt.Errorf("payment %s not found", reference))
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, p); err != nil {
		app.internalServerError(w, r, err)
	}
}

// GET /v1/payments?status=&purpose=&since=&limit=&offset=
func (app *application) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since *time.Time
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			app.badRequestResponse(w, r, fmt.Errorf("invalid since, want RFC3339: %v", err))
			return
		}
		since = &t
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	list, total, err := app.store.Payments.List(r.Context(), paymentsrepo.ListFilters{
		Status:  q.Get("status"),
		Purpose: q.Get("purpose"),
		Since:   since,
	}, limit, offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]any{
		"payments": list,
		"total":    total,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}
