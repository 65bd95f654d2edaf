package receipts

import (
	"context"
	"fmt"
	"time"

	"kalda/internal/infra/dbx"

	hashids "github.com/speps/go-hashids/v2"
)

type Receipt struct {
	ID            int64     `json:"id"`
	PaymentID     int64     `json:"payment_id"`
	ReceiptNumber string    `json:"receipt_number"`
	IssuedAt      time.Time `json:"issued_at"`
}

type Store interface {
	Create(ctx context.Context, paymentID int64) (*Receipt, error)
	GetByPaymentID(ctx context.Context, paymentID int64) (*Receipt, error)
}

type Repository struct {
	q dbx.Querier
	h *hashids.HashID
}

func NewRepository(q dbx.Querier, salt string) (*Repository, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 8
	hd.Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("receipt hashid: %w", err)
	}
	return &Repository{q: q, h: h}, nil
}

// Create issues a receipt for a confirmed payment. The unique constraint on
// payment_id turns a duplicate call into a clean conflict rather than a second row.
func (r *Repository) Create(ctx context.Context, paymentID int64) (*Receipt, error) {
	number, err := r.h.EncodeInt64([]int64{paymentID, time.Now().Unix()})
	if err != nil {
		return nil, fmt.Errorf("receipt number: %w", err)
	}

	rec := &Receipt{
		PaymentID:     paymentID,
		ReceiptNumber: "RCT-" + number,
	}
	if err := r.q.QueryRow(ctx, `
		INSERT INTO payment_receipts (payment_id, receipt_number)
		VALUES ($1, $2)
		RETURNING id, issued_at
	`, rec.PaymentID, rec.ReceiptNumber).Scan(&rec.ID, &rec.IssuedAt); err != nil {
		return nil, fmt.Errorf("create receipt: %w", err)
	}
	return rec, nil
}

func (r *Repository) GetByPaymentID(ctx context.Context, paymentID int64) (*Receipt, error) {
	var rec Receipt
	err := r.q.QueryRow(ctx, `
		SELECT id, payment_id, receipt_number, issued_at
		FROM payment_receipts WHERE payment_id=$1
	`, paymentID).Scan(&rec.ID, &rec.PaymentID, &rec.ReceiptNumber, &rec.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return &rec, nil
}
