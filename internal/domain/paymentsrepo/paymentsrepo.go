package paymentsrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kalda/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

const paymentColumns = `
	id, payment_reference, member_id, amount_cents, currency, purpose, phone_number,
	status, mpesa_receipt_number, checkout_request_id, merchant_request_id,
	failure_reason, attempt_count, created_at, updated_at, confirmed_at`

func (r *Repository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	if err := r.q.QueryRow(ctx, `
		INSERT INTO payments (payment_reference, member_id, amount_cents, currency, purpose, phone_number, status)
		VALUES (
			$1,
			$2,
			$3,
			COALESCE(NULLIF($4,''),'KES'),
			$5::payment_purpose,
			$6,
			COALESCE(NULLIF($7,''),'pending')::payment_status
		)
		RETURNING id, created_at, updated_at
	`, p.Reference, p.MemberID, p.AmountCents, p.Currency, p.Purpose, p.PhoneNumber, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

func (r *Repository) GetByReference(ctx context.Context, reference string) (*Payment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE payment_reference=$1
	`, reference)
	return scanPayment(row)
}

func (r *Repository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Payment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE checkout_request_id=$1
		LIMIT 1
	`, checkoutRequestID)
	return scanPayment(row)
}

func (r *Repository) SetCheckoutIDs(ctx context.Context, reference, merchantRequestID, checkoutRequestID string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE payments
		   SET merchant_request_id=$2, checkout_request_id=$3, updated_at=now()
		 WHERE payment_reference=$1
	`, reference, merchantRequestID, checkoutRequestID)
	if err != nil {
		return fmt.Errorf("set checkout ids: %w", err)
	}
	return nil
}

func (r *Repository) IncrementAttempts(ctx context.Context, reference string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		UPDATE payments
		   SET attempt_count=attempt_count+1, updated_at=now()
		 WHERE payment_reference=$1
		RETURNING attempt_count
	`, reference).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return n, nil
}

// Transition is the single conditional-update primitive both the callback
// receiver and the reconciler route through. The status guard makes it a
// compare-and-set: whoever runs second observes zero rows affected.
func (r *Repository) Transition(ctx context.Context, reference string, target Status, mpesaReceipt, reason string) (bool, error) {
	if !target.Terminal() {
		return false, fmt.Errorf("transition target %q is not terminal", target)
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE payments
		   SET status=$2::payment_status,
		       mpesa_receipt_number=COALESCE(NULLIF($3,''), mpesa_receipt_number),
		       failure_reason=NULLIF($4,''),
		       confirmed_at=CASE WHEN $2='confirmed' THEN now() ELSE confirmed_at END,
		       updated_at=now()
		 WHERE payment_reference=$1
		   AND status='pending'::payment_status
	`, reference, target, mpesaReceipt, reason)
	if err != nil {
		return false, fmt.Errorf("transition payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) ListPendingOlderThan(ctx context.Context, age time.Duration) ([]*Payment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status='pending'::payment_status
		  AND created_at < now() - $1::interval
		ORDER BY created_at ASC
	`, age.String())
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		p, err := scanPaymentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns payments with optional filters plus a total count for
// pagination UI.
func (r *Repository) List(ctx context.Context, f ListFilters, limit, offset int) ([]*Payment, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, `
SELECT
  `+paymentColumns+`,
  COUNT(*) OVER() AS total_count
FROM payments
WHERE
  ($1 = '' OR status = $1::payment_status)
  AND ($2 = '' OR purpose = $2::payment_purpose)
  AND ($3::timestamptz IS NULL OR created_at >= $3::timestamptz)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5
`,
		f.Status,
		f.Purpose,
		f.Since, // nil becomes NULL
		limit,
		offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var (
		out   []*Payment
		total int
	)

	for rows.Next() {
		var p Payment
		var t int
		if err := rows.Scan(
			&p.ID, &p.Reference, &p.MemberID, &p.AmountCents, &p.Currency, &p.Purpose, &p.PhoneNumber,
			&p.Status, &p.MpesaReceipt, &p.CheckoutRequestID, &p.MerchantRequestID,
			&p.FailureReason, &p.AttemptCount, &p.CreatedAt, &p.UpdatedAt, &p.ConfirmedAt,
			&t,
		); err != nil {
			return nil, 0, fmt.Errorf("scan payment: %w", err)
		}
		if total == 0 {
			total = t
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return out, total, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.Reference, &p.MemberID, &p.AmountCents, &p.Currency, &p.Purpose, &p.PhoneNumber,
		&p.Status, &p.MpesaReceipt, &p.CheckoutRequestID, &p.MerchantRequestID,
		&p.FailureReason, &p.AttemptCount, &p.CreatedAt, &p.UpdatedAt, &p.ConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

func scanPaymentRow(rows pgx.Rows) (*Payment, error) {
	var p Payment
	if err := rows.Scan(
		&p.ID, &p.Reference, &p.MemberID, &p.AmountCents, &p.Currency, &p.Purpose, &p.PhoneNumber,
		&p.Status, &p.MpesaReceipt, &p.CheckoutRequestID, &p.MerchantRequestID,
		&p.FailureReason, &p.AttemptCount, &p.CreatedAt, &p.UpdatedAt, &p.ConfirmedAt,
	); err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}
