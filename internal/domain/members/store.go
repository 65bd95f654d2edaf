package members

import (
	"context"
	"errors"
	"fmt"

	"kalda/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

func (r *Repository) GetByID(ctx context.Context, id int64) (*Member, error) {
	var m Member
	err := r.q.QueryRow(ctx, `
		SELECT id, membership_id, first_name, last_name, email, phone_number, status, expiry_date
		FROM members WHERE id=$1
	`, id).Scan(
		&m.ID, &m.MembershipID, &m.FirstName, &m.LastName, &m.Email, &m.PhoneNumber, &m.Status, &m.ExpiryDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

func (r *Repository) ExtendMembership(ctx context.Context, memberID int64, months int) error {
	_, err := r.q.Exec(ctx, `
		UPDATE members
		   SET expiry_date = GREATEST(COALESCE(expiry_date, CURRENT_DATE), CURRENT_DATE)
		                     + make_interval(months => $2),
		       updated_at = now()
		 WHERE id=$1
	`, memberID, months)
	if err != nil {
		return fmt.Errorf("extend membership: %w", err)
	}
	return nil
}
