package members

import (
	"context"
	"time"
)

type Member struct {
	ID           int64      `json:"id"`
	MembershipID string     `json:"membership_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	PhoneNumber  string     `json:"phone_number"`
	Status       string     `json:"status"` // pending, approved, rejected, suspended
	ExpiryDate   *time.Time `json:"expiry_date"`
}

func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

type Store interface {
	GetByID(ctx context.Context, id int64) (*Member, error)
	// ExtendMembership pushes the expiry date forward after a confirmed
	// renewal payment. Extends from today when the membership already lapsed.
	ExtendMembership(ctx context.Context, memberID int64, months int) error
}
