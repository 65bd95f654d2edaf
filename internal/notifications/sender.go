package notifications

import (
	"context"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification is one member-facing message, possibly fanned out over
// several channels. Delivery is best-effort: the payment state machine never
// depends on it.
type Notification struct {
	MemberID int64
	Name     string
	Email    string
	Phone    string

	Template string // mailer template for the email channel
	Message  string // plain body for the SMS channel
	Data     any    // template data
	Channels []Channel
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
