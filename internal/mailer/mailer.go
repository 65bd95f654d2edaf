package mailer

import "embed"

const (
	FromName   = "Kalda Membership"
	maxRetries = 3

	PaymentConfirmedTemplate = "payment_confirmed.tmpl"
	PaymentFailedTemplate    = "payment_failed.tmpl"
)

//go:embed "templates"
var FS embed.FS

type Client interface {
	Send(templateFile, username, email string, data any) (int, error)
}
