package notifications

import (
	"context"
	"errors"
	"fmt"

	"kalda/internal/mailer"
	"kalda/internal/sms"

	"go.uber.org/zap"
)

// Dispatcher fans a Notification out to its channels. Each channel failure is
// logged and collected; one channel failing does not stop the others.
type Dispatcher struct {
	mail   mailer.Client
	sms    sms.Client
	logger *zap.SugaredLogger
}

func NewDispatcher(mail mailer.Client, smsClient sms.Client, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{mail: mail, sms: smsClient, logger: logger}
}

func (d *Dispatcher) Send(ctx context.Context, n Notification) error {
	var errs []error

	for _, ch := range n.Channels {
		switch ch {
		case ChannelEmail:
			if n.Email == "" {
				continue
			}
			status, err := d.mail.Send(n.Template, n.Name, n.Email, n.Data)
			if err != nil {
				d.logger.Errorw("email notification failed", "member_id", n.MemberID, "status", status, "error", err.Error())
				errs = append(errs, fmt.Errorf("email: %w", err))
			}
		case ChannelSMS:
			if n.Phone == "" {
				continue
			}
			if err := d.sms.Send(ctx, n.Phone, n.Message); err != nil {
				d.logger.Errorw("sms notification failed", "member_id", n.MemberID, "error", err.Error())
				errs = append(errs, fmt.Errorf("sms: %w", err))
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported channel: %s", ch))
		}
	}

	return errors.Join(errs...)
}
