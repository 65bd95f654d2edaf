package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kalda/internal/domain/members"
	"kalda/internal/domain/paymentsrepo"
	"kalda/internal/domain/receipts"
	"kalda/internal/mailer"
	"kalda/internal/notifications"

	"go.uber.org/zap"
)

// Config carries every tunable of the payment flow so the core runs without
// reading ambient process state.
type Config struct {
	MaxPushAttempts int           // push retry bound before a record fails
	BackoffBase     time.Duration // first retry delay, doubled per attempt
	StuckAfter      time.Duration // pending age before the reconciler queries the gateway
	UnknownGrace    time.Duration // pending age before an unknown transaction is failed
	Currency        string
	RenewalMonths   int // membership extension on a confirmed renewal
}

func (c Config) withDefaults() Config {
	if c.MaxPushAttempts <= 0 {
		c.MaxPushAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = 3 * time.Minute
	}
	if c.UnknownGrace <= 0 {
		c.UnknownGrace = 15 * time.Minute
	}
	if c.Currency == "" {
		c.Currency = "KES"
	}
	if c.RenewalMonths <= 0 {
		c.RenewalMonths = 12
	}
	return c
}

// Service owns the payment lifecycle: initiation against the gateway,
// idempotent settlement of asynchronous results, and the reconciliation sweep
// for payments whose callbacks never arrived. Callback delivery and
// reconciliation race freely; the store's conditional Transition is the only
// arbiter.
type Service struct {
	store    paymentsrepo.Store
	logs     paymentsrepo.LogsStore
	members  members.Store
	receipts receipts.Store
	gateway  Gateway
	notifier notifications.Notifier
	refs     *ReferenceGenerator
	logger   *zap.SugaredLogger
	cfg      Config
}

func NewService(
	store paymentsrepo.Store,
	logs paymentsrepo.LogsStore,
	memberStore members.Store,
	receiptStore receipts.Store,
	gateway Gateway,
	notifier notifications.Notifier,
	refs *ReferenceGenerator,
	logger *zap.SugaredLogger,
	cfg Config,
) *Service {
	return &Service{
		store:    store,
		logs:     logs,
		members:  memberStore,
		receipts: receiptStore,
		gateway:  gateway,
		notifier: notifier,
		refs:     refs,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// Initiate validates the request, persists a pending record, then pushes the
// STK prompt. The record is written before any network call so a crash
// mid-push still leaves a traceable row for the reconciler.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*paymentsrepo.Payment, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	// The gateway only charges whole shillings; a sub-shilling amount would
	// silently diverge from what the record says was collected.
	if req.AmountCents%100 != 0 {
		return nil, fmt.Errorf("%w: amount %d cents is not a whole-shilling amount", ErrValidation, req.AmountCents)
	}
	if !paymentsrepo.ValidPurpose(req.Purpose) {
		return nil, fmt.Errorf("%w: unknown purpose %q", ErrValidation, req.Purpose)
	}
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}

	member, err := s.members.GetByID(ctx, req.MemberID)
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	if member == nil {
		return nil, fmt.Errorf("%w: member %d", ErrNotFound, req.MemberID)
	}

	currency := req.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	p := &paymentsrepo.Payment{
		Reference:   s.refs.Generate(req.MemberID),
		MemberID:    req.MemberID,
		AmountCents: req.AmountCents,
		Currency:    currency,
		Purpose:     req.Purpose,
		PhoneNumber: phone,
		Status:      paymentsrepo.StatusPending,
	}
	if p, err = s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	pushReq := PushRequest{
		AmountCents: p.AmountCents,
		PhoneNumber: phone,
		Reference:   p.Reference,
		Description: string(p.Purpose) + " fee",
	}
	_ = s.logs.InsertPaymentLog(ctx, p.ID, "request", pushReq)

	var (
		ack     PushAck
		pushErr error
	)
	for attempt := 1; attempt <= s.cfg.MaxPushAttempts; attempt++ {
		if _, err := s.store.IncrementAttempts(ctx, p.Reference); err != nil {
			return nil, err
		}

		ack, pushErr = s.gateway.Push(ctx, pushReq)
		if pushErr == nil {
			break
		}
		if !errors.Is(pushErr, ErrGatewayUnavailable) {
			break // synchronous rejection, retrying cannot help
		}

		s.logger.Warnw("stk push attempt failed",
			"reference", p.Reference, "attempt", attempt, "error", pushErr.Error())

		if attempt < s.cfg.MaxPushAttempts {
			if err := sleepCtx(ctx, s.cfg.BackoffBase<<(attempt-1)); err != nil {
				pushErr = fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
				break
			}
		}
	}

	if pushErr != nil {
		if _, terr := s.store.Transition(ctx, p.Reference, paymentsrepo.StatusFailed, "", pushErr.Error()); terr != nil {
			s.logger.Errorw("failing unpushed payment", "reference", p.Reference, "error", terr.Error())
		}
		_ = s.logs.InsertPaymentLog(ctx, p.ID, "error", map[string]any{
			"stage": "initiate",
			"error": pushErr.Error(),
		})
		return nil, fmt.Errorf("initiate %s: %w", p.Reference, pushErr)
	}

	if err := s.store.SetCheckoutIDs(ctx, p.Reference, ack.MerchantRequestID, ack.CheckoutRequestID); err != nil {
		// The push went out; the reconciler will still find the record by age.
		s.logger.Errorw("saving checkout ids", "reference", p.Reference, "error", err.Error())
	}
	_ = s.logs.InsertPaymentLog(ctx, p.ID, "response", ack)

	return s.store.GetByReference(ctx, p.Reference)
}

// Apply settles a pending payment with a terminal outcome. It is the single
// code path for both the callback receiver and the reconciler, and is
// idempotent: a settled record or a lost race is a logged no-op.
func (s *Service) Apply(ctx context.Context, reference string, out Outcome) error {
	p, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, reference)
	}

	if p.Status.Terminal() {
		s.logger.Infow("ignoring result for settled payment",
			"reference", reference, "status", p.Status, "source", out.Source)
		return nil
	}

	ok, err := s.store.Transition(ctx, reference, out.Target, out.MpesaReceipt, out.Reason)
	if err != nil {
		return err
	}
	if !ok {
		// A concurrent callback or reconcile won the race.
		s.logger.Infow("transition already applied elsewhere",
			"reference", reference, "source", out.Source)
		return nil
	}

	s.logger.Infow("payment settled",
		"reference", reference, "status", out.Target, "source", out.Source)
	_ = s.logs.InsertPaymentLog(ctx, p.ID, out.Source, out)

	s.afterTransition(ctx, p, out)
	return nil
}

// ApplyCallback resolves a gateway STK callback to our record by its
// CheckoutRequestID and feeds it through Apply.
func (s *Service) ApplyCallback(ctx context.Context, checkoutRequestID string, resultCode int, resultDesc, mpesaReceipt string) error {
	p, err := s.store.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: checkout request %s", ErrNotFound, checkoutRequestID)
	}

	out := Outcome{Source: "callback", Reason: resultDesc, MpesaReceipt: mpesaReceipt}
	switch resultCode {
	case 0:
		out.Target = paymentsrepo.StatusConfirmed
		out.Reason = ""
	case 1037:
		out.Target = paymentsrepo.StatusExpired
	default:
		out.Target = paymentsrepo.StatusFailed
	}

	return s.Apply(ctx, p.Reference, out)
}

// Reconcile sweeps payments stuck in pending and forces a resolution by
// querying the gateway. Query failures leave records pending for the next
// sweep; only a gateway that genuinely never saw the transaction fails a
// record, and only after the grace period.
func (s *Service) Reconcile(ctx context.Context) error {
	stuck, err := s.store.ListPendingOlderThan(ctx, s.cfg.StuckAfter)
	if err != nil {
		return fmt.Errorf("list stuck payments: %w", err)
	}

	for _, p := range stuck {
		s.reconcileOne(ctx, p)
	}
	return nil
}

func (s *Service) reconcileOne(ctx context.Context, p *paymentsrepo.Payment) {
	age := time.Since(p.CreatedAt)

	if p.CheckoutRequestID == nil || *p.CheckoutRequestID == "" {
		// Push was never acknowledged (crash between create and ack). Without
		// a checkout ID there is nothing to query; fail it after the grace.
		if age > s.cfg.UnknownGrace {
			if err := s.Apply(ctx, p.Reference, Outcome{
				Target: paymentsrepo.StatusFailed,
				Reason: "push never acknowledged by gateway",
				Source: "reconcile",
			}); err != nil {
				s.logger.Errorw("failing unacknowledged payment", "reference", p.Reference, "error", err.Error())
			}
		}
		return
	}

	res, err := s.gateway.QueryStatus(ctx, *p.CheckoutRequestID)
	if err != nil {
		s.logger.Warnw("status query failed, leaving pending",
			"reference", p.Reference, "error", err.Error())
		return
	}

	out := Outcome{Source: "reconcile", Reason: res.ResultDesc}
	switch res.State {
	case StateConfirmed:
		out.Target = paymentsrepo.StatusConfirmed
		out.Reason = ""
	case StateFailed:
		out.Target = paymentsrepo.StatusFailed
	case StateExpired:
		out.Target = paymentsrepo.StatusExpired
	case StatePending:
		return
	case StateUnknown:
		if age <= s.cfg.UnknownGrace {
			return
		}
		out.Target = paymentsrepo.StatusFailed
		out.Reason = "unknown to gateway after grace period"
	default:
		return
	}

	if err := s.Apply(ctx, p.Reference, out); err != nil {
		s.logger.Errorw("reconcile apply failed", "reference", p.Reference, "error", err.Error())
	}
}

// afterTransition runs the best-effort side effects of a settlement: receipt,
// membership extension, member notification. None of it rolls back the state
// change.
func (s *Service) afterTransition(ctx context.Context, p *paymentsrepo.Payment, out Outcome) {
	member, err := s.members.GetByID(ctx, p.MemberID)
	if err != nil || member == nil {
		s.logger.Errorw("member lookup for notification failed", "member_id", p.MemberID, "error", err)
		return
	}

	data := map[string]any{
		"Name":         member.FullName(),
		"Reference":    p.Reference,
		"Purpose":      string(p.Purpose),
		"Currency":     p.Currency,
		"Amount":       formatAmount(p.AmountCents),
		"MpesaReceipt": out.MpesaReceipt,
		"Reason":       out.Reason,
	}

	n := notifications.Notification{
		MemberID: member.ID,
		Name:     member.FullName(),
		Email:    member.Email,
		Phone:    member.PhoneNumber,
		Data:     data,
		Channels: []notifications.Channel{notifications.ChannelEmail, notifications.ChannelSMS},
	}

	if out.Target == paymentsrepo.StatusConfirmed {
		if _, err := s.receipts.Create(ctx, p.ID); err != nil {
			s.logger.Errorw("issuing receipt failed", "reference", p.Reference, "error", err.Error())
		}
		if p.Purpose == paymentsrepo.PurposeRenewal {
			if err := s.members.ExtendMembership(ctx, p.MemberID, s.cfg.RenewalMonths); err != nil {
				s.logger.Errorw("membership extension failed", "member_id", p.MemberID, "error", err.Error())
			}
		}

		n.Template = mailer.PaymentConfirmedTemplate
		n.Message = fmt.Sprintf("Payment of %s %s received, ref %s. Receipt %s. Thank you.",
			p.Currency, formatAmount(p.AmountCents), p.Reference, out.MpesaReceipt)
	} else {
		n.Template = mailer.PaymentFailedTemplate
		n.Message = fmt.Sprintf("Your payment of %s %s (ref %s) was not completed. %s",
			p.Currency, formatAmount(p.AmountCents), p.Reference, out.Reason)
	}

	if err := s.notifier.Send(ctx, n); err != nil {
		s.logger.Warnw("member notification failed", "reference", p.Reference, "error", err.Error())
	}
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
