package main

import (
	"context"
	"time"
)

// reconcilePendingPayments sweeps for payments stuck in pending on a fixed
// interval, querying the gateway for any whose callback never arrived.
func (app *application) reconcilePendingPayments(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		sweep := func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			if err := app.payments.Reconcile(ctx); err != nil {
				app.logger.Errorw("reconciliation sweep failed", "error", err.Error())
			}
		}

		// Run once immediately so restarts pick up stuck records right away.
		sweep()

		for range ticker.C {
			sweep()
		}
	}()
}
