package payments

import "context"

// Gateway is the outbound contract against the payment provider.
type Gateway interface {
	Push(ctx context.Context, req PushRequest) (PushAck, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (StatusResult, error)
}
