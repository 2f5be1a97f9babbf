// Package payment wraps the external payment gateway.  The gateway is
// treated as an opaque, potentially slow, potentially failing
// collaborator: the coordinator supplies the timeout via context and
// interprets the verdict, nothing in here retries a charge.
package payment

import (
    "context"

    "github.com/stripe/stripe-go"
    "github.com/stripe/stripe-go/paymentintent"
)

// ChargeRequest describes one payment attempt for a whole order.
type ChargeRequest struct {
    AmountCents    int64  // total amount in cents
    Currency       string // ISO currency code, e.g. "usd"
    CardToken      string // opaque payment method reference from the client
    IdempotencyKey string // guards against double charges on retry
}

// ChargeResult is the gateway verdict.
type ChargeResult struct {
    Approved  bool   // whether the charge succeeded
    Reference string // gateway-side identifier for later status checks
}

// Gateway is the payment collaborator consumed by the order
// coordinator.  Charge performs one charge attempt; CheckStatus
// re-reads the outcome of a previous attempt by reference and is the
// only form of retry the coordinator performs (a status re-check,
// never a blind re-charge).
type Gateway interface {
    Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
    CheckStatus(ctx context.Context, reference string) (ChargeResult, error)
}

// StripeGateway implements Gateway on Stripe payment intents.
type StripeGateway struct{}

// NewStripeGateway configures the global Stripe client key and returns
// a gateway.
func NewStripeGateway(apiKey string) *StripeGateway {
    stripe.Key = apiKey
    return &StripeGateway{}
}

// Charge creates and confirms a payment intent.  The Stripe client is
// not context-aware, so the call runs in a goroutine and the caller's
// deadline is enforced by select; on timeout the intent may still
// settle on Stripe's side, which is why the coordinator follows up
// with CheckStatus before declaring failure.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
    params := &stripe.PaymentIntentParams{
        Amount:        stripe.Int64(req.AmountCents),
        Currency:      stripe.String(req.Currency),
        PaymentMethod: stripe.String(req.CardToken),
        Confirm:       stripe.Bool(true),
    }
    params.SetIdempotencyKey(req.IdempotencyKey)

    type outcome struct {
        pi  *stripe.PaymentIntent
        err error
    }
    ch := make(chan outcome, 1)
    go func() {
        pi, err := paymentintent.New(params)
        ch <- outcome{pi: pi, err: err}
    }()
    select {
    case <-ctx.Done():
        return ChargeResult{}, ctx.Err()
    case out := <-ch:
        if out.err != nil {
            return ChargeResult{}, out.err
        }
        return ChargeResult{
            Approved:  out.pi.Status == stripe.PaymentIntentStatusSucceeded,
            Reference: out.pi.ID,
        }, nil
    }
}

// CheckStatus retrieves a payment intent and reports whether it
// ultimately succeeded.
func (g *StripeGateway) CheckStatus(ctx context.Context, reference string) (ChargeResult, error) {
    type outcome struct {
        pi  *stripe.PaymentIntent
        err error
    }
    ch := make(chan outcome, 1)
    go func() {
        pi, err := paymentintent.Get(reference, nil)
        ch <- outcome{pi: pi, err: err}
    }()
    select {
    case <-ctx.Done():
        return ChargeResult{}, ctx.Err()
    case out := <-ch:
        if out.err != nil {
            return ChargeResult{}, out.err
        }
        return ChargeResult{
            Approved:  out.pi.Status == stripe.PaymentIntentStatusSucceeded,
            Reference: out.pi.ID,
        }, nil
    }
}
