// Package order orchestrates a multi-tier checkout into one atomic
// customer-visible outcome: every ticket in the order reaches ACTIVE
// or every reservation is released.  The payment gateway call is the
// only step that crosses a trust boundary and the only one allowed to
// block on the network.
package order

import (
    "context"
    "errors"
    "fmt"
    "math"
    "time"

    "github.com/google/uuid"
    "golang.org/x/sync/errgroup"

    "github.com/avetro/ticketline/internal/logger"
    "github.com/avetro/ticketline/internal/model"
    "github.com/avetro/ticketline/internal/payment"
    "github.com/avetro/ticketline/internal/queue"
    "github.com/avetro/ticketline/internal/repository"
)

// ErrPaymentFailed is returned when the gateway declined the charge or
// the charge could not be confirmed within the timeout.  The
// coordinator guarantees that no inventory is still held when this is
// returned.
var ErrPaymentFailed = errors.New("payment failed")

// ErrEmptyCheckout is returned for a checkout without line items.
var ErrEmptyCheckout = errors.New("checkout has no line items")

// ErrOrderTooLarge is returned when the order total does not fit the
// amount column.  No gateway charges sums that size either.
var ErrOrderTooLarge = errors.New("order total too large")

// maxOrderNumberAttempts bounds the regeneration loop on an order
// number collision.
const maxOrderNumberAttempts = 3

// LineItemError reports which line item of a checkout failed to
// reserve.  It unwraps to the underlying cause, typically
// inventory.ErrInsufficientInventory.
type LineItemError struct {
    Index    int
    EventID  uint64
    TierName string
    Err      error
}

func (e *LineItemError) Error() string {
    return fmt.Sprintf("line item %d (event %d, tier %q): %v", e.Index, e.EventID, e.TierName, e.Err)
}

func (e *LineItemError) Unwrap() error { return e.Err }

// LineItem is one tier/quantity entry of a checkout request.
type LineItem struct {
    EventID  uint64 `json:"event_id"`
    TierName string `json:"tier_name"`
    Quantity uint32 `json:"quantity"`
}

// CheckoutRequest is a complete checkout: who is buying, what, and how
// they pay.  The card token is opaque to this service and forwarded to
// the gateway unchanged.
type CheckoutRequest struct {
    HolderID     string
    BuyerContact string
    Items        []LineItem
    CardToken    string
}

// Result is the committed outcome of a successful checkout.
type Result struct {
    OrderNumber string   `json:"order_number"`
    TicketIDs   []string `json:"ticket_ids"`
}

// Reserver is the inventory allocator surface the coordinator uses.
type Reserver interface {
    Reserve(ctx context.Context, eventID uint64, tierName string, quantity uint32, holderID string) ([]string, error)
    Release(ctx context.Context, ticketIDs []string) error
}

// TierPricer resolves tier prices for the order total.  Implemented by
// repository.EventRepo.
type TierPricer interface {
    GetTier(ctx context.Context, eventID uint64, tierName string) (*model.PriceTier, error)
}

// OrderStore persists order records.  Implemented by repository.OrderRepo.
type OrderStore interface {
    Create(ctx context.Context, o *model.Order) error
    Delete(ctx context.Context, orderNumber string) error
}

// TicketPromoter stamps an order's tickets ACTIVE.  Implemented by
// repository.TicketRepo.
type TicketPromoter interface {
    PromoteOrder(ctx context.Context, orderNumber string, ticketIDs []string) (int, error)
}

// Notifier publishes the order-confirmed event.  Best effort; failures
// are logged and never fail the checkout.
type Notifier interface {
    PublishOrderConfirmed(ctx context.Context, event queue.OrderConfirmedEvent) error
}

// Coordinator runs checkouts.  Safe for concurrent use.
type Coordinator struct {
    inv            Reserver
    tiers          TierPricer
    orders         OrderStore
    tickets        TicketPromoter
    gateway        payment.Gateway
    notifier       Notifier
    currency       string
    paymentTimeout time.Duration
    log            logger.Logger
}

// NewCoordinator constructs a Coordinator.  The notifier may be nil to
// disable notifications; everything else must be non-nil.
func NewCoordinator(inv Reserver, tiers TierPricer, orders OrderStore, tickets TicketPromoter,
    gateway payment.Gateway, notifier Notifier, currency string, paymentTimeout time.Duration, log logger.Logger) *Coordinator {
    if inv == nil || tiers == nil || orders == nil || tickets == nil || gateway == nil {
        panic("nil dependency passed to NewCoordinator")
    }
    if paymentTimeout <= 0 {
        paymentTimeout = 30 * time.Second
    }
    return &Coordinator{
        inv:            inv,
        tiers:          tiers,
        orders:         orders,
        tickets:        tickets,
        gateway:        gateway,
        notifier:       notifier,
        currency:       currency,
        paymentTimeout: paymentTimeout,
        log:            log,
    }
}

// Checkout reserves every line item, charges the buyer once, and
// promotes the whole ticket set to ACTIVE under a fresh order number.
// On any failure every reservation made by this checkout is released
// before the error is returned; partial success is never visible to
// the caller.  Reservation failures carry a *LineItemError naming the
// failing line.
func (c *Coordinator) Checkout(ctx context.Context, req CheckoutRequest) (*Result, error) {
    if len(req.Items) == 0 {
        return nil, ErrEmptyCheckout
    }

    // Price the order up front so a pricing lookup failure costs
    // nothing.  Tier existence is re-validated by the allocator.  The
    // sum runs in uint64 so oversized line items fail the bound check
    // instead of wrapping into an undercharge.
    var total64 uint64
    for i, item := range req.Items {
        tier, err := c.tiers.GetTier(ctx, item.EventID, item.TierName)
        if err != nil {
            return nil, &LineItemError{Index: i, EventID: item.EventID, TierName: item.TierName, Err: err}
        }
        total64 += uint64(tier.UnitPriceCents) * uint64(item.Quantity)
        if total64 > math.MaxUint32 {
            return nil, ErrOrderTooLarge
        }
    }
    total := uint32(total64)

    // Reserve all line items.  Items are independent tiers so there is
    // no lock ordering to respect; reservations run concurrently and
    // the first failure cancels the rest.
    reserved := make([][]string, len(req.Items))
    g, gctx := errgroup.WithContext(ctx)
    for i, item := range req.Items {
        g.Go(func() error {
            ids, err := c.inv.Reserve(gctx, item.EventID, item.TierName, item.Quantity, req.HolderID)
            if err != nil {
                return &LineItemError{Index: i, EventID: item.EventID, TierName: item.TierName, Err: err}
            }
            reserved[i] = ids
            return nil
        })
    }
    if err := g.Wait(); err != nil {
        c.releaseAll(ctx, reserved)
        return nil, err
    }
    ticketIDs := flatten(reserved)

    ord := &model.Order{
        HolderID:         req.HolderID,
        BuyerContact:     req.BuyerContact,
        TotalAmountCents: total,
    }
    if err := c.createOrder(ctx, ord); err != nil {
        c.releaseAll(ctx, reserved)
        return nil, err
    }

    approved, err := c.charge(ctx, ord.OrderNumber, total, req.CardToken)
    if err != nil || !approved {
        c.releaseAll(ctx, reserved)
        if derr := c.orders.Delete(ctx, ord.OrderNumber); derr != nil {
            c.log.Error("deleting order after failed payment", "order_number", ord.OrderNumber, "error", derr)
        }
        if err != nil {
            c.log.Warn("payment not confirmed", "order_number", ord.OrderNumber, "error", err)
        }
        return nil, ErrPaymentFailed
    }

    promoted, err := c.tickets.PromoteOrder(ctx, ord.OrderNumber, ticketIDs)
    if err != nil {
        return nil, fmt.Errorf("promoting order %s: %w", ord.OrderNumber, err)
    }
    if promoted != len(ticketIDs) {
        // Should be impossible: the tickets were PENDING and owned by
        // this checkout alone, and the store rolled the whole promotion
        // back on the shortfall.  Undo the reservation and the order
        // record; the charge already settled, so surface loudly enough
        // for an operator to refund it.
        c.log.Error("order promotion rolled back, charge needs manual refund",
            "order_number", ord.OrderNumber, "promoted", promoted, "expected", len(ticketIDs))
        c.releaseAll(ctx, reserved)
        if derr := c.orders.Delete(ctx, ord.OrderNumber); derr != nil {
            c.log.Error("deleting order after failed promotion", "order_number", ord.OrderNumber, "error", derr)
        }
        return nil, fmt.Errorf("order %s: promoted %d of %d tickets", ord.OrderNumber, promoted, len(ticketIDs))
    }

    c.notify(ord, ticketIDs)
    return &Result{OrderNumber: ord.OrderNumber, TicketIDs: ticketIDs}, nil
}

// createOrder mints a high-entropy order number and inserts the order,
// regenerating on the collision reported by the unique constraint.
func (c *Coordinator) createOrder(ctx context.Context, ord *model.Order) error {
    var err error
    for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
        ord.OrderNumber = uuid.New().String()
        err = c.orders.Create(ctx, ord)
        if err == nil {
            return nil
        }
        if !errors.Is(err, repository.ErrDuplicateOrderNumber) {
            return err
        }
    }
    return err
}

// charge performs the single payment attempt under the configured
// timeout.  A transport error or timeout is followed by exactly one
// idempotent re-check: a status read when the gateway handed back a
// reference, otherwise one replay of the same idempotency key (the
// gateway deduplicates, so this cannot double-charge).  A clean decline
// is final.
func (c *Coordinator) charge(ctx context.Context, orderNumber string, amount uint32, cardToken string) (bool, error) {
    req := payment.ChargeRequest{
        AmountCents:    int64(amount),
        Currency:       c.currency,
        CardToken:      cardToken,
        IdempotencyKey: orderNumber,
    }
    cctx, cancel := context.WithTimeout(ctx, c.paymentTimeout)
    defer cancel()
    res, err := c.gateway.Charge(cctx, req)
    if err == nil {
        return res.Approved, nil
    }

    rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), c.paymentTimeout)
    defer rcancel()
    if res.Reference != "" {
        check, cerr := c.gateway.CheckStatus(rctx, res.Reference)
        if cerr != nil {
            return false, fmt.Errorf("charge failed (%v) and status re-check failed: %w", err, cerr)
        }
        return check.Approved, nil
    }
    retry, rerr := c.gateway.Charge(rctx, req)
    if rerr != nil {
        return false, fmt.Errorf("charge failed twice: %v: %w", err, rerr)
    }
    return retry.Approved, nil
}

// releaseAll rolls back every reservation this checkout made.  The
// release runs on a context detached from the request so a cancelled
// caller cannot strand pending tickets.
func (c *Coordinator) releaseAll(ctx context.Context, reserved [][]string) {
    ids := flatten(reserved)
    if len(ids) == 0 {
        return
    }
    rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
    defer cancel()
    if err := c.inv.Release(rctx, ids); err != nil {
        c.log.Error("releasing reservations after failed checkout", "tickets", len(ids), "error", err)
    }
}

// notify publishes the order-confirmed event without blocking the
// response.  Failures are logged only; notification is outside the
// transactional contract.
func (c *Coordinator) notify(ord *model.Order, ticketIDs []string) {
    if c.notifier == nil {
        return
    }
    event := queue.OrderConfirmedEvent{
        OrderNumber:      ord.OrderNumber,
        HolderID:         ord.HolderID,
        BuyerContact:     ord.BuyerContact,
        TicketIDs:        ticketIDs,
        TotalAmountCents: ord.TotalAmountCents,
        ConfirmedAt:      time.Now().UTC().Format(time.RFC3339),
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := c.notifier.PublishOrderConfirmed(ctx, event); err != nil {
            c.log.Warn("publishing order confirmation", "order_number", ord.OrderNumber, "error", err)
        }
    }()
}

func flatten(groups [][]string) []string {
    out := make([]string, 0)
    for _, g := range groups {
        out = append(out, g...)
    }
    return out
}
