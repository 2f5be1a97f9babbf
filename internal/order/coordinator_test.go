package order

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/avetro/ticketline/internal/inventory"
    "github.com/avetro/ticketline/internal/logger"
    "github.com/avetro/ticketline/internal/model"
    "github.com/avetro/ticketline/internal/payment"
    "github.com/avetro/ticketline/internal/queue"
    "github.com/avetro/ticketline/internal/repository"
)

// The production collaborators must satisfy the coordinator's contracts.
var (
    _ Reserver       = (*inventory.Allocator)(nil)
    _ TierPricer     = (*repository.EventRepo)(nil)
    _ OrderStore     = (*repository.OrderRepo)(nil)
    _ TicketPromoter = (*repository.TicketRepo)(nil)
)

// ----- fakes -----

type fakeInventory struct {
    mu       sync.Mutex
    seq      int
    pending  map[string]bool
    failTier string // reservations for this tier fail with insufficient inventory
}

func newFakeInventory() *fakeInventory {
    return &fakeInventory{pending: make(map[string]bool)}
}

func (f *fakeInventory) Reserve(_ context.Context, eventID uint64, tierName string, quantity uint32, _ string) ([]string, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if tierName == f.failTier {
        return nil, inventory.ErrInsufficientInventory
    }
    ids := make([]string, 0, quantity)
    for i := uint32(0); i < quantity; i++ {
        f.seq++
        id := fmt.Sprintf("T%05d", f.seq)
        f.pending[id] = true
        ids = append(ids, id)
    }
    return ids, nil
}

func (f *fakeInventory) Release(_ context.Context, ticketIDs []string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, id := range ticketIDs {
        delete(f.pending, id)
    }
    return nil
}

func (f *fakeInventory) pendingCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.pending)
}

type fakePricer struct {
    prices map[string]uint32 // tier name -> unit price
}

func (f *fakePricer) GetTier(_ context.Context, eventID uint64, tierName string) (*model.PriceTier, error) {
    price, ok := f.prices[tierName]
    if !ok {
        return nil, repository.ErrTierNotFound
    }
    return &model.PriceTier{EventID: eventID, Name: tierName, UnitPriceCents: price, Capacity: 1000}, nil
}

type fakeOrderStore struct {
    mu         sync.Mutex
    created    []model.Order
    deleted    []string
    dupesFirst int // first n Create calls collide on the order number
}

func (f *fakeOrderStore) Create(_ context.Context, o *model.Order) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.dupesFirst > 0 {
        f.dupesFirst--
        return repository.ErrDuplicateOrderNumber
    }
    f.created = append(f.created, *o)
    return nil
}

func (f *fakeOrderStore) Delete(_ context.Context, orderNumber string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.deleted = append(f.deleted, orderNumber)
    return nil
}

type fakePromoter struct {
    mu       sync.Mutex
    promoted map[string][]string // order number -> ticket IDs
    short    bool                // one ticket no longer matches; the store rolls back
}

func (f *fakePromoter) PromoteOrder(_ context.Context, orderNumber string, ticketIDs []string) (int, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.short && len(ticketIDs) > 0 {
        // All-or-nothing: a shortfall commits nothing.
        return len(ticketIDs) - 1, nil
    }
    if f.promoted == nil {
        f.promoted = make(map[string][]string)
    }
    f.promoted[orderNumber] = ticketIDs
    return len(ticketIDs), nil
}

// chargeOutcome scripts one gateway response.
type chargeOutcome struct {
    res payment.ChargeResult
    err error
}

type fakeGateway struct {
    mu      sync.Mutex
    charges []payment.ChargeRequest
    script  []chargeOutcome
    check   chargeOutcome
    checked []string
}

func (f *fakeGateway) Charge(_ context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.charges = append(f.charges, req)
    if len(f.script) == 0 {
        return payment.ChargeResult{}, errors.New("unscripted charge")
    }
    out := f.script[0]
    f.script = f.script[1:]
    return out.res, out.err
}

func (f *fakeGateway) CheckStatus(_ context.Context, reference string) (payment.ChargeResult, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.checked = append(f.checked, reference)
    return f.check.res, f.check.err
}

type captureNotifier struct {
    events chan queue.OrderConfirmedEvent
}

func (n *captureNotifier) PublishOrderConfirmed(_ context.Context, ev queue.OrderConfirmedEvent) error {
    n.events <- ev
    return nil
}

// ----- helpers -----

type fixture struct {
    inv     *fakeInventory
    pricer  *fakePricer
    orders  *fakeOrderStore
    tickets *fakePromoter
    gateway *fakeGateway
}

func newFixture() *fixture {
    return &fixture{
        inv:     newFakeInventory(),
        pricer:  &fakePricer{prices: map[string]uint32{"GA": 5000, "VIP": 12000}},
        orders:  &fakeOrderStore{},
        tickets: &fakePromoter{},
        gateway: &fakeGateway{script: []chargeOutcome{{res: payment.ChargeResult{Approved: true, Reference: "pi_1"}}}},
    }
}

func (f *fixture) coordinator(notifier Notifier) *Coordinator {
    return NewCoordinator(f.inv, f.pricer, f.orders, f.tickets, f.gateway, notifier, "usd", time.Second, logger.NewNop())
}

func twoLineRequest() CheckoutRequest {
    return CheckoutRequest{
        HolderID:     "holder-1",
        BuyerContact: "buyer@example.com",
        CardToken:    "pm_card",
        Items: []LineItem{
            {EventID: 7, TierName: "GA", Quantity: 2},
            {EventID: 7, TierName: "VIP", Quantity: 1},
        },
    }
}

// ----- tests -----

func TestCheckoutHappyPath(t *testing.T) {
    f := newFixture()
    c := f.coordinator(nil)

    res, err := c.Checkout(context.Background(), twoLineRequest())
    require.NoError(t, err)
    require.NotEmpty(t, res.OrderNumber)
    assert.Len(t, res.TicketIDs, 3)

    require.Len(t, f.orders.created, 1)
    assert.Equal(t, uint32(2*5000+12000), f.orders.created[0].TotalAmountCents)

    assert.ElementsMatch(t, res.TicketIDs, f.tickets.promoted[res.OrderNumber])

    require.Len(t, f.gateway.charges, 1)
    charge := f.gateway.charges[0]
    assert.Equal(t, int64(22000), charge.AmountCents)
    assert.Equal(t, "usd", charge.Currency)
    assert.Equal(t, res.OrderNumber, charge.IdempotencyKey)
}

func TestCheckoutEmpty(t *testing.T) {
    f := newFixture()
    _, err := f.coordinator(nil).Checkout(context.Background(), CheckoutRequest{HolderID: "h"})
    assert.ErrorIs(t, err, ErrEmptyCheckout)
    assert.Empty(t, f.gateway.charges)
}

func TestCheckoutUnknownTierFailsBeforeReserving(t *testing.T) {
    f := newFixture()
    req := twoLineRequest()
    req.Items[1].TierName = "BALCONY"

    _, err := f.coordinator(nil).Checkout(context.Background(), req)
    var line *LineItemError
    require.ErrorAs(t, err, &line)
    assert.Equal(t, 1, line.Index)
    assert.Equal(t, "BALCONY", line.TierName)
    assert.ErrorIs(t, err, repository.ErrTierNotFound)

    assert.Equal(t, 0, f.inv.pendingCount())
    assert.Empty(t, f.orders.created)
    assert.Empty(t, f.gateway.charges)
}

func TestCheckoutReleasesOnLineItemFailure(t *testing.T) {
    f := newFixture()
    f.inv.failTier = "VIP"

    _, err := f.coordinator(nil).Checkout(context.Background(), twoLineRequest())
    var line *LineItemError
    require.ErrorAs(t, err, &line)
    assert.Equal(t, 1, line.Index)
    assert.ErrorIs(t, err, inventory.ErrInsufficientInventory)

    // The GA reservation that succeeded was rolled back; nothing holds
    // inventory and the buyer was never charged.
    assert.Equal(t, 0, f.inv.pendingCount())
    assert.Empty(t, f.orders.created)
    assert.Empty(t, f.gateway.charges)
}

func TestCheckoutDeclinedPaymentRollsBack(t *testing.T) {
    f := newFixture()
    f.gateway.script = []chargeOutcome{{res: payment.ChargeResult{Approved: false, Reference: "pi_declined"}}}

    _, err := f.coordinator(nil).Checkout(context.Background(), twoLineRequest())
    assert.ErrorIs(t, err, ErrPaymentFailed)

    assert.Equal(t, 0, f.inv.pendingCount())
    require.Len(t, f.orders.deleted, 1)
    assert.Empty(t, f.tickets.promoted)
    // A clean decline is final: no re-check, no replay.
    assert.Len(t, f.gateway.charges, 1)
    assert.Empty(t, f.gateway.checked)
}

func TestCheckoutTimeoutRecoveredByStatusCheck(t *testing.T) {
    f := newFixture()
    // The charge times out but the gateway handed back a reference; the
    // status re-check finds the charge actually settled.
    f.gateway.script = []chargeOutcome{{
        res: payment.ChargeResult{Reference: "pi_slow"},
        err: context.DeadlineExceeded,
    }}
    f.gateway.check = chargeOutcome{res: payment.ChargeResult{Approved: true, Reference: "pi_slow"}}

    res, err := f.coordinator(nil).Checkout(context.Background(), twoLineRequest())
    require.NoError(t, err)
    assert.Len(t, res.TicketIDs, 3)
    assert.Equal(t, []string{"pi_slow"}, f.gateway.checked)
}

func TestCheckoutTransportErrorReplaysIdempotencyKey(t *testing.T) {
    f := newFixture()
    // No reference came back, so the coordinator replays the charge
    // under the same idempotency key exactly once.
    f.gateway.script = []chargeOutcome{
        {err: errors.New("connection reset")},
        {res: payment.ChargeResult{Approved: true, Reference: "pi_2"}},
    }

    res, err := f.coordinator(nil).Checkout(context.Background(), twoLineRequest())
    require.NoError(t, err)

    require.Len(t, f.gateway.charges, 2)
    assert.Equal(t, f.gateway.charges[0].IdempotencyKey, f.gateway.charges[1].IdempotencyKey)
    assert.Equal(t, res.OrderNumber, f.gateway.charges[0].IdempotencyKey)
}

func TestCheckoutUnconfirmablePaymentRollsBack(t *testing.T) {
    f := newFixture()
    f.gateway.script = []chargeOutcome{{
        res: payment.ChargeResult{Reference: "pi_lost"},
        err: context.DeadlineExceeded,
    }}
    f.gateway.check = chargeOutcome{err: errors.New("gateway unreachable")}

    _, err := f.coordinator(nil).Checkout(context.Background(), twoLineRequest())
    assert.ErrorIs(t, err, ErrPaymentFailed)
    assert.Equal(t, 0, f.inv.pendingCount())
    require.Len(t, f.orders.deleted, 1)
}

// A line item priced near the column maximum must fail the bound check
// rather than wrap the 32-bit total into an undercharge.
func TestCheckoutOversizedTotalRejected(t *testing.T) {
    f := newFixture()
    f.pricer.prices["PLATINUM"] = 4_000_000_000

    req := CheckoutRequest{
        HolderID:  "holder-1",
        CardToken: "pm_card",
        Items: []LineItem{
            {EventID: 7, TierName: "PLATINUM", Quantity: 2},
        },
    }
    _, err := f.coordinator(nil).Checkout(context.Background(), req)
    assert.ErrorIs(t, err, ErrOrderTooLarge)

    assert.Equal(t, 0, f.inv.pendingCount())
    assert.Empty(t, f.orders.created)
    assert.Empty(t, f.gateway.charges)
}

func TestCheckoutRegeneratesOrderNumberOnCollision(t *testing.T) {
    f := newFixture()
    f.orders.dupesFirst = 2

    res, err := f.coordinator(nil).Checkout(context.Background(), twoLineRequest())
    require.NoError(t, err)
    require.Len(t, f.orders.created, 1)
    assert.Equal(t, res.OrderNumber, f.orders.created[0].OrderNumber)
}

// A ticket slipping out of PENDING between payment and promotion must
// not leave a half-promoted order behind: the store rolls the
// promotion back and the coordinator releases the reservation and
// removes the order record.
func TestCheckoutPromotionShortfallRollsBack(t *testing.T) {
    f := newFixture()
    f.tickets.short = true

    _, err := f.coordinator(nil).Checkout(context.Background(), twoLineRequest())
    require.Error(t, err)
    assert.NotErrorIs(t, err, ErrPaymentFailed)

    assert.Empty(t, f.tickets.promoted)
    assert.Equal(t, 0, f.inv.pendingCount())
    require.Len(t, f.orders.created, 1)
    assert.Equal(t, []string{f.orders.created[0].OrderNumber}, f.orders.deleted)
}

func TestCheckoutPublishesConfirmation(t *testing.T) {
    f := newFixture()
    notifier := &captureNotifier{events: make(chan queue.OrderConfirmedEvent, 1)}

    res, err := f.coordinator(notifier).Checkout(context.Background(), twoLineRequest())
    require.NoError(t, err)

    select {
    case ev := <-notifier.events:
        assert.Equal(t, res.OrderNumber, ev.OrderNumber)
        assert.Equal(t, "buyer@example.com", ev.BuyerContact)
        assert.ElementsMatch(t, res.TicketIDs, ev.TicketIDs)
        assert.Equal(t, uint32(22000), ev.TotalAmountCents)
    case <-time.After(2 * time.Second):
        t.Fatal("confirmation event was not published")
    }
}
