package handler

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/avetro/ticketline/internal/inventory"
    "github.com/avetro/ticketline/internal/logger"
    "github.com/avetro/ticketline/internal/model"
    "github.com/avetro/ticketline/internal/order"
    "github.com/avetro/ticketline/internal/payment"
    "github.com/avetro/ticketline/internal/repository"
)

// The handler is tested against a real coordinator running on in-memory
// collaborators, so the HTTP mapping is exercised against the errors
// the coordinator actually produces.

type stubInventory struct {
    mu       sync.Mutex
    seq      int
    failTier string
}

func (s *stubInventory) Reserve(_ context.Context, _ uint64, tierName string, quantity uint32, _ string) ([]string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if tierName == s.failTier {
        return nil, inventory.ErrInsufficientInventory
    }
    ids := make([]string, 0, quantity)
    for i := uint32(0); i < quantity; i++ {
        s.seq++
        ids = append(ids, fmt.Sprintf("H%05d", s.seq))
    }
    return ids, nil
}

func (s *stubInventory) Release(_ context.Context, _ []string) error { return nil }

type stubPricer struct{}

func (stubPricer) GetTier(_ context.Context, eventID uint64, tierName string) (*model.PriceTier, error) {
    if tierName == "UNKNOWN" {
        return nil, repository.ErrTierNotFound
    }
    return &model.PriceTier{EventID: eventID, Name: tierName, UnitPriceCents: 2500, Capacity: 100}, nil
}

type stubOrders struct{}

func (stubOrders) Create(_ context.Context, _ *model.Order) error { return nil }

func (stubOrders) Delete(_ context.Context, _ string) error { return nil }

type stubPromoter struct{}

func (stubPromoter) PromoteOrder(_ context.Context, _ string, ids []string) (int, error) {
    return len(ids), nil
}

type stubGateway struct {
    approved bool
}

func (g stubGateway) Charge(_ context.Context, _ payment.ChargeRequest) (payment.ChargeResult, error) {
    return payment.ChargeResult{Approved: g.approved, Reference: "pi_test"}, nil
}

func (g stubGateway) CheckStatus(_ context.Context, reference string) (payment.ChargeResult, error) {
    return payment.ChargeResult{Approved: g.approved, Reference: reference}, nil
}

func newTestCheckoutHandler(inv *stubInventory, approved bool) *CheckoutHandler {
    coord := order.NewCoordinator(
        inv, stubPricer{}, stubOrders{}, stubPromoter{},
        stubGateway{approved: approved}, nil, "usd", time.Second, logger.NewNop(),
    )
    return NewCheckoutHandler(coord)
}

func doCheckout(t *testing.T, h *CheckoutHandler, userID, body string) *httptest.ResponseRecorder {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/checkout", strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    if userID != "" {
        c.Set("user_id", userID)
        c.Set("role", "CUSTOMER")
    }
    require.NoError(t, h.Checkout(c))
    return rec
}

const validBody = `{
  "buyer_contact": "buyer@example.com",
  "card_token": "pm_card",
  "items": [{"event_id": 7, "tier_name": "GA", "quantity": 2}]
}`

func TestCheckoutEndpointSuccess(t *testing.T) {
    h := newTestCheckoutHandler(&stubInventory{}, true)
    rec := doCheckout(t, h, "holder-1", validBody)

    require.Equal(t, http.StatusCreated, rec.Code)
    var res order.Result
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
    assert.NotEmpty(t, res.OrderNumber)
    assert.Len(t, res.TicketIDs, 2)
}

func TestCheckoutEndpointUnauthenticated(t *testing.T) {
    h := newTestCheckoutHandler(&stubInventory{}, true)
    rec := doCheckout(t, h, "", validBody)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutEndpointValidation(t *testing.T) {
    h := newTestCheckoutHandler(&stubInventory{}, true)
    cases := []struct {
        name string
        body string
    }{
        {"no items", `{"card_token": "pm_card", "items": []}`},
        {"missing card token", `{"items": [{"event_id": 7, "tier_name": "GA", "quantity": 1}]}`},
        {"zero quantity", `{"card_token": "pm_card", "items": [{"event_id": 7, "tier_name": "GA", "quantity": 0}]}`},
        {"blank tier", `{"card_token": "pm_card", "items": [{"event_id": 7, "tier_name": " ", "quantity": 1}]}`},
        {"malformed json", `{`},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            rec := doCheckout(t, h, "holder-1", tc.body)
            assert.Equal(t, http.StatusBadRequest, rec.Code)
        })
    }
}

func TestCheckoutEndpointInsufficientInventory(t *testing.T) {
    h := newTestCheckoutHandler(&stubInventory{failTier: "GA"}, true)
    rec := doCheckout(t, h, "holder-1", validBody)

    require.Equal(t, http.StatusConflict, rec.Code)
    var body map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    assert.Equal(t, "insufficient_inventory", body["error"])
    assert.Equal(t, float64(0), body["line_item"])
}

func TestCheckoutEndpointUnknownTier(t *testing.T) {
    h := newTestCheckoutHandler(&stubInventory{}, true)
    body := `{"card_token": "pm_card", "items": [{"event_id": 7, "tier_name": "UNKNOWN", "quantity": 1}]}`
    rec := doCheckout(t, h, "holder-1", body)
    assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutEndpointPaymentDeclined(t *testing.T) {
    h := newTestCheckoutHandler(&stubInventory{}, false)
    rec := doCheckout(t, h, "holder-1", validBody)

    require.Equal(t, http.StatusPaymentRequired, rec.Code)
    var body map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    assert.Equal(t, "payment_failed", body["error"])
}
