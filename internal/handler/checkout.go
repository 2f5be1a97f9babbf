package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/avetro/ticketline/internal/order"
)

// CheckoutHandler exposes the order coordinator over HTTP.  The
// coordinator owns atomicity and rollback; this layer only validates
// the request shape and translates errors.
type CheckoutHandler struct {
    Orders *order.Coordinator
}

// NewCheckoutHandler constructs a CheckoutHandler.
func NewCheckoutHandler(orders *order.Coordinator) *CheckoutHandler {
    if orders == nil {
        panic("nil coordinator passed to NewCheckoutHandler")
    }
    return &CheckoutHandler{Orders: orders}
}

type checkoutReq struct {
    BuyerContact string           `json:"buyer_contact"`
    CardToken    string           `json:"card_token"`
    Items        []order.LineItem `json:"items"`
}

// Checkout handles POST /v1/checkout.  The holder is always the
// authenticated user; the body names what to buy and how to pay.  No
// request timeout is imposed here: the coordinator bounds the payment
// step itself and everything else is local database work.
func (h *CheckoutHandler) Checkout(c echo.Context) error {
    uid := currentUserID(c)
    if uid == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }

    var req checkoutReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "invalid body"})
    }
    if len(req.Items) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "items required"})
    }
    if strings.TrimSpace(req.CardToken) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "card_token required"})
    }
    for i, item := range req.Items {
        if item.Quantity < 1 {
            return c.JSON(http.StatusBadRequest, echo.Map{
                "error": "invalid_request", "message": "quantity must be at least 1", "line_item": i,
            })
        }
        if strings.TrimSpace(item.TierName) == "" {
            return c.JSON(http.StatusBadRequest, echo.Map{
                "error": "invalid_request", "message": "tier_name required", "line_item": i,
            })
        }
    }

    res, err := h.Orders.Checkout(c.Request().Context(), order.CheckoutRequest{
        HolderID:     uid,
        BuyerContact: strings.TrimSpace(req.BuyerContact),
        Items:        req.Items,
        CardToken:    req.CardToken,
    })
    if err != nil {
        return writeDomainError(c, err)
    }
    return c.JSON(http.StatusCreated, res)
}
