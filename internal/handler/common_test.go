package handler

import (
    "errors"
    "net/http"
    "testing"

    "github.com/stretchr/testify/assert"

    "github.com/avetro/ticketline/internal/inventory"
    "github.com/avetro/ticketline/internal/lifecycle"
    "github.com/avetro/ticketline/internal/order"
    "github.com/avetro/ticketline/internal/repository"
)

func TestStatusFor(t *testing.T) {
    cases := []struct {
        err    error
        status int
        code   string
    }{
        {inventory.ErrInsufficientInventory, http.StatusConflict, "insufficient_inventory"},
        {order.ErrPaymentFailed, http.StatusPaymentRequired, "payment_failed"},
        {lifecycle.ErrAlreadyScanned, http.StatusConflict, "already_scanned"},
        {lifecycle.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
        {repository.ErrEventNotFound, http.StatusNotFound, "not_found"},
        {repository.ErrTierNotFound, http.StatusNotFound, "not_found"},
        {repository.ErrTicketNotFound, http.StatusNotFound, "not_found"},
        {repository.ErrOrderNotFound, http.StatusNotFound, "not_found"},
        {repository.ErrForbidden, http.StatusForbidden, "forbidden"},
        {repository.ErrDuplicateTierName, http.StatusConflict, "duplicate_tier_name"},
        {repository.ErrConflict, http.StatusConflict, "conflict"},
        {inventory.ErrInvalidQuantity, http.StatusBadRequest, "invalid_request"},
        {order.ErrEmptyCheckout, http.StatusBadRequest, "invalid_request"},
        {order.ErrOrderTooLarge, http.StatusBadRequest, "invalid_request"},
        {errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
    }
    for _, tc := range cases {
        status, code := statusFor(tc.err)
        assert.Equal(t, tc.status, status, tc.err.Error())
        assert.Equal(t, tc.code, code, tc.err.Error())
    }

    // Wrapped errors keep their mapping.
    wrapped := &order.LineItemError{Index: 0, Err: inventory.ErrInsufficientInventory}
    status, code := statusFor(wrapped)
    assert.Equal(t, http.StatusConflict, status)
    assert.Equal(t, "insufficient_inventory", code)
}
