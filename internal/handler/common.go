package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/avetro/ticketline/internal/inventory"
    "github.com/avetro/ticketline/internal/lifecycle"
    "github.com/avetro/ticketline/internal/order"
    "github.com/avetro/ticketline/internal/repository"
)

// currentUserID extracts the authenticated subject placed in the
// context by the auth middleware.  An empty return means the route was
// reached without authentication, which is a wiring bug; handlers
// answer it with 401 rather than panicking.
func currentUserID(c echo.Context) string {
    if s, ok := c.Get("user_id").(string); ok {
        return s
    }
    return ""
}

func currentRole(c echo.Context) string {
    if s, ok := c.Get("role").(string); ok {
        return s
    }
    return ""
}

// writeDomainError maps domain errors to HTTP responses in one place so
// every handler reports the same shape: {"error": <stable code>,
// "message": <human text>}.  Unrecognised errors become an opaque 500;
// their detail stays in the logs, not the response.
func writeDomainError(c echo.Context, err error) error {
    var line *order.LineItemError
    if errors.As(err, &line) {
        status, code := statusFor(line.Err)
        return c.JSON(status, echo.Map{
            "error":     code,
            "message":   line.Error(),
            "line_item": line.Index,
        })
    }
    status, code := statusFor(err)
    msg := err.Error()
    if status == http.StatusInternalServerError {
        msg = "internal error"
    }
    return c.JSON(status, echo.Map{"error": code, "message": msg})
}

func statusFor(err error) (int, string) {
    switch {
    case errors.Is(err, inventory.ErrInsufficientInventory):
        return http.StatusConflict, "insufficient_inventory"
    case errors.Is(err, order.ErrPaymentFailed):
        return http.StatusPaymentRequired, "payment_failed"
    case errors.Is(err, lifecycle.ErrAlreadyScanned):
        return http.StatusConflict, "already_scanned"
    case errors.Is(err, lifecycle.ErrInvalidTransition):
        return http.StatusConflict, "invalid_transition"
    case errors.Is(err, repository.ErrEventNotFound),
        errors.Is(err, repository.ErrTierNotFound),
        errors.Is(err, repository.ErrTicketNotFound),
        errors.Is(err, repository.ErrOrderNotFound):
        return http.StatusNotFound, "not_found"
    case errors.Is(err, repository.ErrForbidden):
        return http.StatusForbidden, "forbidden"
    case errors.Is(err, repository.ErrDuplicateTierName):
        return http.StatusConflict, "duplicate_tier_name"
    case errors.Is(err, repository.ErrConflict):
        return http.StatusConflict, "conflict"
    case errors.Is(err, inventory.ErrInvalidQuantity),
        errors.Is(err, order.ErrEmptyCheckout),
        errors.Is(err, order.ErrOrderTooLarge):
        return http.StatusBadRequest, "invalid_request"
    default:
        return http.StatusInternalServerError, "internal_error"
    }
}
