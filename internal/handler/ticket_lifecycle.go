package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/avetro/ticketline/internal/lifecycle"
    "github.com/avetro/ticketline/internal/repository"
)

// LifecycleHandler exposes ticket status transitions.  Role middleware
// gates who can reach each route; this layer adds the per-ticket
// ownership checks the role alone cannot express (a holder may only
// touch their own ticket, an organiser only tickets of their own
// events).  The machine itself decides whether the transition is legal.
type LifecycleHandler struct {
    Machine *lifecycle.Machine
    Tickets *repository.TicketRepo
    Events  *repository.EventRepo
}

// NewLifecycleHandler constructs a LifecycleHandler.
func NewLifecycleHandler(m *lifecycle.Machine, tickets *repository.TicketRepo, events *repository.EventRepo) *LifecycleHandler {
    if m == nil || tickets == nil || events == nil {
        panic("nil dependency passed to NewLifecycleHandler")
    }
    return &LifecycleHandler{Machine: m, Tickets: tickets, Events: events}
}

// Scan handles POST /v1/tickets/:id/scan.  Gate staff consume the
// ticket at entry; a second scan of the same ticket reports
// already_scanned so the gate can reject the duplicate explicitly.
func (h *LifecycleHandler) Scan(c echo.Context) error {
    return h.transition(c, lifecycle.ActionScan, h.requireGateAccess)
}

// RequestRefund handles POST /v1/tickets/:id/refund-request.
func (h *LifecycleHandler) RequestRefund(c echo.Context) error {
    return h.transition(c, lifecycle.ActionRequestRefund, h.requireHolder)
}

// ApproveRefund handles POST /v1/tickets/:id/refund-approve.
func (h *LifecycleHandler) ApproveRefund(c echo.Context) error {
    return h.transition(c, lifecycle.ActionApproveRefund, h.requireOrganiser)
}

// RejectRefund handles POST /v1/tickets/:id/refund-reject.
func (h *LifecycleHandler) RejectRefund(c echo.Context) error {
    return h.transition(c, lifecycle.ActionRejectRefund, h.requireOrganiser)
}

// Cancel handles POST /v1/tickets/:id/cancel.
func (h *LifecycleHandler) Cancel(c echo.Context) error {
    return h.transition(c, lifecycle.ActionCancel, h.requireHolder)
}

// authzCheck validates that the authenticated user may act on the
// ticket.  It returns repository.ErrForbidden to deny.
type authzCheck func(ctx context.Context, c echo.Context, ticketID string) error

func (h *LifecycleHandler) transition(c echo.Context, action lifecycle.Action, authz authzCheck) error {
    uid := currentUserID(c)
    if uid == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ticketID := c.Param("id")

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := authz(ctx, c, ticketID); err != nil {
        return writeDomainError(c, err)
    }
    ticket, err := h.Machine.Transition(ctx, ticketID, action, uid)
    if err != nil {
        return writeDomainError(c, err)
    }
    return c.JSON(http.StatusOK, ticket)
}

// requireHolder permits only the ticket's holder.
func (h *LifecycleHandler) requireHolder(ctx context.Context, c echo.Context, ticketID string) error {
    ticket, err := h.Tickets.GetTicket(ctx, ticketID)
    if err != nil {
        return err
    }
    if ticket.HolderID != currentUserID(c) {
        return repository.ErrForbidden
    }
    return nil
}

// requireOrganiser permits only the organiser of the ticket's event.
func (h *LifecycleHandler) requireOrganiser(ctx context.Context, c echo.Context, ticketID string) error {
    ticket, err := h.Tickets.GetTicket(ctx, ticketID)
    if err != nil {
        return err
    }
    organiser, err := h.Events.OrganiserOf(ctx, ticket.EventID)
    if err != nil {
        return err
    }
    if organiser != currentUserID(c) {
        return repository.ErrForbidden
    }
    return nil
}

// requireGateAccess permits staff on any ticket, and organisers on
// tickets of their own events.
func (h *LifecycleHandler) requireGateAccess(ctx context.Context, c echo.Context, ticketID string) error {
    if currentRole(c) == "STAFF" {
        return nil
    }
    return h.requireOrganiser(ctx, c, ticketID)
}
