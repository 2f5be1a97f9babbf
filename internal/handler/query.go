package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/avetro/ticketline/internal/repository"
)

// QueryHandler serves the read side for authenticated users: single
// tickets, orders and per-holder listings.  Reads go straight to the
// repositories; there is no caching here because holders expect to see
// their own writes immediately.
type QueryHandler struct {
    Tickets *repository.TicketRepo
    Orders  *repository.OrderRepo
    Events  *repository.EventRepo
}

// NewQueryHandler constructs a QueryHandler.
func NewQueryHandler(tickets *repository.TicketRepo, orders *repository.OrderRepo, events *repository.EventRepo) *QueryHandler {
    if tickets == nil || orders == nil || events == nil {
        panic("nil repository passed to NewQueryHandler")
    }
    return &QueryHandler{Tickets: tickets, Orders: orders, Events: events}
}

// GetTicket handles GET /v1/tickets/:id.  Visible to the ticket's
// holder, to staff, and to the organiser of the ticket's event.
func (h *QueryHandler) GetTicket(c echo.Context) error {
    uid := currentUserID(c)
    if uid == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    ticket, err := h.Tickets.GetTicket(ctx, c.Param("id"))
    if err != nil {
        return writeDomainError(c, err)
    }
    if ticket.HolderID != uid && currentRole(c) != "STAFF" {
        organiser, err := h.Events.OrganiserOf(ctx, ticket.EventID)
        if err != nil {
            return writeDomainError(c, err)
        }
        if organiser != uid {
            // Do not reveal whether the ticket exists.
            return writeDomainError(c, repository.ErrTicketNotFound)
        }
    }
    return c.JSON(http.StatusOK, ticket)
}

// GetOrder handles GET /v1/orders/:number.  Only the buyer sees their
// order; anyone else gets not_found rather than forbidden so order
// numbers cannot be probed.
func (h *QueryHandler) GetOrder(c echo.Context) error {
    uid := currentUserID(c)
    if uid == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    ord, err := h.Orders.GetByNumber(ctx, c.Param("number"))
    if err != nil {
        return writeDomainError(c, err)
    }
    if ord.HolderID != uid {
        return writeDomainError(c, repository.ErrOrderNotFound)
    }
    return c.JSON(http.StatusOK, ord)
}

// MyTickets handles GET /v1/me/tickets.
func (h *QueryHandler) MyTickets(c echo.Context) error {
    uid := currentUserID(c)
    if uid == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    tickets, err := h.Tickets.ListByHolder(ctx, uid)
    if err != nil {
        return writeDomainError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"tickets": tickets})
}

// MyOrders handles GET /v1/me/orders.
func (h *QueryHandler) MyOrders(c echo.Context) error {
    uid := currentUserID(c)
    if uid == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    orders, err := h.Orders.ListByHolder(ctx, uid)
    if err != nil {
        return writeDomainError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"orders": orders})
}
