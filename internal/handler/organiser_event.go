package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/avetro/ticketline/internal/model"
    "github.com/avetro/ticketline/internal/repository"
)

// OrganiserHandler covers event management for organisers: creating and
// editing events, maintaining price tiers and auditing issued tickets.
// Every mutation verifies that the authenticated organiser owns the
// event before touching it.
type OrganiserHandler struct {
    Events  *repository.EventRepo
    Tickets *repository.TicketRepo
}

// NewOrganiserHandler constructs an OrganiserHandler.
func NewOrganiserHandler(events *repository.EventRepo, tickets *repository.TicketRepo) *OrganiserHandler {
    if events == nil || tickets == nil {
        panic("nil repository passed to NewOrganiserHandler")
    }
    return &OrganiserHandler{Events: events, Tickets: tickets}
}

// ----- DTOs -----

type tierReq struct {
    Name           string `json:"name"`
    UnitPriceCents uint32 `json:"unit_price_cents"`
    Capacity       uint32 `json:"capacity"`
}

type eventReq struct {
    Title    string    `json:"title"`
    Venue    string    `json:"venue"`
    Region   string    `json:"region"`
    Tags     []string  `json:"tags"`
    StartsAt time.Time `json:"starts_at"`
    EndsAt   time.Time `json:"ends_at"`
    Tiers    []tierReq `json:"tiers"`
}

func (r *eventReq) validate() string {
    r.Title = strings.TrimSpace(r.Title)
    if r.Title == "" {
        return "title required"
    }
    if r.StartsAt.IsZero() || r.EndsAt.IsZero() {
        return "starts_at and ends_at required"
    }
    if !r.EndsAt.After(r.StartsAt) {
        return "ends_at must be after starts_at"
    }
    seen := make(map[string]bool, len(r.Tiers))
    for _, t := range r.Tiers {
        name := strings.ToLower(strings.TrimSpace(t.Name))
        if name == "" {
            return "tier name required"
        }
        if seen[name] {
            return "duplicate tier name: " + t.Name
        }
        seen[name] = true
    }
    return ""
}

// CreateEvent handles POST /v1/organiser/events.  Tiers may be supplied
// inline; they are created together with the event in one transaction.
func (h *OrganiserHandler) CreateEvent(c echo.Context) error {
    uid := currentUserID(c)
    if uid == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req eventReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "invalid body"})
    }
    if msg := req.validate(); msg != "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": msg})
    }

    ev := model.Event{
        OrganiserID: uid,
        Title:       req.Title,
        Venue:       strings.TrimSpace(req.Venue),
        Region:      strings.TrimSpace(req.Region),
        Tags:        req.Tags,
        StartsAt:    req.StartsAt,
        EndsAt:      req.EndsAt,
    }
    for _, t := range req.Tiers {
        ev.Tiers = append(ev.Tiers, model.PriceTier{
            Name:           strings.TrimSpace(t.Name),
            UnitPriceCents: t.UnitPriceCents,
            Capacity:       t.Capacity,
        })
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Events.Create(ctx, &ev); err != nil {
        return writeDomainError(c, err)
    }
    return c.JSON(http.StatusCreated, ev)
}

// UpdateEvent handles PUT /v1/organiser/events/:id.  Descriptive fields
// only; tiers are managed through UpsertTier.
func (h *OrganiserHandler) UpdateEvent(c echo.Context) error {
    uid := currentUserID(c)
    eventID, ok := h.ownedEvent(c, uid)
    if !ok {
        return nil
    }
    var req eventReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "invalid body"})
    }
    if msg := req.validate(); msg != "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": msg})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    ev := model.Event{
        ID:       eventID,
        Title:    req.Title,
        Venue:    strings.TrimSpace(req.Venue),
        Region:   strings.TrimSpace(req.Region),
        Tags:     req.Tags,
        StartsAt: req.StartsAt,
        EndsAt:   req.EndsAt,
    }
    if err := h.Events.Update(ctx, &ev); err != nil {
        return writeDomainError(c, err)
    }
    updated, err := h.Events.GetByID(ctx, eventID)
    if err != nil {
        return writeDomainError(c, err)
    }
    return c.JSON(http.StatusOK, updated)
}

// ArchiveEvent handles DELETE /v1/organiser/events/:id.  Archiving
// hides the event from public listings; issued tickets keep working.
func (h *OrganiserHandler) ArchiveEvent(c echo.Context) error {
    uid := currentUserID(c)
    eventID, ok := h.ownedEvent(c, uid)
    if !ok {
        return nil
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Events.Archive(ctx, eventID); err != nil {
        return writeDomainError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"archived": true})
}

// UpsertTier handles PUT /v1/organiser/events/:id/tiers.  Creates the
// tier or updates its price and capacity; a capacity below the tickets
// already sold is rejected with a conflict.
func (h *OrganiserHandler) UpsertTier(c echo.Context) error {
    uid := currentUserID(c)
    eventID, ok := h.ownedEvent(c, uid)
    if !ok {
        return nil
    }
    var req tierReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "invalid body"})
    }
    req.Name = strings.TrimSpace(req.Name)
    if req.Name == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "name required"})
    }

    tier := model.PriceTier{Name: req.Name, UnitPriceCents: req.UnitPriceCents, Capacity: req.Capacity}
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Events.UpsertTier(ctx, eventID, &tier); err != nil {
        return writeDomainError(c, err)
    }
    stored, err := h.Events.GetTier(ctx, eventID, tier.Name)
    if err != nil {
        return writeDomainError(c, err)
    }
    return c.JSON(http.StatusOK, stored)
}

// ListMyEvents handles GET /v1/organiser/events, archived included.
func (h *OrganiserHandler) ListMyEvents(c echo.Context) error {
    uid := currentUserID(c)
    if uid == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    events, err := h.Events.ListByOrganiser(ctx, uid)
    if err != nil {
        return writeDomainError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"events": events})
}

// ListEventTickets handles GET /v1/organiser/events/:id/tickets, an
// audit view over every ticket ever issued for the event.
func (h *OrganiserHandler) ListEventTickets(c echo.Context) error {
    uid := currentUserID(c)
    eventID, ok := h.ownedEvent(c, uid)
    if !ok {
        return nil
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    tickets, err := h.Tickets.ListByEvent(ctx, eventID)
    if err != nil {
        return writeDomainError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"tickets": tickets})
}

// ownedEvent parses the :id parameter and verifies ownership.  On
// failure it writes the response itself and reports ok=false.
func (h *OrganiserHandler) ownedEvent(c echo.Context, uid string) (uint64, bool) {
    if uid == "" {
        _ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
        return 0, false
    }
    eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        _ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "invalid event id"})
        return 0, false
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    organiser, err := h.Events.OrganiserOf(ctx, eventID)
    if err != nil {
        _ = writeDomainError(c, err)
        return 0, false
    }
    if organiser != uid {
        _ = c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
        return 0, false
    }
    return eventID, true
}
