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

// PublicHandler serves the unauthenticated catalog: event listings,
// search and detail pages.  These routes sit behind the Redis response
// cache, so the handlers stay read-only and side-effect free.
type PublicHandler struct {
    Events *repository.EventRepo
}

// NewPublicHandler constructs a PublicHandler.
func NewPublicHandler(events *repository.EventRepo) *PublicHandler {
    if events == nil {
        panic("nil repository passed to NewPublicHandler")
    }
    return &PublicHandler{Events: events}
}

// publicTier is the catalog view of a tier: price and remaining count,
// never the raw sold/capacity pair.
type publicTier struct {
    Name           string `json:"name"`
    UnitPriceCents uint32 `json:"unit_price_cents"`
    Remaining      uint32 `json:"remaining"`
}

type publicEvent struct {
    ID       uint64       `json:"id"`
    Title    string       `json:"title"`
    Venue    string       `json:"venue"`
    Region   string       `json:"region"`
    Tags     []string     `json:"tags"`
    StartsAt time.Time    `json:"starts_at"`
    EndsAt   time.Time    `json:"ends_at"`
    Tiers    []publicTier `json:"tiers"`
}

func toPublicEvent(ev model.Event) publicEvent {
    tiers := make([]publicTier, 0, len(ev.Tiers))
    for _, t := range ev.Tiers {
        tiers = append(tiers, publicTier{Name: t.Name, UnitPriceCents: t.UnitPriceCents, Remaining: t.Remaining()})
    }
    return publicEvent{
        ID: ev.ID, Title: ev.Title, Venue: ev.Venue, Region: ev.Region,
        Tags: ev.Tags, StartsAt: ev.StartsAt, EndsAt: ev.EndsAt, Tiers: tiers,
    }
}

// ListEvents handles GET /v1/events with an optional ?region= filter.
func (h *PublicHandler) ListEvents(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    events, err := h.Events.ListPublic(ctx, strings.TrimSpace(c.QueryParam("region")))
    if err != nil {
        return writeDomainError(c, err)
    }
    out := make([]publicEvent, 0, len(events))
    for _, ev := range events {
        out = append(out, toPublicEvent(ev))
    }
    return c.JSON(http.StatusOK, echo.Map{"events": out})
}

// SearchEvents handles GET /v1/events/search?q=term, matching on title
// and tags.
func (h *PublicHandler) SearchEvents(c echo.Context) error {
    term := strings.TrimSpace(c.QueryParam("q"))
    if term == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "q required"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    events, err := h.Events.Search(ctx, term)
    if err != nil {
        return writeDomainError(c, err)
    }
    out := make([]publicEvent, 0, len(events))
    for _, ev := range events {
        out = append(out, toPublicEvent(ev))
    }
    return c.JSON(http.StatusOK, echo.Map{"events": out})
}

// GetEvent handles GET /v1/events/:id.  Archived events are hidden from
// the public view.
func (h *PublicHandler) GetEvent(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "invalid event id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    ev, err := h.Events.GetByID(ctx, id)
    if err != nil {
        return writeDomainError(c, err)
    }
    if ev.Archived {
        return writeDomainError(c, repository.ErrEventNotFound)
    }
    return c.JSON(http.StatusOK, toPublicEvent(*ev))
}
