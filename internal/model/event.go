package model

import "time"

// Event represents a ticketed happening created by an organiser.  An
// event carries its schedule and venue information together with an
// ordered list of price tiers.  Events are never physically deleted
// while tickets reference them; organisers archive them instead.
//
// Fields:
//  ID          – primary key identifier, immutable once created.
//  OrganiserID – opaque identifier of the owning organiser.
//  Title       – display title of the event.
//  Venue       – venue name or address.
//  Region      – coarse geographic region used for browsing.
//  Tags        – free-form labels used for search.
//  StartsAt    – when the event begins.
//  EndsAt      – when the event ends (must be after StartsAt).
//  Archived    – soft-deletion flag; archived events are hidden from
//                public browsing but remain referenceable.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Event struct {
    ID          uint64    // events.id
    OrganiserID string    // events.organiser_id
    Title       string    // events.title
    Venue       string    // events.venue
    Region      string    // events.region
    Tags        []string  // events.tags (comma separated in storage)
    StartsAt    time.Time // events.starts_at
    EndsAt      time.Time // events.ends_at
    Archived    bool      // events.archived
    CreatedAt   time.Time // events.created_at
    UpdatedAt   time.Time // events.updated_at

    Tiers []PriceTier // ordered tier list, loaded on demand
}

// PriceTier is a named pricing and capacity bucket within an event.
// Tier names are unique per event, compared case-insensitively.  The
// Sold counter is owned exclusively by the inventory allocator; any
// other writer would break the overselling guarantee.
//
// Fields:
//  ID             – primary key identifier.
//  EventID        – event this tier belongs to.
//  Name           – tier name as entered by the organiser.
//  UnitPriceCents – price per ticket in cents.
//  Capacity       – maximum number of tickets that may ever be sold.
//  Sold           – number of capacity units currently claimed by
//                   pending or active tickets.  0 <= Sold <= Capacity.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type PriceTier struct {
    ID             uint64    // price_tiers.id
    EventID        uint64    // price_tiers.event_id
    Name           string    // price_tiers.name
    UnitPriceCents uint32    // price_tiers.unit_price_cents
    Capacity       uint32    // price_tiers.capacity
    Sold           uint32    // price_tiers.sold
    CreatedAt      time.Time // price_tiers.created_at
    UpdatedAt      time.Time // price_tiers.updated_at
}

// Remaining returns how many units of the tier are still available.
func (t PriceTier) Remaining() uint32 {
    if t.Sold >= t.Capacity {
        return 0
    }
    return t.Capacity - t.Sold
}
