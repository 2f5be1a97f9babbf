package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/avetro/ticketline/internal/model"
)

// EventRepo provides CRUD operations for events and their price tiers.
// Tier rows carry the sold counter that the inventory allocator updates;
// this repository only ever touches capacity and pricing, never sold,
// except through the guarded capacity check in UpsertTier.  All
// timestamp fields are assumed to be stored in UTC.
type EventRepo struct {
    db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions
// spanning multiple repositories.
func (r *EventRepo) DB() *sql.DB { return r.db }

// Create inserts a new event together with its initial price tiers in a
// single transaction.  It populates the generated event ID on the
// provided model.  Tier names are checked for per-event uniqueness via
// the (event_id, name_key) unique index; a violation yields
// ErrDuplicateTierName and nothing is inserted.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    const q = `INSERT INTO events (organiser_id, title, venue, region, tags, starts_at, ends_at, archived)
               VALUES (?, ?, ?, ?, ?, ?, ?, 0)`
    result, err := tx.ExecContext(ctx, q,
        ev.OrganiserID, ev.Title, ev.Venue, ev.Region, strings.Join(ev.Tags, ","),
        ev.StartsAt.UTC(), ev.EndsAt.UTC(),
    )
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    ev.ID = uint64(id)
    for i := range ev.Tiers {
        t := &ev.Tiers[i]
        t.EventID = ev.ID
        if err := insertTierTx(ctx, tx, t); err != nil {
            return err
        }
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// insertTierTx inserts one price tier within an existing transaction.
// The name_key column stores the lower-cased name and backs the
// case-insensitive uniqueness constraint.
func insertTierTx(ctx context.Context, tx *sql.Tx, t *model.PriceTier) error {
    const q = `INSERT INTO price_tiers (event_id, name, name_key, unit_price_cents, capacity, sold)
               VALUES (?, ?, ?, ?, ?, 0)`
    result, err := tx.ExecContext(ctx, q, t.EventID, t.Name, strings.ToLower(t.Name), t.UnitPriceCents, t.Capacity)
    if err != nil {
        if isDuplicateEntry(err) {
            return ErrDuplicateTierName
        }
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    t.ID = uint64(id)
    return nil
}

// GetByID returns a single event with its tiers ordered by tier ID.
// When no event with the given ID exists, ErrEventNotFound is returned.
func (r *EventRepo) GetByID(ctx context.Context, eventID uint64) (*model.Event, error) {
    const q = `SELECT id, organiser_id, title, venue, region, tags, starts_at, ends_at, archived, created_at, updated_at
               FROM events WHERE id = ?`
    var ev model.Event
    var tags string
    err := r.db.QueryRowContext(ctx, q, eventID).Scan(
        &ev.ID, &ev.OrganiserID, &ev.Title, &ev.Venue, &ev.Region, &tags,
        &ev.StartsAt, &ev.EndsAt, &ev.Archived, &ev.CreatedAt, &ev.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrEventNotFound
        }
        return nil, err
    }
    ev.Tags = splitTags(tags)
    tiers, err := r.tiersByEvent(ctx, ev.ID)
    if err != nil {
        return nil, err
    }
    ev.Tiers = tiers
    return &ev, nil
}

// tiersByEvent loads all tiers of an event in insertion order.
func (r *EventRepo) tiersByEvent(ctx context.Context, eventID uint64) ([]model.PriceTier, error) {
    const q = `SELECT id, event_id, name, unit_price_cents, capacity, sold, created_at, updated_at
               FROM price_tiers WHERE event_id = ? ORDER BY id`
    rows, err := r.db.QueryContext(ctx, q, eventID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    tiers := make([]model.PriceTier, 0)
    for rows.Next() {
        var t model.PriceTier
        if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.UnitPriceCents, &t.Capacity, &t.Sold, &t.CreatedAt, &t.UpdatedAt); err != nil {
            return nil, err
        }
        tiers = append(tiers, t)
    }
    return tiers, rows.Err()
}

// GetTier returns the tier with the given name (case-insensitive) on
// the given event.  It returns ErrEventNotFound when the event does not
// exist and ErrTierNotFound when the event has no such tier.
func (r *EventRepo) GetTier(ctx context.Context, eventID uint64, tierName string) (*model.PriceTier, error) {
    const q = `SELECT id, event_id, name, unit_price_cents, capacity, sold, created_at, updated_at
               FROM price_tiers WHERE event_id = ? AND name_key = ?`
    var t model.PriceTier
    err := r.db.QueryRowContext(ctx, q, eventID, strings.ToLower(tierName)).Scan(
        &t.ID, &t.EventID, &t.Name, &t.UnitPriceCents, &t.Capacity, &t.Sold, &t.CreatedAt, &t.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            // Distinguish a missing event from a missing tier so callers
            // can surface the right error.
            var exists bool
            if err2 := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM events WHERE id = ?)`, eventID).Scan(&exists); err2 != nil {
                return nil, err2
            }
            if !exists {
                return nil, ErrEventNotFound
            }
            return nil, ErrTierNotFound
        }
        return nil, err
    }
    return &t, nil
}

// OrganiserOf returns the organiser ID owning the given event, or
// ErrEventNotFound.
func (r *EventRepo) OrganiserOf(ctx context.Context, eventID uint64) (string, error) {
    var organiser string
    err := r.db.QueryRowContext(ctx, `SELECT organiser_id FROM events WHERE id = ?`, eventID).Scan(&organiser)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return "", ErrEventNotFound
        }
        return "", err
    }
    return organiser, nil
}

// Update modifies the descriptive fields of an event.  Ownership is
// validated by the caller via OrganiserOf before invoking this.  It
// returns ErrEventNotFound when the event does not exist.  The sold
// counters and tier definitions are not touched here.
func (r *EventRepo) Update(ctx context.Context, ev *model.Event) error {
    const q = `UPDATE events SET title = ?, venue = ?, region = ?, tags = ?, starts_at = ?, ends_at = ?
               WHERE id = ?`
    result, err := r.db.ExecContext(ctx, q,
        ev.Title, ev.Venue, ev.Region, strings.Join(ev.Tags, ","),
        ev.StartsAt.UTC(), ev.EndsAt.UTC(), ev.ID,
    )
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrEventNotFound
    }
    return nil
}

// Archive soft-deletes an event.  Archived events disappear from public
// listings but stay referenceable by existing tickets.  Archiving an
// already archived event is a no-op.
func (r *EventRepo) Archive(ctx context.Context, eventID uint64) error {
    result, err := r.db.ExecContext(ctx, `UPDATE events SET archived = 1 WHERE id = ?`, eventID)
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        // Either missing or already archived; tell them apart.
        var exists bool
        if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM events WHERE id = ?)`, eventID).Scan(&exists); err != nil {
            return err
        }
        if !exists {
            return ErrEventNotFound
        }
    }
    return nil
}

// UpsertTier creates a tier or updates its price and capacity.  A
// capacity update is guarded so it can never drop below the current
// sold counter: the conditional UPDATE matches only when
// capacity >= sold, and a zero row count with an existing tier yields
// ErrConflict.  Renames keep the name_key constraint intact.
func (r *EventRepo) UpsertTier(ctx context.Context, eventID uint64, tier *model.PriceTier) error {
    const upd = `UPDATE price_tiers SET unit_price_cents = ?, capacity = ?
                 WHERE event_id = ? AND name_key = ? AND sold <= ?`
    result, err := r.db.ExecContext(ctx, upd,
        tier.UnitPriceCents, tier.Capacity, eventID, strings.ToLower(tier.Name), tier.Capacity,
    )
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n > 0 {
        return nil
    }
    // Zero rows: the tier may not exist yet, or the new capacity is
    // below sold.  RowsAffected is also zero when the update is a
    // no-op, so re-check against the stored row.
    existing, err := r.GetTier(ctx, eventID, tier.Name)
    if err == nil {
        if existing.Sold > tier.Capacity {
            return ErrConflict
        }
        return nil
    }
    if !errors.Is(err, ErrTierNotFound) {
        return err
    }
    tier.EventID = eventID
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    if err := insertTierTx(ctx, tx, tier); err != nil {
        _ = tx.Rollback()
        return err
    }
    return tx.Commit()
}

// ListPublic returns non-archived events, optionally filtered by
// region, ordered by start time ascending.  Tiers are loaded for each
// event so browsers can show remaining availability.
func (r *EventRepo) ListPublic(ctx context.Context, region string) ([]model.Event, error) {
    q := `SELECT id, organiser_id, title, venue, region, tags, starts_at, ends_at, archived, created_at, updated_at
          FROM events WHERE archived = 0`
    args := []interface{}{}
    if region != "" {
        q += ` AND region = ?`
        args = append(args, region)
    }
    q += ` ORDER BY starts_at`
    return r.listEvents(ctx, q, args...)
}

// Search returns non-archived events whose title or tags contain the
// given term.  Matching is a simple LIKE; the term is escaped so user
// input cannot inject wildcards.
func (r *EventRepo) Search(ctx context.Context, term string) ([]model.Event, error) {
    like := "%" + escapeLike(term) + "%"
    const q = `SELECT id, organiser_id, title, venue, region, tags, starts_at, ends_at, archived, created_at, updated_at
               FROM events
               WHERE archived = 0 AND (title LIKE ? OR tags LIKE ?)
               ORDER BY starts_at`
    return r.listEvents(ctx, q, like, like)
}

// ListByOrganiser returns all events (archived included) owned by the
// given organiser, newest first.
func (r *EventRepo) ListByOrganiser(ctx context.Context, organiserID string) ([]model.Event, error) {
    const q = `SELECT id, organiser_id, title, venue, region, tags, starts_at, ends_at, archived, created_at, updated_at
               FROM events WHERE organiser_id = ? ORDER BY created_at DESC`
    return r.listEvents(ctx, q, organiserID)
}

func (r *EventRepo) listEvents(ctx context.Context, q string, args ...interface{}) ([]model.Event, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    events := make([]model.Event, 0)
    for rows.Next() {
        var ev model.Event
        var tags string
        if err := rows.Scan(
            &ev.ID, &ev.OrganiserID, &ev.Title, &ev.Venue, &ev.Region, &tags,
            &ev.StartsAt, &ev.EndsAt, &ev.Archived, &ev.CreatedAt, &ev.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        ev.Tags = splitTags(tags)
        events = append(events, ev)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    for i := range events {
        tiers, err := r.tiersByEvent(ctx, events[i].ID)
        if err != nil {
            return nil, err
        }
        events[i].Tiers = tiers
    }
    return events, nil
}

// splitTags converts the comma separated storage form back to a slice,
// dropping empty segments.
func splitTags(s string) []string {
    if s == "" {
        return []string{}
    }
    parts := strings.Split(s, ",")
    tags := make([]string, 0, len(parts))
    for _, p := range parts {
        if p = strings.TrimSpace(p); p != "" {
            tags = append(tags, p)
        }
    }
    return tags
}

// escapeLike escapes the LIKE metacharacters in user supplied search terms.
func escapeLike(s string) string {
    s = strings.ReplaceAll(s, `\`, `\\`)
    s = strings.ReplaceAll(s, `%`, `\%`)
    s = strings.ReplaceAll(s, `_`, `\_`)
    return s
}
