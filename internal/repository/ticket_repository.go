package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/avetro/ticketline/internal/model"
)

// TicketRepo provides data access to the tickets table and the
// capacity-coupled operations that must move the tier sold counter and
// ticket rows together.  The sold counter is only ever changed through
// ReserveTier and ReleaseTickets, both of which run a single
// transaction per call so readers never observe a counter that
// disagrees with the ticket rows.
type TicketRepo struct {
    db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// ReserveTier atomically claims quantity units of a tier and mints the
// given tickets in PENDING state.  The capacity check and increment are
// one conditional UPDATE:
//
//	UPDATE price_tiers SET sold = sold + q WHERE ... AND sold + q <= capacity
//
// MySQL serialises writers on the row lock, so two concurrent
// reservations can never both pass the guard when their combined
// quantity exceeds the remaining capacity.  Zero affected rows means
// the quantity does not fit and ErrCapacityExceeded is returned with
// nothing reserved.  A ticket ID collision aborts the transaction with
// ErrDuplicateTicketID; the caller regenerates IDs and retries.
func (r *TicketRepo) ReserveTier(ctx context.Context, eventID uint64, tierName string, quantity uint32, tickets []model.Ticket) error {
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
    const take = `UPDATE price_tiers SET sold = sold + ?
                  WHERE event_id = ? AND name_key = ? AND sold + ? <= capacity`
    result, err := tx.ExecContext(ctx, take, quantity, eventID, strings.ToLower(tierName), quantity)
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrCapacityExceeded
    }
    if err := insertTicketsTx(ctx, tx, tickets); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// insertTicketsTx bulk-inserts ticket rows within the transaction.
// Every ticket must already carry its generated ID and PENDING status.
func insertTicketsTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
    if len(tickets) == 0 {
        return nil
    }
    query := `INSERT INTO tickets (ticket_id, event_id, tier_name, holder_id, location_details, status) VALUES `
    args := make([]interface{}, 0, len(tickets)*6)
    for i, t := range tickets {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?, ?, ?)"
        args = append(args, t.TicketID, t.EventID, t.TierName, t.HolderID, t.LocationDetails, string(t.Status))
    }
    if _, err := tx.ExecContext(ctx, query, args...); err != nil {
        if isDuplicateEntry(err) {
            return ErrDuplicateTicketID
        }
        return err
    }
    return nil
}

// ReleaseTickets voids the still-PENDING tickets among the given IDs
// and returns the tier capacity they held.  Rows are locked with
// SELECT ... FOR UPDATE before flipping so a concurrent release of the
// same set cannot decrement a tier twice; tickets already voided (or in
// any other state) are skipped, which makes the operation idempotent.
// It returns the number of tickets actually voided.
func (r *TicketRepo) ReleaseTickets(ctx context.Context, ticketIDs []string) (int, error) {
    if len(ticketIDs) == 0 {
        return 0, nil
    }
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    placeholders := make([]string, len(ticketIDs))
    args := make([]interface{}, len(ticketIDs))
    for i, id := range ticketIDs {
        placeholders[i] = "?"
        args[i] = id
    }
    in := strings.Join(placeholders, ",")

    // Lock the pending rows and collect the per-tier counts to give back.
    sel := `SELECT ticket_id, event_id, tier_name FROM tickets
            WHERE ticket_id IN (` + in + `) AND status = 'PENDING' FOR UPDATE`
    rows, err := tx.QueryContext(ctx, sel, args...)
    if err != nil {
        return 0, err
    }
    type tierKey struct {
        eventID  uint64
        tierName string
    }
    counts := make(map[tierKey]uint32)
    voidable := make([]string, 0, len(ticketIDs))
    for rows.Next() {
        var id, tier string
        var eventID uint64
        if scanErr := rows.Scan(&id, &eventID, &tier); scanErr != nil {
            rows.Close()
            return 0, scanErr
        }
        voidable = append(voidable, id)
        counts[tierKey{eventID, strings.ToLower(tier)}]++
    }
    if err = rows.Close(); err != nil {
        return 0, err
    }
    if len(voidable) == 0 {
        // Nothing pending: the set was already released.
        if err := tx.Commit(); err != nil {
            return 0, err
        }
        committed = true
        return 0, nil
    }

    vp := make([]string, len(voidable))
    vargs := make([]interface{}, len(voidable))
    for i, id := range voidable {
        vp[i] = "?"
        vargs[i] = id
    }
    void := `UPDATE tickets SET status = 'VOIDED' WHERE ticket_id IN (` + strings.Join(vp, ",") + `) AND status = 'PENDING'`
    if _, err := tx.ExecContext(ctx, void, vargs...); err != nil {
        return 0, err
    }
    const giveBack = `UPDATE price_tiers SET sold = sold - ?
                      WHERE event_id = ? AND name_key = ? AND sold >= ?`
    for k, n := range counts {
        if _, err := tx.ExecContext(ctx, giveBack, n, k.eventID, k.tierName, n); err != nil {
            return 0, err
        }
    }
    if err := tx.Commit(); err != nil {
        return 0, err
    }
    committed = true
    return len(voidable), nil
}

// PromoteOrder flips all given tickets from PENDING to ACTIVE and
// stamps them with the order number in one transaction.  The promotion
// is all-or-nothing: when fewer rows match than tickets were asked for,
// the transaction is rolled back so no ticket of the order is ever
// visible as ACTIVE without its siblings.  It returns the number of
// rows that matched; a shortfall with a nil error means nothing was
// committed and the caller rolls the order back.
func (r *TicketRepo) PromoteOrder(ctx context.Context, orderNumber string, ticketIDs []string) (int, error) {
    if len(ticketIDs) == 0 {
        return 0, nil
    }
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    placeholders := make([]string, len(ticketIDs))
    args := make([]interface{}, 0, len(ticketIDs)+1)
    args = append(args, orderNumber)
    for i, id := range ticketIDs {
        placeholders[i] = "?"
        args = append(args, id)
    }
    q := `UPDATE tickets SET status = 'ACTIVE', order_number = ?
          WHERE ticket_id IN (` + strings.Join(placeholders, ",") + `) AND status = 'PENDING'`
    result, err := tx.ExecContext(ctx, q, args...)
    if err != nil {
        return 0, err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return 0, err
    }
    if int(n) != len(ticketIDs) {
        // A ticket left PENDING behind our back; the deferred rollback
        // undoes the partial promotion.
        return int(n), nil
    }
    if err := tx.Commit(); err != nil {
        return 0, err
    }
    committed = true
    return int(n), nil
}

// CompareAndSwapStatus moves a ticket from one status to another only
// when it currently holds the expected status.  It reports whether the
// swap happened.  A false return with a nil error means another writer
// changed the ticket first (or it never had the expected status);
// callers re-read and decide.
func (r *TicketRepo) CompareAndSwapStatus(ctx context.Context, ticketID string, from, to model.TicketStatus) (bool, error) {
    const q = `UPDATE tickets SET status = ? WHERE ticket_id = ? AND status = ?`
    result, err := r.db.ExecContext(ctx, q, string(to), ticketID, string(from))
    if err != nil {
        return false, err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// GetTicket returns a single ticket or ErrTicketNotFound.
func (r *TicketRepo) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
    const q = `SELECT ticket_id, event_id, tier_name, holder_id, COALESCE(order_number, ''), location_details, status, created_at, updated_at
               FROM tickets WHERE ticket_id = ?`
    var t model.Ticket
    var status string
    err := r.db.QueryRowContext(ctx, q, ticketID).Scan(
        &t.TicketID, &t.EventID, &t.TierName, &t.HolderID, &t.OrderNumber,
        &t.LocationDetails, &status, &t.CreatedAt, &t.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrTicketNotFound
        }
        return nil, err
    }
    t.Status = model.TicketStatus(status)
    return &t, nil
}

// ListByOrder returns all tickets stamped with the given order number,
// ordered by ticket ID for deterministic output.
func (r *TicketRepo) ListByOrder(ctx context.Context, orderNumber string) ([]model.Ticket, error) {
    const q = `SELECT ticket_id, event_id, tier_name, holder_id, COALESCE(order_number, ''), location_details, status, created_at, updated_at
               FROM tickets WHERE order_number = ? ORDER BY ticket_id`
    return r.listTickets(ctx, q, orderNumber)
}

// ListByHolder returns all tickets belonging to the given holder,
// newest first.  Voided and pending tickets are excluded: neither was
// ever visible to the holder as a completed purchase, and exposing an
// in-flight checkout's pending tickets would let the holder interfere
// with it.
func (r *TicketRepo) ListByHolder(ctx context.Context, holderID string) ([]model.Ticket, error) {
    const q = `SELECT ticket_id, event_id, tier_name, holder_id, COALESCE(order_number, ''), location_details, status, created_at, updated_at
               FROM tickets WHERE holder_id = ? AND status NOT IN ('VOIDED', 'PENDING') ORDER BY created_at DESC, ticket_id`
    return r.listTickets(ctx, q, holderID)
}

// ListByEvent returns all tickets issued for an event, newest first.
// Intended for organiser views; includes every status for audit.
func (r *TicketRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Ticket, error) {
    const q = `SELECT ticket_id, event_id, tier_name, holder_id, COALESCE(order_number, ''), location_details, status, created_at, updated_at
               FROM tickets WHERE event_id = ? ORDER BY created_at DESC, ticket_id`
    return r.listTickets(ctx, q, eventID)
}

func (r *TicketRepo) listTickets(ctx context.Context, q string, args ...interface{}) ([]model.Ticket, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    tickets := make([]model.Ticket, 0)
    for rows.Next() {
        var t model.Ticket
        var status string
        if err := rows.Scan(
            &t.TicketID, &t.EventID, &t.TierName, &t.HolderID, &t.OrderNumber,
            &t.LocationDetails, &status, &t.CreatedAt, &t.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        t.Status = model.TicketStatus(status)
        tickets = append(tickets, t)
    }
    return tickets, rows.Err()
}
