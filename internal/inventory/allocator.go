// Package inventory implements the allocator that owns tier capacity.
// It is the sole writer of the sold counters: every reservation and
// every rollback of tier inventory goes through this package, and the
// underlying store serialises the read-modify-write per tier row so
// overselling is impossible under arbitrary concurrency.
package inventory

import (
    "context"
    "crypto/rand"
    "errors"
    "fmt"

    "github.com/avetro/ticketline/internal/logger"
    "github.com/avetro/ticketline/internal/model"
    "github.com/avetro/ticketline/internal/repository"
)

// ErrInsufficientInventory is returned when the requested quantity does
// not fit into the tier's remaining capacity.  The reservation is
// all-or-nothing; nothing was claimed.  Callers may retry with a
// different tier or quantity, the allocator never retries this itself.
var ErrInsufficientInventory = errors.New("insufficient inventory")

// ErrInvalidQuantity is returned when the requested quantity is zero.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// maxMintAttempts bounds the regeneration loop for ticket ID
// collisions.  36^6 identifiers make even one collision unlikely, so
// exhausting the bound indicates something systemic and is surfaced as
// an error rather than looping forever.
const maxMintAttempts = 5

// TierStore resolves price tiers.  Implemented by repository.EventRepo.
type TierStore interface {
    GetTier(ctx context.Context, eventID uint64, tierName string) (*model.PriceTier, error)
}

// TicketStore performs the atomic capacity/ticket operations.
// Implemented by repository.TicketRepo.  ReserveTier must guarantee
// that the capacity check, the sold increment and the ticket inserts
// are one atomic unit, and that concurrent calls against the same tier
// are serialised (the MySQL implementation relies on the row lock taken
// by the conditional UPDATE).
type TicketStore interface {
    ReserveTier(ctx context.Context, eventID uint64, tierName string, quantity uint32, tickets []model.Ticket) error
    ReleaseTickets(ctx context.Context, ticketIDs []string) (int, error)
}

// Allocator hands out tier inventory.  Reserve mints PENDING tickets
// against capacity; Release gives the capacity back.  The allocator is
// safe for concurrent use.
type Allocator struct {
    tiers   TierStore
    tickets TicketStore
    log     logger.Logger
}

// NewAllocator constructs an Allocator.  All dependencies must be non-nil.
func NewAllocator(tiers TierStore, tickets TicketStore, log logger.Logger) *Allocator {
    if tiers == nil || tickets == nil {
        panic("nil store passed to NewAllocator")
    }
    return &Allocator{tiers: tiers, tickets: tickets, log: log}
}

// Reserve atomically claims quantity units of the given tier and mints
// that many PENDING tickets for the holder, returning their IDs.  On
// ErrInsufficientInventory nothing was reserved.  Tier and event
// existence errors from the store (repository.ErrEventNotFound,
// repository.ErrTierNotFound) pass through unchanged.
//
// Ticket IDs are random draws from the 36-symbol alphabet; a collision
// with an existing row aborts the store transaction, and the whole
// batch is re-minted with fresh IDs.  This is an expected, bounded
// retry path, not an error, unless the bound is exhausted.
func (a *Allocator) Reserve(ctx context.Context, eventID uint64, tierName string, quantity uint32, holderID string) ([]string, error) {
    if quantity < 1 {
        return nil, ErrInvalidQuantity
    }
    tier, err := a.tiers.GetTier(ctx, eventID, tierName)
    if err != nil {
        return nil, err
    }
    // Cheap pre-check on a possibly stale snapshot; the conditional
    // update inside ReserveTier is the authoritative guard.
    if quantity > tier.Capacity {
        return nil, ErrInsufficientInventory
    }

    for attempt := 0; attempt < maxMintAttempts; attempt++ {
        tickets, err := mintTickets(eventID, tier.Name, holderID, quantity)
        if err != nil {
            return nil, err
        }
        err = a.tickets.ReserveTier(ctx, eventID, tier.Name, quantity, tickets)
        if err == nil {
            ids := make([]string, len(tickets))
            for i, t := range tickets {
                ids[i] = t.TicketID
            }
            return ids, nil
        }
        if errors.Is(err, repository.ErrCapacityExceeded) {
            return nil, ErrInsufficientInventory
        }
        if errors.Is(err, repository.ErrDuplicateTicketID) {
            a.log.Warn("ticket id collision, re-minting batch",
                "event_id", eventID, "tier", tier.Name, "attempt", attempt+1)
            continue
        }
        return nil, err
    }
    return nil, fmt.Errorf("minting tickets for event %d tier %q: id space exhausted after %d attempts",
        eventID, tier.Name, maxMintAttempts)
}

// Release reverses a reservation: the still-pending tickets among the
// given IDs are voided and their tier capacity is handed back.
// Releasing an already-released set is a no-op, not an error.
func (a *Allocator) Release(ctx context.Context, ticketIDs []string) error {
    if len(ticketIDs) == 0 {
        return nil
    }
    voided, err := a.tickets.ReleaseTickets(ctx, ticketIDs)
    if err != nil {
        return err
    }
    if voided > 0 {
        a.log.Info("released reservation", "tickets_voided", voided)
    }
    return nil
}

// mintTickets builds a batch of PENDING tickets with freshly generated IDs.
func mintTickets(eventID uint64, tierName, holderID string, quantity uint32) ([]model.Ticket, error) {
    tickets := make([]model.Ticket, 0, quantity)
    for i := uint32(0); i < quantity; i++ {
        id, err := newTicketID()
        if err != nil {
            return nil, err
        }
        tickets = append(tickets, model.Ticket{
            TicketID: id,
            EventID:  eventID,
            TierName: tierName,
            HolderID: holderID,
            Status:   model.StatusPending,
        })
    }
    return tickets, nil
}

// newTicketID draws six symbols from the ticket alphabet using
// crypto/rand.  Bytes are rejection-sampled so every symbol is equally
// likely.
func newTicketID() (string, error) {
    const alphabet = model.TicketIDAlphabet
    // Largest multiple of len(alphabet) below 256; bytes at or above it
    // are discarded to avoid modulo bias.
    const limit = byte(256 / len(alphabet) * len(alphabet))
    id := make([]byte, 0, model.TicketIDLength)
    buf := make([]byte, model.TicketIDLength*2)
    for len(id) < model.TicketIDLength {
        if _, err := rand.Read(buf); err != nil {
            return "", err
        }
        for _, b := range buf {
            if b >= limit {
                continue
            }
            id = append(id, alphabet[int(b)%len(alphabet)])
            if len(id) == model.TicketIDLength {
                break
            }
        }
    }
    return string(id), nil
}
