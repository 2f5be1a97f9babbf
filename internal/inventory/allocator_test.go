package inventory

import (
    "context"
    "errors"
    "sync"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/avetro/ticketline/internal/logger"
    "github.com/avetro/ticketline/internal/model"
    "github.com/avetro/ticketline/internal/repository"
)

// The MySQL repositories must satisfy the allocator's store contracts.
var (
    _ TierStore   = (*repository.EventRepo)(nil)
    _ TicketStore = (*repository.TicketRepo)(nil)
)

// memTierStore is an in-memory stand-in for the MySQL repositories.  It
// reproduces the two contracts the allocator depends on: the capacity
// check and increment are atomic under the mutex, and duplicate ticket
// IDs abort the whole batch.
type memTierStore struct {
    mu      sync.Mutex
    tier    model.PriceTier
    tickets map[string]model.Ticket

    // forceDuplicates makes the next n ReserveTier calls fail as if a
    // minted ID collided with an existing row.
    forceDuplicates int
}

func newMemTierStore(capacity uint32) *memTierStore {
    return &memTierStore{
        tier: model.PriceTier{
            ID: 1, EventID: 7, Name: "GA", UnitPriceCents: 5000, Capacity: capacity,
        },
        tickets: make(map[string]model.Ticket),
    }
}

func (s *memTierStore) GetTier(_ context.Context, eventID uint64, tierName string) (*model.PriceTier, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if eventID != s.tier.EventID {
        return nil, repository.ErrEventNotFound
    }
    if tierName != s.tier.Name {
        return nil, repository.ErrTierNotFound
    }
    t := s.tier
    return &t, nil
}

func (s *memTierStore) ReserveTier(_ context.Context, eventID uint64, tierName string, quantity uint32, tickets []model.Ticket) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.forceDuplicates > 0 {
        s.forceDuplicates--
        return repository.ErrDuplicateTicketID
    }
    if s.tier.Sold+quantity > s.tier.Capacity {
        return repository.ErrCapacityExceeded
    }
    for _, t := range tickets {
        if _, ok := s.tickets[t.TicketID]; ok {
            return repository.ErrDuplicateTicketID
        }
    }
    for _, t := range tickets {
        s.tickets[t.TicketID] = t
    }
    s.tier.Sold += quantity
    return nil
}

func (s *memTierStore) ReleaseTickets(_ context.Context, ticketIDs []string) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    voided := 0
    for _, id := range ticketIDs {
        t, ok := s.tickets[id]
        if !ok || t.Status != model.StatusPending {
            continue
        }
        t.Status = model.StatusVoided
        s.tickets[id] = t
        s.tier.Sold--
        voided++
    }
    return voided, nil
}

func newTestAllocator(store *memTierStore) *Allocator {
    return NewAllocator(store, store, logger.NewNop())
}

func TestReserveMintsPendingTickets(t *testing.T) {
    store := newMemTierStore(10)
    a := newTestAllocator(store)

    ids, err := a.Reserve(context.Background(), 7, "GA", 3, "holder-1")
    require.NoError(t, err)
    require.Len(t, ids, 3)

    for _, id := range ids {
        assert.Len(t, id, model.TicketIDLength)
        for _, r := range id {
            assert.Contains(t, model.TicketIDAlphabet, string(r))
        }
        ticket := store.tickets[id]
        assert.Equal(t, model.StatusPending, ticket.Status)
        assert.Equal(t, "holder-1", ticket.HolderID)
    }
    assert.Equal(t, uint32(3), store.tier.Sold)
}

func TestReserveInsufficientInventory(t *testing.T) {
    store := newMemTierStore(2)
    a := newTestAllocator(store)

    // Two seats left; asking for three claims nothing.
    _, err := a.Reserve(context.Background(), 7, "GA", 3, "holder-1")
    assert.ErrorIs(t, err, ErrInsufficientInventory)
    assert.Equal(t, uint32(0), store.tier.Sold)

    // The two remaining seats are still available.
    ids, err := a.Reserve(context.Background(), 7, "GA", 2, "holder-2")
    require.NoError(t, err)
    assert.Len(t, ids, 2)

    _, err = a.Reserve(context.Background(), 7, "GA", 1, "holder-3")
    assert.ErrorIs(t, err, ErrInsufficientInventory)
}

func TestReserveZeroQuantity(t *testing.T) {
    a := newTestAllocator(newMemTierStore(5))
    _, err := a.Reserve(context.Background(), 7, "GA", 0, "holder-1")
    assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestReserveUnknownTierAndEvent(t *testing.T) {
    a := newTestAllocator(newMemTierStore(5))

    _, err := a.Reserve(context.Background(), 7, "VIP", 1, "holder-1")
    assert.ErrorIs(t, err, repository.ErrTierNotFound)

    _, err = a.Reserve(context.Background(), 99, "GA", 1, "holder-1")
    assert.ErrorIs(t, err, repository.ErrEventNotFound)
}

func TestReserveRemintsOnIDCollision(t *testing.T) {
    store := newMemTierStore(5)
    store.forceDuplicates = 2
    a := newTestAllocator(store)

    ids, err := a.Reserve(context.Background(), 7, "GA", 2, "holder-1")
    require.NoError(t, err)
    assert.Len(t, ids, 2)
    assert.Equal(t, uint32(2), store.tier.Sold)
}

func TestReserveGivesUpAfterRepeatedCollisions(t *testing.T) {
    store := newMemTierStore(5)
    store.forceDuplicates = maxMintAttempts
    a := newTestAllocator(store)

    _, err := a.Reserve(context.Background(), 7, "GA", 1, "holder-1")
    require.Error(t, err)
    assert.NotErrorIs(t, err, ErrInsufficientInventory)
    assert.Equal(t, uint32(0), store.tier.Sold)
}

// TestConcurrentReserveNeverOversells hammers one tier from many
// goroutines asking for more than exists in total.  Whatever interleaving
// occurs, sold never exceeds capacity and every successful reservation
// is backed by exactly that many ticket rows.
func TestConcurrentReserveNeverOversells(t *testing.T) {
    const capacity = 50
    store := newMemTierStore(capacity)
    a := newTestAllocator(store)

    const workers = 30
    const each = 3 // 90 requested in total
    var wg sync.WaitGroup
    var mu sync.Mutex
    granted := 0

    for w := 0; w < workers; w++ {
        wg.Add(1)
        go func(n int) {
            defer wg.Done()
            ids, err := a.Reserve(context.Background(), 7, "GA", each, "holder")
            if err != nil {
                if !errors.Is(err, ErrInsufficientInventory) {
                    t.Errorf("worker %d: unexpected error: %v", n, err)
                }
                return
            }
            mu.Lock()
            granted += len(ids)
            mu.Unlock()
        }(w)
    }
    wg.Wait()

    assert.LessOrEqual(t, store.tier.Sold, uint32(capacity))
    assert.Equal(t, granted, int(store.tier.Sold))
    assert.Equal(t, granted, len(store.tickets))
}

func TestReleaseReturnsCapacityOnce(t *testing.T) {
    store := newMemTierStore(5)
    a := newTestAllocator(store)

    ids, err := a.Reserve(context.Background(), 7, "GA", 3, "holder-1")
    require.NoError(t, err)
    require.Equal(t, uint32(3), store.tier.Sold)

    require.NoError(t, a.Release(context.Background(), ids))
    assert.Equal(t, uint32(0), store.tier.Sold)
    for _, id := range ids {
        assert.Equal(t, model.StatusVoided, store.tickets[id].Status)
    }

    // Releasing the same set again must not decrement twice.
    require.NoError(t, a.Release(context.Background(), ids))
    assert.Equal(t, uint32(0), store.tier.Sold)

    require.NoError(t, a.Release(context.Background(), nil))
}

func TestNewTicketIDShape(t *testing.T) {
    seen := make(map[string]bool)
    for i := 0; i < 1000; i++ {
        id, err := newTicketID()
        require.NoError(t, err)
        require.Len(t, id, model.TicketIDLength)
        for _, r := range id {
            assert.Contains(t, model.TicketIDAlphabet, string(r))
        }
        seen[id] = true
    }
    // 36^6 IDs; 1000 draws colliding would indicate a broken generator.
    assert.Greater(t, len(seen), 990)
}
