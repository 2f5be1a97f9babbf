package lifecycle

import (
    "context"
    "sync"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/avetro/ticketline/internal/logger"
    "github.com/avetro/ticketline/internal/model"
    "github.com/avetro/ticketline/internal/repository"
)

// The MySQL repository must satisfy the machine's store contract.
var _ Store = (*repository.TicketRepo)(nil)

// memTicketStore keeps ticket statuses in a map and implements the
// compare-and-swap atomically under a mutex, mirroring the conditional
// UPDATE of the real repository.
type memTicketStore struct {
    mu      sync.Mutex
    tickets map[string]model.TicketStatus
}

func newMemTicketStore(statuses map[string]model.TicketStatus) *memTicketStore {
    return &memTicketStore{tickets: statuses}
}

func (s *memTicketStore) GetTicket(_ context.Context, ticketID string) (*model.Ticket, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    status, ok := s.tickets[ticketID]
    if !ok {
        return nil, repository.ErrTicketNotFound
    }
    return &model.Ticket{TicketID: ticketID, Status: status}, nil
}

func (s *memTicketStore) CompareAndSwapStatus(_ context.Context, ticketID string, from, to model.TicketStatus) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.tickets[ticketID] != from {
        return false, nil
    }
    s.tickets[ticketID] = to
    return true, nil
}

func newTestMachine(store Store) *Machine {
    return NewMachine(store, logger.NewNop())
}

func TestTransitionEdges(t *testing.T) {
    cases := []struct {
        name    string
        from    model.TicketStatus
        action  Action
        want    model.TicketStatus
        wantErr error
    }{
        {"scan active", model.StatusActive, ActionScan, model.StatusScanned, nil},
        {"scan scanned", model.StatusScanned, ActionScan, "", ErrAlreadyScanned},
        {"scan pending", model.StatusPending, ActionScan, "", ErrInvalidTransition},
        {"scan refunded", model.StatusRefunded, ActionScan, "", ErrInvalidTransition},
        {"request refund active", model.StatusActive, ActionRequestRefund, model.StatusRefundRequest, nil},
        {"request refund scanned", model.StatusScanned, ActionRequestRefund, "", ErrInvalidTransition},
        {"approve requested", model.StatusRefundRequest, ActionApproveRefund, model.StatusRefunded, nil},
        {"approve active", model.StatusActive, ActionApproveRefund, "", ErrInvalidTransition},
        {"reject requested", model.StatusRefundRequest, ActionRejectRefund, model.StatusActive, nil},
        {"cancel active", model.StatusActive, ActionCancel, model.StatusCancelled, nil},
        // Pending tickets belong to an in-flight checkout; no caller
        // action may move them.
        {"cancel pending", model.StatusPending, ActionCancel, "", ErrInvalidTransition},
        {"cancel requested", model.StatusRefundRequest, ActionCancel, model.StatusCancelled, nil},
        {"cancel scanned", model.StatusScanned, ActionCancel, "", ErrInvalidTransition},
        {"cancel refunded", model.StatusRefunded, ActionCancel, "", ErrInvalidTransition},
        {"cancel cancelled", model.StatusCancelled, ActionCancel, "", ErrInvalidTransition},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            store := newMemTicketStore(map[string]model.TicketStatus{"AB12CD": tc.from})
            m := newTestMachine(store)

            ticket, err := m.Transition(context.Background(), "AB12CD", tc.action, "actor")
            if tc.wantErr != nil {
                assert.ErrorIs(t, err, tc.wantErr)
                // A rejected transition leaves the ticket untouched.
                assert.Equal(t, tc.from, store.tickets["AB12CD"])
                return
            }
            require.NoError(t, err)
            assert.Equal(t, tc.want, ticket.Status)
            assert.Equal(t, tc.want, store.tickets["AB12CD"])
        })
    }
}

func TestTransitionUnknownAction(t *testing.T) {
    store := newMemTicketStore(map[string]model.TicketStatus{"AB12CD": model.StatusActive})
    m := newTestMachine(store)
    _, err := m.Transition(context.Background(), "AB12CD", Action("upgrade"), "actor")
    assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestTransitionMissingTicket(t *testing.T) {
    m := newTestMachine(newMemTicketStore(map[string]model.TicketStatus{}))
    _, err := m.Transition(context.Background(), "NOPE00", ActionScan, "actor")
    assert.ErrorIs(t, err, repository.ErrTicketNotFound)
}

// TestConcurrentScansExactlyOneWins races many scans of one active
// ticket.  Exactly one succeeds; every other caller gets the
// already-scanned verdict after losing the swap.
func TestConcurrentScansExactlyOneWins(t *testing.T) {
    store := newMemTicketStore(map[string]model.TicketStatus{"AB12CD": model.StatusActive})
    m := newTestMachine(store)

    const callers = 20
    var wg sync.WaitGroup
    var mu sync.Mutex
    wins, replays := 0, 0

    for i := 0; i < callers; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, err := m.Transition(context.Background(), "AB12CD", ActionScan, "gate")
            mu.Lock()
            defer mu.Unlock()
            switch {
            case err == nil:
                wins++
            case assert.ErrorIs(t, err, ErrAlreadyScanned):
                replays++
            }
        }()
    }
    wg.Wait()

    assert.Equal(t, 1, wins)
    assert.Equal(t, callers-1, replays)
    assert.Equal(t, model.StatusScanned, store.tickets["AB12CD"])
}

// A refund approval racing a cancel: one wins, the loser is answered
// from the state the winner left behind.
func TestConcurrentApproveAndCancel(t *testing.T) {
    store := newMemTicketStore(map[string]model.TicketStatus{"AB12CD": model.StatusRefundRequest})
    m := newTestMachine(store)

    var wg sync.WaitGroup
    results := make([]error, 2)
    actions := []Action{ActionApproveRefund, ActionCancel}
    for i, action := range actions {
        wg.Add(1)
        go func(i int, action Action) {
            defer wg.Done()
            _, results[i] = m.Transition(context.Background(), "AB12CD", action, "actor")
        }(i, action)
    }
    wg.Wait()

    okCount := 0
    for _, err := range results {
        if err == nil {
            okCount++
        } else {
            assert.ErrorIs(t, err, ErrInvalidTransition)
        }
    }
    assert.Equal(t, 1, okCount)
    final := store.tickets["AB12CD"]
    assert.Contains(t, []model.TicketStatus{model.StatusRefunded, model.StatusCancelled}, final)
}
