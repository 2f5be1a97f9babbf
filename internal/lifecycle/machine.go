// Package lifecycle enforces the legal status transitions of a single
// ticket.  Every transition is a compare-and-swap on the current
// status, so concurrent requests for the same ticket resolve to
// exactly one winner; the losers are answered from a fresh read.
package lifecycle

import (
    "context"
    "errors"

    "github.com/avetro/ticketline/internal/logger"
    "github.com/avetro/ticketline/internal/model"
)

// ErrInvalidTransition is returned when the requested action has no
// edge from the ticket's current status.  The ticket is unchanged.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrAlreadyScanned is returned for a scan of a ticket that was
// already scanned.  Distinct from ErrInvalidTransition so gate
// software can tell a replayed ticket from a misused one.
var ErrAlreadyScanned = errors.New("ticket already scanned")

// ErrUnknownAction is returned for an action the machine does not know.
var ErrUnknownAction = errors.New("unknown action")

// Action names a requested lifecycle transition.
type Action string

const (
    // ActionScan consumes an active ticket at entry.  Valid once.
    ActionScan Action = "scan"
    // ActionRequestRefund moves an active ticket into refund review.
    ActionRequestRefund Action = "request_refund"
    // ActionApproveRefund finalises a requested refund.
    ActionApproveRefund Action = "approve_refund"
    // ActionRejectRefund returns a requested refund to active.
    ActionRejectRefund Action = "reject_refund"
    // ActionCancel cancels an active or refund-requested ticket.
    ActionCancel Action = "cancel"
)

// transitions is the edge table: for each action, the statuses it may
// start from and the status it lands on.  No action starts from
// PENDING: a pending ticket belongs to an in-flight checkout and only
// the order coordinator (promotion to ACTIVE) or the allocator
// (release to VOIDED) may move it.  Letting callers touch pending
// tickets would let a holder break a checkout between its payment and
// its promotion.
var transitions = map[Action]map[model.TicketStatus]model.TicketStatus{
    ActionScan: {
        model.StatusActive: model.StatusScanned,
    },
    ActionRequestRefund: {
        model.StatusActive: model.StatusRefundRequest,
    },
    ActionApproveRefund: {
        model.StatusRefundRequest: model.StatusRefunded,
    },
    ActionRejectRefund: {
        model.StatusRefundRequest: model.StatusActive,
    },
    ActionCancel: {
        model.StatusActive:        model.StatusCancelled,
        model.StatusRefundRequest: model.StatusCancelled,
    },
}

// maxSwapAttempts bounds the internal retry when a compare-and-swap
// loses a race.  Each retry re-reads the ticket; persistent contention
// surfaces as the terminal classification of the fresh status.
const maxSwapAttempts = 3

// Store is the per-ticket persistence the machine needs.  Implemented
// by repository.TicketRepo.
type Store interface {
    GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error)
    CompareAndSwapStatus(ctx context.Context, ticketID string, from, to model.TicketStatus) (bool, error)
}

// Machine applies lifecycle actions to tickets.  Safe for concurrent use.
type Machine struct {
    store Store
    log   logger.Logger
}

// NewMachine constructs a Machine.  The store must be non-nil.
func NewMachine(store Store, log logger.Logger) *Machine {
    if store == nil {
        panic("nil store passed to NewMachine")
    }
    return &Machine{store: store, log: log}
}

// Transition applies the action to the ticket and returns the updated
// ticket.  The actor identifier is recorded in the log line only;
// authorization is the caller's concern.  Concurrent calls against the
// same ticket resolve to exactly one success per legal edge; the rest
// receive ErrAlreadyScanned or ErrInvalidTransition based on the state
// the winner left behind.
func (m *Machine) Transition(ctx context.Context, ticketID string, action Action, actor string) (*model.Ticket, error) {
    edges, ok := transitions[action]
    if !ok {
        return nil, ErrUnknownAction
    }
    for attempt := 0; attempt < maxSwapAttempts; attempt++ {
        ticket, err := m.store.GetTicket(ctx, ticketID)
        if err != nil {
            return nil, err
        }
        target, ok := edges[ticket.Status]
        if !ok {
            return nil, m.classify(action, ticket.Status)
        }
        swapped, err := m.store.CompareAndSwapStatus(ctx, ticketID, ticket.Status, target)
        if err != nil {
            return nil, err
        }
        if swapped {
            m.log.Info("ticket transition",
                "ticket_id", ticketID, "action", string(action),
                "from", string(ticket.Status), "to", string(target), "actor", actor)
            ticket.Status = target
            return ticket, nil
        }
        // Lost the race: someone else moved the ticket first.  Re-read
        // and try again; the fresh status usually makes the request
        // illegal and the loop exits through classify.
    }
    ticket, err := m.store.GetTicket(ctx, ticketID)
    if err != nil {
        return nil, err
    }
    if _, ok := edges[ticket.Status]; ok {
        // Still legal but persistently contended; report the conflict
        // as an invalid transition rather than looping forever.
        return nil, ErrInvalidTransition
    }
    return nil, m.classify(action, ticket.Status)
}

// classify maps an illegal (action, status) pair to the caller-facing
// error.
func (m *Machine) classify(action Action, status model.TicketStatus) error {
    if action == ActionScan && status == model.StatusScanned {
        return ErrAlreadyScanned
    }
    return ErrInvalidTransition
}
