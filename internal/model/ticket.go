package model

import "time"

// TicketStatus enumerates the lifecycle states of a ticket.  Legal
// transitions are enforced by the lifecycle package; repositories only
// ever move a ticket between states with a compare-and-swap on the
// current value.
type TicketStatus string

const (
    // StatusPending marks a ticket minted by a reservation whose
    // payment has not completed yet.  Pending tickets count against
    // tier capacity.
    StatusPending TicketStatus = "PENDING"
    // StatusActive marks a paid, valid ticket.
    StatusActive TicketStatus = "ACTIVE"
    // StatusScanned marks a ticket consumed at entry.  Terminal.
    StatusScanned TicketStatus = "SCANNED"
    // StatusCancelled marks a ticket cancelled by its holder or an
    // organiser.  Terminal.
    StatusCancelled TicketStatus = "CANCELLED"
    // StatusRefundRequest marks a ticket whose holder asked for a
    // refund and is awaiting review.
    StatusRefundRequest TicketStatus = "REFUND_REQUEST"
    // StatusRefunded marks an approved refund.  Terminal.
    StatusRefunded TicketStatus = "REFUNDED"
    // StatusVoided marks a pending ticket whose reservation was rolled
    // back (payment failure or timeout).  Voided tickets no longer
    // count against tier capacity.  Terminal.
    StatusVoided TicketStatus = "VOIDED"
)

// TicketIDLength is the fixed length of a ticket identifier.
const TicketIDLength = 6

// TicketIDAlphabet is the 36-symbol alphabet ticket identifiers are
// drawn from.  With six symbols the space is 36^6, large enough that
// collisions are rare and handled by a bounded regeneration loop
// against the primary-key constraint.
const TicketIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Ticket is a single admission right for one event tier.  Tickets are
// created PENDING by the inventory allocator and promoted to ACTIVE by
// the order coordinator on payment success.  They are never deleted;
// cancelled and refunded tickets are retained for audit.
//
// Fields:
//  TicketID        – six character base-36 identifier, globally unique,
//                    immutable and never recycled.
//  EventID         – event the ticket admits to.
//  TierName        – price tier the ticket was sold from.
//  HolderID        – opaque identifier of the purchasing user.
//  OrderNumber     – order the ticket was purchased under; empty until
//                    the order coordinator promotes the ticket, then
//                    immutable.
//  LocationDetails – opaque seat or section payload, uninterpreted.
//  Status          – current lifecycle state.
//  CreatedAt       – minting timestamp.
//  UpdatedAt       – last status change.
type Ticket struct {
    TicketID        string       // tickets.ticket_id
    EventID         uint64       // tickets.event_id
    TierName        string       // tickets.tier_name
    HolderID        string       // tickets.holder_id
    OrderNumber     string       // tickets.order_number (empty when NULL)
    LocationDetails string       // tickets.location_details
    Status          TicketStatus // tickets.status
    CreatedAt       time.Time    // tickets.created_at
    UpdatedAt       time.Time    // tickets.updated_at
}

// Terminal reports whether the status admits no further transitions.
func (s TicketStatus) Terminal() bool {
    switch s {
    case StatusScanned, StatusCancelled, StatusRefunded, StatusVoided:
        return true
    }
    return false
}
