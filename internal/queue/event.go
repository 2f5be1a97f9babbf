// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderConfirmedEvent is published when a checkout commits.  It
// carries enough information for downstream consumers to notify the
// buyer without querying the primary database.  Publication is
// fire-and-forget and sits outside the checkout's transactional
// boundary.
type OrderConfirmedEvent struct {
    OrderNumber      string   `json:"order_number"`
    HolderID         string   `json:"holder_id"`
    BuyerContact     string   `json:"buyer_contact"`
    TicketIDs        []string `json:"ticket_ids"`
    TotalAmountCents uint32   `json:"total_amount_cents"`
    ConfirmedAt      string   `json:"confirmed_at"`
}
