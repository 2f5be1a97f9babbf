package model

import "time"

// Order groups the tickets purchased in a single checkout under one
// order number and one payment action.  Either every ticket in the
// order reaches ACTIVE or the whole order is rolled back; readers
// never observe a partially committed order.
//
// Fields:
//  OrderNumber      – unique identifier shared by all tickets in the
//                     order; high-entropy and collision-checked by a
//                     unique constraint in storage.
//  HolderID         – opaque identifier of the buyer.
//  BuyerContact     – contact detail used for confirmation messages.
//  TotalAmountCents – sum of the unit prices of all tickets.
//  CreatedAt        – when the checkout committed.
type Order struct {
    OrderNumber      string    // orders.order_number
    HolderID         string    // orders.holder_id
    BuyerContact     string    // orders.buyer_contact
    TotalAmountCents uint32    // orders.total_amount_cents
    CreatedAt        time.Time // orders.created_at

    TicketIDs []string // tickets in this order, loaded on demand
}
