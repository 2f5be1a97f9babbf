package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/avetro/ticketline/internal/model"
)

// OrderRepo provides data access to the orders table.  Order numbers
// are unique-constrained in storage; the coordinator relies on
// ErrDuplicateOrderNumber to regenerate and retry on the (practically
// impossible but checked) collision.
type OrderRepo struct {
    db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// Create inserts a new order record.  The tickets themselves reference
// the order via their order_number column, stamped during promotion.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order) error {
    const q = `INSERT INTO orders (order_number, holder_id, buyer_contact, total_amount_cents)
               VALUES (?, ?, ?, ?)`
    if _, err := r.db.ExecContext(ctx, q, o.OrderNumber, o.HolderID, o.BuyerContact, o.TotalAmountCents); err != nil {
        if isDuplicateEntry(err) {
            return ErrDuplicateOrderNumber
        }
        return err
    }
    return nil
}

// Delete removes an order record.  Used only on the rollback path of a
// failed checkout, before any ticket was stamped with the number.
func (r *OrderRepo) Delete(ctx context.Context, orderNumber string) error {
    _, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE order_number = ?`, orderNumber)
    return err
}

// GetByNumber returns an order together with the IDs of its tickets.
// It returns ErrOrderNotFound when no such order exists.
func (r *OrderRepo) GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
    const q = `SELECT order_number, holder_id, buyer_contact, total_amount_cents, created_at
               FROM orders WHERE order_number = ?`
    var o model.Order
    err := r.db.QueryRowContext(ctx, q, orderNumber).Scan(
        &o.OrderNumber, &o.HolderID, &o.BuyerContact, &o.TotalAmountCents, &o.CreatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrOrderNotFound
        }
        return nil, err
    }
    const tq = `SELECT ticket_id FROM tickets WHERE order_number = ? ORDER BY ticket_id`
    rows, err := r.db.QueryContext(ctx, tq, orderNumber)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    o.TicketIDs = make([]string, 0)
    for rows.Next() {
        var id string
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        o.TicketIDs = append(o.TicketIDs, id)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return &o, nil
}

// ListByHolder returns all orders placed by the given holder, newest
// first, without ticket IDs.
func (r *OrderRepo) ListByHolder(ctx context.Context, holderID string) ([]model.Order, error) {
    const q = `SELECT order_number, holder_id, buyer_contact, total_amount_cents, created_at
               FROM orders WHERE holder_id = ? ORDER BY created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, holderID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    orders := make([]model.Order, 0)
    for rows.Next() {
        var o model.Order
        if err := rows.Scan(&o.OrderNumber, &o.HolderID, &o.BuyerContact, &o.TotalAmountCents, &o.CreatedAt); err != nil {
            return nil, err
        }
        orders = append(orders, o)
    }
    return orders, rows.Err()
}
