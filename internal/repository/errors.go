// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// allocator, coordinator and handlers to distinguish between different
// failure scenarios without inspecting driver-specific errors.
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because
// of conflicting state, such as lowering a tier's capacity below the
// number of tickets already sold. Handlers should translate this into
// an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrEventNotFound is returned when the referenced event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrTierNotFound is returned when an event has no tier with the
// requested name.
var ErrTierNotFound = errors.New("price tier not found")

// ErrTicketNotFound is returned when the referenced ticket does not exist.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrOrderNotFound is returned when the referenced order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrCapacityExceeded is returned by ReserveTier when the requested
// quantity does not fit into the tier's remaining capacity. The
// conditional sold-counter update touched zero rows, so nothing was
// reserved.
var ErrCapacityExceeded = errors.New("tier capacity exceeded")

// ErrDuplicateTicketID is returned when a minted ticket identifier
// collided with an existing row. The allocator regenerates identifiers
// and retries on this error.
var ErrDuplicateTicketID = errors.New("duplicate ticket id")

// ErrDuplicateOrderNumber is returned when an order number collided
// with an existing order. The coordinator regenerates the number and
// retries on this error.
var ErrDuplicateOrderNumber = errors.New("duplicate order number")

// ErrDuplicateTierName is returned when creating or renaming a tier
// would violate the per-event case-insensitive tier name uniqueness.
var ErrDuplicateTierName = errors.New("duplicate tier name")

// mysqlDuplicateEntry is the MySQL error number for a unique or
// primary key violation.
const mysqlDuplicateEntry = 1062

// isDuplicateEntry reports whether err is a MySQL duplicate-key error.
func isDuplicateEntry(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
