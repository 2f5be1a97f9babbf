package router // package router defines how HTTP routes are registered for the API

import (
    "database/sql"

    "github.com/labstack/echo/v4"

    "github.com/avetro/ticketline/internal/handler"
    "github.com/avetro/ticketline/internal/middleware"
)

// Handlers bundles every handler the router wires up.
type Handlers struct {
    Public    *handler.PublicHandler
    Checkout  *handler.CheckoutHandler
    Lifecycle *handler.LifecycleHandler
    Query     *handler.QueryHandler
    Organiser *handler.OrganiserHandler
}

// Register wires all routes onto the Echo instance.  Public catalog
// reads sit behind the response cache; every mutating route sits behind
// authentication, a role check and the rate limiter.
func Register(e *echo.Echo, h Handlers, db *sql.DB, jwtSecret string, cache, limit echo.MiddlewareFunc) {
    // Liveness endpoint for load balancers and monitoring.
    e.GET("/healthz", handler.Health(db))

    // Unauthenticated catalog browsing.  These are the hottest read
    // paths during an on-sale, hence the cache.
    pub := e.Group("/v1", cache)
    pub.GET("/events", h.Public.ListEvents)
    pub.GET("/events/search", h.Public.SearchEvents)
    pub.GET("/events/:id", h.Public.GetEvent)

    // Everything below requires a valid bearer token.
    auth := e.Group("/v1", middleware.BearerAuth(jwtSecret))

    // Purchasing.  Organisers can buy tickets too.
    buy := auth.Group("", middleware.RequireRole(middleware.RoleCustomer, middleware.RoleOrganiser), limit)
    buy.POST("/checkout", h.Checkout.Checkout)
    buy.POST("/tickets/:id/refund-request", h.Lifecycle.RequestRefund)
    buy.POST("/tickets/:id/cancel", h.Lifecycle.Cancel)

    // Entry scanning at the gate.
    gate := auth.Group("", middleware.RequireRole(middleware.RoleStaff, middleware.RoleOrganiser), limit)
    gate.POST("/tickets/:id/scan", h.Lifecycle.Scan)

    // Refund review, organiser only.
    review := auth.Group("", middleware.RequireRole(middleware.RoleOrganiser), limit)
    review.POST("/tickets/:id/refund-approve", h.Lifecycle.ApproveRefund)
    review.POST("/tickets/:id/refund-reject", h.Lifecycle.RejectRefund)

    // Read side for any authenticated user; per-object authorization
    // happens in the handlers.
    auth.GET("/tickets/:id", h.Query.GetTicket)
    auth.GET("/orders/:number", h.Query.GetOrder)
    auth.GET("/me/tickets", h.Query.MyTickets)
    auth.GET("/me/orders", h.Query.MyOrders)

    // Event management.
    org := auth.Group("/organiser", middleware.RequireRole(middleware.RoleOrganiser))
    org.GET("/events", h.Organiser.ListMyEvents)
    org.POST("/events", h.Organiser.CreateEvent)
    org.PUT("/events/:id", h.Organiser.UpdateEvent)
    org.DELETE("/events/:id", h.Organiser.ArchiveEvent)
    org.PUT("/events/:id/tiers", h.Organiser.UpsertTier)
    org.GET("/events/:id/tickets", h.Organiser.ListEventTickets)
}
