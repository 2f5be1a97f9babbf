package main // Entry point package

import (
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"

    "github.com/avetro/ticketline/internal/config"
    "github.com/avetro/ticketline/internal/database"
    "github.com/avetro/ticketline/internal/handler"
    "github.com/avetro/ticketline/internal/inventory"
    "github.com/avetro/ticketline/internal/lifecycle"
    "github.com/avetro/ticketline/internal/logger"
    "github.com/avetro/ticketline/internal/mailer"
    "github.com/avetro/ticketline/internal/middleware"
    "github.com/avetro/ticketline/internal/order"
    "github.com/avetro/ticketline/internal/payment"
    "github.com/avetro/ticketline/internal/queue"
    "github.com/avetro/ticketline/internal/repository"
    "github.com/avetro/ticketline/internal/router"
    queuepublisher "github.com/avetro/ticketline/internal/service"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg.LogLevel, cfg.LogFormat)
    defer func() { _ = log.Sync() }()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatal("connecting to database", "error", err)
    }
    defer func() { _ = db.Close() }()

    // Redis backs the response cache and the rate limiter.  Both
    // degrade to pass-through when it is absent.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Warn("redis unavailable, cache and rate limiting disabled")
    }

    events := repository.NewEventRepo(db)
    tickets := repository.NewTicketRepo(db)
    orders := repository.NewOrderRepo(db)

    allocator := inventory.NewAllocator(events, tickets, log)
    machine := lifecycle.NewMachine(tickets, log)
    gateway := payment.NewStripeGateway(cfg.StripeAPIKey)
    publisher := queuepublisher.NewPublisher(log)
    coordinator := order.NewCoordinator(
        allocator, events, orders, tickets,
        gateway, publisher, cfg.Currency, cfg.PaymentTimeout, log,
    )

    // The consumer turns published order confirmations into emails.
    // Without a mailer key there is nothing to deliver, so it stays off.
    if m := mailer.New(cfg.MailerAPIKey, cfg.MailerFromName, cfg.MailerFromEmail, cfg.MailerTemplateID); m != nil {
        go func() {
            if err := queue.StartOrderConsumer(m, log); err != nil {
                log.Error("order consumer stopped", "error", err)
            }
        }()
    }

    e := echo.New()
    e.HideBanner = true
    e.Use(echomw.Recover())
    e.Use(echomw.RequestID())

    cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
    limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

    router.Register(e, router.Handlers{
        Public:    handler.NewPublicHandler(events),
        Checkout:  handler.NewCheckoutHandler(coordinator),
        Lifecycle: handler.NewLifecycleHandler(machine, tickets, events),
        Query:     handler.NewQueryHandler(tickets, orders, events),
        Organiser: handler.NewOrganiserHandler(events, tickets),
    }, db, cfg.JWTSecret, cache, limit)

    addr := ":" + cfg.Port
    log.Info("listening", "addr", addr, "env", cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal("server stopped", "error", err)
    }
}
