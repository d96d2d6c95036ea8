package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/credential"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/gateway"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/router"
	"github.com/iliyamo/event-ticketing/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		// no logger yet; the bootstrap one writes to stderr
		logger.InitializeZapLogger(logger.ZapConfig{}).Fatalf(ctx, "config: %v", err)
	}
	mode := "development"
	if cfg.Production() {
		mode = "production"
	}
	log := logger.InitializeZapLogger(logger.ZapConfig{Level: cfg.LogLevel, Mode: mode, Encoding: cfg.LogEncoding})
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf(ctx, "database: %v", err)
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf(ctx, "migrate: %v", err)
		}
		log.Infof(ctx, "schema migrated")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warnf(ctx, "redis unreachable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	gw := newGateway(cfg, log)
	creds, err := credential.NewIssuer([]byte(cfg.CredentialKey), credential.WithSize(cfg.QRSize))
	if err != nil {
		log.Fatalf(ctx, "credential issuer: %v", err)
	}

	publisher := queue.NewPublisher(cfg.RabbitURL, log)
	defer publisher.Close()

	events := repository.NewEventRepo(db)
	reservations := repository.NewReservationRepo(db)
	rsvps := repository.NewRSVPRepo(db)
	tickets := repository.NewTicketRepo(db)
	txm := database.NewTxManager(db)

	opts := []service.Option{
		service.WithPublisher(publisher),
		service.WithGatewayTimeout(cfg.GatewayTimeout),
		service.WithCurrency(cfg.Currency),
		service.WithAdmissionWindow(cfg.AdmissionWindow),
		service.WithMaxRSVPQuantity(cfg.RSVPMaxQuantity),
		service.WithCredentialVerifier(creds),
		service.WithIssueConcurrency(cfg.IssueConcurrency),
	}
	issuer := service.NewTicketIssuer(tickets, creds, log, opts...)
	payments := service.NewPaymentService(events, reservations, tickets, txm, gw, issuer, log, opts...)
	rsvpSvc := service.NewRSVPService(events, rsvps, txm, log, opts...)
	validator := service.NewTicketValidator(tickets, events, txm, log, opts...)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))

	reservationH := handler.NewReservationHandler(payments, log)
	rsvpH := handler.NewRSVPHandler(rsvpSvc, log)
	ticketH := handler.NewTicketHandler(validator, log)
	eventH := handler.NewEventHandler(events, log)

	router.RegisterRoutes(e, readinessChecks(db, rdb))
	router.RegisterPublic(e, eventH, rsvpH, cfg.JWTSecret, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterCustomer(e, reservationH, ticketH, cfg.JWTSecret)
	router.RegisterStaff(e, ticketH, rsvpH, cfg.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof(gctx, "listening on %s (env=%s, gateway=%s)", srv.Addr, cfg.Env, cfg.GatewayProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.AuditConsumerEnabled {
		g.Go(func() error {
			err := queue.StartAuditConsumer(gctx, cfg.RabbitURL, cfg.AuditLogDir, log)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		log.Errorf(ctx, "server stopped: %v", err)
		return
	}
	log.Infof(ctx, "server stopped")
}

func newGateway(cfg config.Config, log logger.Logger) gateway.Gateway {
	if cfg.GatewayProvider == "stripe" {
		return gateway.NewStripe(cfg.StripeSecretKey, cfg.GatewayTimeout)
	}
	log.Warnf(context.Background(), "using the simulated payment gateway; intents authorize immediately")
	return gateway.NewSimulated(gateway.WithAutoAuthorize())
}

func readinessChecks(db *sql.DB, rdb *redis.Client) map[string]handler.Check {
	checks := map[string]handler.Check{"mysql": db.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}
