package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/viktorkud/seatwise/internal/config"
	"github.com/viktorkud/seatwise/internal/fulfillment"
	"github.com/viktorkud/seatwise/internal/gateway"
	"github.com/viktorkud/seatwise/internal/postgres"
	redisx "github.com/viktorkud/seatwise/internal/redis"
	postgresrepo "github.com/viktorkud/seatwise/internal/repository/postgres"
	redisrepo "github.com/viktorkud/seatwise/internal/repository/redis"
	"github.com/viktorkud/seatwise/internal/service"
	"github.com/viktorkud/seatwise/internal/service/reservation"
	"github.com/viktorkud/seatwise/internal/sweeper"
	httpgin "github.com/viktorkud/seatwise/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	sweeper    *sweeper.Sweeper
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisx.NewEventsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "seatwise:v1:rl", 10, time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	stripeGw, err := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize stripe gateway: %w", err)
	}

	mailer, err := fulfillment.NewSMTPMailer(fulfillment.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		FromEmail: cfg.SMTP.FromEmail,
		FromName:  cfg.SMTP.FromName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	renderer := fulfillment.NewTicketRenderer(cfg.Tickets.BaseURL)

	services := service.NewServices(service.Deps{
		Store:       store,
		Cache:       cache,
		PubSub:      pubsub,
		Limiter:     limiter,
		Gateway:     stripeGw,
		Renderer:    renderer,
		Mailer:      mailer,
		Logger:      logger,
		Reservation: reservation.Config{HoldTTL: cfg.Reservation.HoldTTL},
	})

	router := httpgin.NewRouter(services, stripeGw, idempotencyStore, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		sweeper: sweeper.New(services.Reservation, cfg.Sweeper.Interval, logger),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Expired-hold sweeper
	g.Go(func() error {
		if err := a.sweeper.Run(gCtx); err != nil && err != context.Canceled {
			return fmt.Errorf("sweeper stopped: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
