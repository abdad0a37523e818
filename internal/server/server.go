package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/remittance/internal/audit"
	"github.com/congo-pay/remittance/internal/config"
	"github.com/congo-pay/remittance/internal/contribution"
	"github.com/congo-pay/remittance/internal/fee"
	"github.com/congo-pay/remittance/internal/ledger"
	"github.com/congo-pay/remittance/internal/metrics"
	"github.com/congo-pay/remittance/internal/notification"
	"github.com/congo-pay/remittance/internal/provider"
	"github.com/congo-pay/remittance/internal/routes"
	"github.com/congo-pay/remittance/internal/transfer"
	"github.com/congo-pay/remittance/internal/wallet"
)

// Backends are the optional infrastructure connections. A nil field selects
// the in-memory implementation, which config only allows in the dev profile.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
	NATS  *nats.Conn
}

// Server wraps the Fiber application and the long-lived engine components.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	logger    *slog.Logger
	wallets   *wallet.Service
	scheduler *fee.Scheduler
}

// New builds the engine and the HTTP surface on top of it. registry receives
// the engine metrics and is served on /metrics.
func New(ctx context.Context, cfg config.Config, b Backends, registry *prometheus.Registry, logger *slog.Logger) (*Server, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := metrics.NewMetrics(registry)

	var store wallet.Store
	if b.Cache != nil {
		store = wallet.NewRedisStore(b.Cache, cfg.Provider.Name)
	} else {
		store = wallet.NewMemoryStore()
	}

	var ledgerBackend ledger.Ledger
	var events audit.Log
	if b.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(b.DB)
		events = audit.NewPostgresLog(b.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		events = audit.NewMemoryLog()
	}

	notifiers := notification.Fanout{notification.NewLoggerNotifier(logger)}
	if b.NATS != nil {
		publisher, err := notification.NewNATSNotifier(ctx, b.NATS, cfg.Provider.Name, logger)
		if err != nil {
			return nil, fmt.Errorf("build nats notifier: %w", err)
		}
		notifiers = append(notifiers, publisher)
	}

	client := provider.New(provider.Config{
		Name:         cfg.Provider.Name,
		APIURL:       cfg.Provider.APIURL,
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		Currency:     cfg.Provider.Currency,
		CardLabel:    cfg.PlatformName,
		Timeout:      cfg.Provider.Timeout,
	}, logger)

	wallets := wallet.NewService(wallet.Config{
		ProviderName: cfg.Provider.Name,
		Links:        wallet.LinkConfig{WebURL: cfg.Provider.WebURL, ClientID: cfg.Provider.ClientID},
		Timeout:      cfg.Provider.Timeout,
	}, store, client, notifiers, events, logger, m)

	executor := transfer.NewExecutor(store, client, wallets, cfg.Provider.Timeout, logger, m)

	scheduler := fee.NewScheduler(fee.Config{
		Address:     cfg.Fee.Address,
		Message:     cfg.FeeMessage(),
		BaseDelay:   cfg.Fee.BaseDelay,
		Jitter:      cfg.Fee.Jitter,
		MaxAttempts: cfg.Fee.MaxAttempts,
	}, store, executor, logger, m)

	contributions := contribution.NewService(wallets, executor, scheduler, ledgerBackend, cfg.Fee.Rate, logger, m)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	err := routes.Setup(app, routes.Deps{
		Cfg:           cfg,
		DB:            b.DB,
		Cache:         b.Cache,
		NATS:          b.NATS,
		Logger:        logger,
		Gatherer:      registry,
		Wallet:        wallet.NewHandler(wallets),
		Fees:          fee.NewHandler(scheduler),
		Contributions: contribution.NewHandler(contributions),
	})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, logger: logger, wallets: wallets, scheduler: scheduler}, nil
}

// Start arms the fee timers persisted by a previous run.
func (s *Server) Start(ctx context.Context) error {
	if err := s.scheduler.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize fee scheduler: %w", err)
	}
	return nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown silences notifications, cancels fee timers and then drains HTTP.
// Fees left uncollected stay persisted for the next Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wallets.BeginShutdown()
	s.scheduler.Stop()
	return s.app.ShutdownWithContext(ctx)
}
