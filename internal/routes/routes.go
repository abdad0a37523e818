package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/remittance/internal/config"
	"github.com/congo-pay/remittance/internal/contribution"
	"github.com/congo-pay/remittance/internal/fee"
	"github.com/congo-pay/remittance/internal/logging"
	"github.com/congo-pay/remittance/internal/middleware"
	"github.com/congo-pay/remittance/internal/wallet"
)

// Deps aggregates what the HTTP surface needs: backends for health checks
// and idempotency, and the engine handlers.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	NATS     *nats.Conn
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer

	Wallet        *wallet.Handler
	Fees          *fee.Handler
	Contributions *contribution.Handler
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Wallet == nil || d.Contributions == nil {
		return fmt.Errorf("wallet and contribution handlers are required")
	}

	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	RegisterWalletRoutes(api, d.Wallet, d.Fees)
	RegisterContributionRoutes(api, d.Contributions, idem)

	return nil
}
