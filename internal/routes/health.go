package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusOK       = "ok"
	statusDisabled = "disabled"
)

// RegisterHealthRoutes adds the liveness probe and the Prometheus scrape endpoint.
// Backends that are not configured report "disabled" and do not fail the probe.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		checks := fiber.Map{
			"postgres": statusDisabled,
			"redis":    statusDisabled,
			"nats":     statusDisabled,
		}
		healthy := true
		if d.DB != nil {
			checks["postgres"] = statusOK
			if err := d.DB.Ping(ctx); err != nil {
				checks["postgres"] = err.Error()
				healthy = false
			}
		}
		if d.Cache != nil {
			checks["redis"] = statusOK
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}
		// NATS only carries notifications, so a lost connection degrades
		// rather than fails the probe.
		if d.NATS != nil {
			checks["nats"] = d.NATS.Status().String()
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
