// Package provider is the HTTP adapter for the custodial wallet API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/congo-pay/remittance/internal/logging"
	"github.com/congo-pay/remittance/internal/wallet"
)

// Config describes how to reach the provider.
type Config struct {
	Name         string
	APIURL       string
	ClientID     string
	ClientSecret string
	Currency     string
	CardLabel    string
	Timeout      time.Duration
}

// APIError is a non-2xx provider response other than 401.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: provider returned %d: %s", e.Op, e.Status, e.Body)
}

// Unwrap lets callers match every API error against wallet.ErrProvider.
func (e *APIError) Unwrap() error {
	return wallet.ErrProvider
}

// Client talks to the provider REST API. Every call runs through a circuit
// breaker that only counts transport failures and 5xx responses.
type Client struct {
	cfg     Config
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// New builds a provider client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CardLabel == "" {
		cfg.CardLabel = "Congo Remit"
	}
	logger = logging.Component(logger, "provider")

	httpClient := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "provider-" + cfg.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, wallet.ErrExpiredCredential)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{cfg: cfg, http: httpClient, breaker: breaker, logger: logger}
}

// do runs one request and classifies its outcome.
func (c *Client) do(op string, send func() (*resty.Response, error)) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := send()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", wallet.ErrProvider, op, err)
		}
		switch {
		case resp.StatusCode() == http.StatusUnauthorized:
			return nil, fmt.Errorf("%s: %w", op, wallet.ErrExpiredCredential)
		case resp.IsError():
			return nil, &APIError{Op: op, Status: resp.StatusCode(), Body: resp.String()}
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("provider request rejected by circuit breaker", "op", op)
		return fmt.Errorf("%w: %s: %w", wallet.ErrProvider, op, err)
	}
	return err
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}
