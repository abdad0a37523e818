package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/remittance/internal/logging"
	"github.com/congo-pay/remittance/internal/metrics"
	"github.com/congo-pay/remittance/internal/notification"
	"github.com/congo-pay/remittance/internal/wallet"
)

var (
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("transfer amount must be positive")

	// ErrTransferFailed wraps every provider failure other than an expired credential.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrExpiredCredential is wallet.ErrExpiredCredential, exported here for callers
	// that only deal with transfers.
	ErrExpiredCredential = wallet.ErrExpiredCredential
)

// Kind labels what a transfer is for.
type Kind string

const (
	KindContribution Kind = "contribution"
	KindFee          Kind = "fee"
	KindDirect       Kind = "direct"
)

// Transaction is a single outbound movement of funds.
type Transaction struct {
	Address string
	Amount  decimal.Decimal
	Message string
	Kind    Kind
}

// Provider is the two-phase transaction API of the custodial provider.
type Provider interface {
	CreateTransaction(ctx context.Context, token, cardID, destination string, amount decimal.Decimal, message string) (string, error)
	CommitTransaction(ctx context.Context, token, cardID, transactionID, message string) error
}

// Disconnector invalidates the wallet after the provider rejects its credential.
type Disconnector interface {
	DisconnectWithReason(ctx context.Context, code string) error
}

// Executor moves funds out of the linked wallet.
type Executor struct {
	store        wallet.Store
	provider     Provider
	disconnector Disconnector
	timeout      time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewExecutor builds a transfer executor.
func NewExecutor(store wallet.Store, provider Provider, disconnector Disconnector, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{
		store:        store,
		provider:     provider,
		disconnector: disconnector,
		timeout:      timeout,
		logger:       logging.Component(logger, "transfer"),
		metrics:      m,
	}
}

// Transfer creates and commits a provider transaction and returns its id.
func (e *Executor) Transfer(ctx context.Context, tx Transaction) (string, error) {
	if !tx.Amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	if tx.Address == "" {
		return "", fmt.Errorf("%w: missing destination", ErrTransferFailed)
	}
	if tx.Kind == "" {
		tx.Kind = KindDirect
	}

	record, err := e.store.Get(ctx)
	if err != nil {
		return "", err
	}
	if record.Token == "" || record.Address == "" {
		return "", fmt.Errorf("%w: no credential for transfer", wallet.ErrNotVerified)
	}

	start := time.Now()
	id, err := e.execute(ctx, record, tx)
	outcome := "success"
	switch {
	case errors.Is(err, wallet.ErrExpiredCredential):
		outcome = "expired"
	case err != nil:
		outcome = "failure"
	}
	e.metrics.RecordTransfer(string(tx.Kind), outcome, time.Since(start))

	if errors.Is(err, wallet.ErrExpiredCredential) {
		e.logger.Warn("transfer rejected: credential expired", "kind", tx.Kind)
		if derr := e.disconnector.DisconnectWithReason(ctx, notification.CodeWalletDisconnected); derr != nil {
			e.logger.Error("disconnector.DisconnectWithReason", "error", derr)
		}
		return "", ErrExpiredCredential
	}
	if err != nil {
		e.logger.Error("transfer failed",
			"kind", tx.Kind,
			"amount", tx.Amount.String(),
			"destination", wallet.RedactAddress(tx.Address),
			"error", err,
		)
		return "", fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	e.logger.Info("transfer committed",
		"kind", tx.Kind,
		"amount", tx.Amount.String(),
		"destination", wallet.RedactAddress(tx.Address),
		"transaction_id", id,
	)
	return id, nil
}

func (e *Executor) execute(ctx context.Context, record *wallet.Record, tx Transaction) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	id, err := e.provider.CreateTransaction(ctx, record.Token, record.Address, tx.Address, tx.Amount, tx.Message)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	if err := e.provider.CommitTransaction(ctx, record.Token, record.Address, id, tx.Message); err != nil {
		return "", fmt.Errorf("commit %s: %w", id, err)
	}
	return id, nil
}
