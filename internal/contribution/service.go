package contribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/remittance/internal/ledger"
	"github.com/congo-pay/remittance/internal/logging"
	"github.com/congo-pay/remittance/internal/metrics"
	"github.com/congo-pay/remittance/internal/transfer"
	"github.com/congo-pay/remittance/internal/wallet"
)

var (
	// ErrMissingRecipient indicates the contribution has nowhere to go.
	ErrMissingRecipient = errors.New("contribution recipient is missing")

	// ErrInvalidRequest indicates a missing id or a non-positive amount.
	ErrInvalidRequest = errors.New("invalid contribution request")

	// ErrFeeNotRecorded indicates the funds moved but the fee could not be
	// scheduled for collection.
	ErrFeeNotRecorded = errors.New("contribution fee not recorded")
)

// Gate refuses operations unless the wallet is verified.
type Gate interface {
	RequireVerified(ctx context.Context) error
}

// Transferer executes provider transfers.
type Transferer interface {
	Transfer(ctx context.Context, tx transfer.Transaction) (string, error)
}

// FeeRegistrar takes ownership of an uncollected fee.
type FeeRegistrar interface {
	Register(ctx context.Context, contributionID string, amount decimal.Decimal) error
}

// Recipient identifies who receives a contribution.
type Recipient struct {
	Key     string
	Address string
}

// Request is a single contribution.
type Request struct {
	ContributionID string
	Recipient      *Recipient
	Amount         decimal.Decimal
}

// Result is the outcome of a contribution.
type Result struct {
	TransactionID string
	Fee           decimal.Decimal
	Reconciled    decimal.Decimal
}

// Service splits contributions into the recipient's share and the platform fee.
type Service struct {
	gate      Gate
	transfers Transferer
	fees      FeeRegistrar
	ledger    ledger.Ledger
	rate      decimal.Decimal
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewService constructs a contribution service.
func NewService(gate Gate, transfers Transferer, fees FeeRegistrar, ledger ledger.Ledger, rate decimal.Decimal, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		gate:      gate,
		transfers: transfers,
		fees:      fees,
		ledger:    ledger,
		rate:      rate,
		logger:    logging.Component(logger, "contribution"),
		metrics:   m,
	}
}

// SplitFee computes fee = amount*(1+rate) - amount and reconciled = amount - fee.
func SplitFee(amount, rate decimal.Decimal) (fee, reconciled decimal.Decimal) {
	fee = amount.Mul(decimal.NewFromInt(1).Add(rate)).Sub(amount)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	if fee.GreaterThan(amount) {
		fee = amount
	}
	return fee, amount.Sub(fee)
}

// Contribute sends the reconciled amount to the recipient and hands the fee to
// the scheduler.
func (s *Service) Contribute(ctx context.Context, req Request) (Result, error) {
	if req.Recipient == nil || req.Recipient.Address == "" {
		s.metrics.RecordContribution("rejected")
		return Result{}, ErrMissingRecipient
	}
	if req.ContributionID == "" || !req.Amount.IsPositive() {
		s.metrics.RecordContribution("rejected")
		return Result{}, fmt.Errorf("%w: id=%q amount=%s", ErrInvalidRequest, req.ContributionID, req.Amount)
	}
	if err := s.gate.RequireVerified(ctx); err != nil {
		s.metrics.RecordContribution("rejected")
		return Result{}, err
	}

	fee, reconciled := SplitFee(req.Amount, s.rate)
	logger := s.logger.With("contribution_id", req.ContributionID)

	txID, err := s.transfers.Transfer(ctx, transfer.Transaction{
		Address: req.Recipient.Address,
		Amount:  reconciled,
		Kind:    transfer.KindContribution,
	})
	if err != nil {
		s.metrics.RecordContribution("failed")
		return Result{}, fmt.Errorf("contribution %s: %w", req.ContributionID, err)
	}
	result := Result{TransactionID: txID, Fee: fee, Reconciled: reconciled}

	var errs []error
	if fee.IsPositive() {
		if err := s.fees.Register(ctx, req.ContributionID, fee); err != nil {
			logger.Error("fees.Register", "fee", fee.String(), "error", err)
			errs = append(errs, fmt.Errorf("%w: %w", ErrFeeNotRecorded, err))
		}
	}

	if req.Recipient.Key != "" {
		err := s.ledger.UpdateContributedAmount(ctx, req.ContributionID, req.Recipient.Key, req.Amount)
		if err != nil && !errors.Is(err, ledger.ErrDuplicateContribution) {
			logger.Error("ledger.UpdateContributedAmount", "recipient", req.Recipient.Key, "error", err)
			errs = append(errs, fmt.Errorf("update contributed amount: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.metrics.RecordContribution("partial")
		return result, err
	}

	s.metrics.RecordContribution("success")
	logger.Info("contribution sent",
		"amount", req.Amount.String(),
		"fee", fee.String(),
		"reconciled", reconciled.String(),
		"transaction_id", txID,
	)
	return result, nil
}

// TransferFunds sends amount to address without taking a fee.
func (s *Service) TransferFunds(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	if address == "" {
		return "", ErrMissingRecipient
	}
	if err := s.gate.RequireVerified(ctx); err != nil {
		return "", err
	}
	txID, err := s.transfers.Transfer(ctx, transfer.Transaction{
		Address: address,
		Amount:  amount,
		Kind:    transfer.KindDirect,
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("direct transfer sent", "amount", amount.String(), "destination", wallet.RedactAddress(address))
	return txID, nil
}
