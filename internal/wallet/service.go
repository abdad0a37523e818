package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/remittance/internal/audit"
	"github.com/congo-pay/remittance/internal/logging"
	"github.com/congo-pay/remittance/internal/metrics"
	"github.com/congo-pay/remittance/internal/notification"
)

var (
	// ErrNotVerified is returned when an operation needs a VERIFIED wallet.
	ErrNotVerified = errors.New("external wallet is not verified")

	// ErrStatusChanged is returned when the wallet left the expected status
	// while a provider call was outstanding.
	ErrStatusChanged = errors.New("external wallet status changed during request")

	// ErrExpiredCredential is returned when the provider rejects the token.
	ErrExpiredCredential = errors.New("external wallet credential expired")

	// ErrAuthorizationDenied is returned when the provider redirect carries an error.
	ErrAuthorizationDenied = errors.New("authorization denied by provider")

	// ErrStateMismatch is returned when the redirect state does not match the
	// one-time string issued for the handshake.
	ErrStateMismatch = errors.New("authorization state mismatch")

	// ErrUserBlocked is returned when the provider reports the account as blocked.
	ErrUserBlocked = errors.New("provider account is blocked")

	// ErrProvider marks failures reported by, or on the way to, the provider.
	ErrProvider = errors.New("provider request failed")
)

// CodeInsufficientCapabilities is shown when a verified account can no longer
// send or receive.
const CodeInsufficientCapabilities = "insufficient_capabilities"

// Provider is the custodial API as seen by the status controller.
type Provider interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	GetUser(ctx context.Context, token string) (ProviderUser, error)
	GetCapabilities(ctx context.Context, token string) (Capabilities, error)
	GetCardBalance(ctx context.Context, token, address string) (decimal.Decimal, error)
	EnsureCard(ctx context.Context, token string) (string, error)
}

// Config carries the static settings of the status controller.
type Config struct {
	ProviderName string
	Links        LinkConfig
	Timeout      time.Duration
}

// Service keeps the wallet status consistent with the provider account.
type Service struct {
	cfg      Config
	store    Store
	provider Provider
	notifier notification.Notifier
	events   audit.Log
	logger   *slog.Logger
	metrics  *metrics.Metrics

	shuttingDown atomic.Bool
}

// NewService builds a wallet status controller.
func NewService(cfg Config, store Store, provider Provider, notifier notification.Notifier, events audit.Log, logger *slog.Logger, m *metrics.Metrics) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		provider: provider,
		notifier: notifier,
		events:   events,
		logger:   logging.Component(logger, "wallet"),
		metrics:  m,
	}
}

// BeginShutdown suppresses user-facing notifications for the rest of the
// process lifetime.
func (s *Service) BeginShutdown() {
	s.shuttingDown.Store(true)
}

// Get returns the current record.
func (s *Service) Get(ctx context.Context) (*Record, error) {
	return s.store.Get(ctx)
}

// Generate creates the record when absent and re-validates a verified wallet.
func (s *Service) Generate(ctx context.Context) (*Record, error) {
	record, err := s.store.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		record = &Record{
			Provider:      s.cfg.ProviderName,
			Status:        StatusNotConnected,
			OneTimeString: newOneTimeString(),
		}
		record.Links = GenerateLinks(record, s.cfg.Links)
		if err := s.store.Set(ctx, record); err != nil {
			return nil, fmt.Errorf("create wallet: %w", err)
		}
		s.logger.Info("wallet created", "provider", record.Provider)
		return record, nil
	}
	if err != nil {
		return nil, err
	}

	if record.OneTimeString == "" {
		if err := s.store.Update(ctx, func(r *Record) error {
			r.OneTimeString = newOneTimeString()
			r.Links = GenerateLinks(r, s.cfg.Links)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("refresh one-time string: %w", err)
		}
	}

	if record.Status == StatusVerified {
		caps, err := s.GetCapabilities(ctx)
		switch {
		case errors.Is(err, ErrExpiredCredential), errors.Is(err, ErrStatusChanged):
		case err != nil:
			s.logger.Warn("capability check failed", "error", err)
		case !caps.CanReceive || !caps.CanSend:
			if err := s.DisconnectWithReason(ctx, CodeInsufficientCapabilities); err != nil {
				return nil, err
			}
		}
	}

	return s.store.Get(ctx)
}

// AuthorizeArgs are the query parameters of the provider redirect.
type AuthorizeArgs struct {
	Code  string
	State string
	Error string
}

// Authorize completes the OAuth handshake and then attempts verification.
func (s *Service) Authorize(ctx context.Context, args AuthorizeArgs) (*Record, error) {
	record, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if args.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationDenied, args.Error)
	}
	if args.State == "" || args.State != record.OneTimeString {
		return nil, ErrStateMismatch
	}
	if args.Code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrAuthorizationDenied)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	token, err := s.provider.ExchangeCode(callCtx, args.Code)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	var from, to Status
	err = s.store.Update(ctx, func(r *Record) error {
		if r.OneTimeString != args.State {
			return ErrStateMismatch
		}
		from = r.Status
		to = StatusPending
		if from == StatusVerified {
			to = StatusVerified
		}
		if err := Transition(from, to); err != nil {
			return err
		}
		r.Token = token
		r.Status = to
		r.OneTimeString = newOneTimeString()
		r.Links = GenerateLinks(r, s.cfg.Links)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	s.statusChanged(ctx, from, to)

	if to == StatusPending {
		if err := s.Verify(ctx); err != nil {
			return nil, err
		}
	}
	return s.store.Get(ctx)
}

// Verify promotes a PENDING wallet to VERIFIED once the provider reports a
// verified account with a card.
func (s *Service) Verify(ctx context.Context) error {
	record, err := s.store.Get(ctx)
	if err != nil {
		return err
	}
	if record.Status != StatusPending {
		return fmt.Errorf("%w: verify from %s", ErrIllegalTransition, record.Status)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	user, err := s.provider.GetUser(callCtx, record.Token)
	if err != nil {
		return s.providerFailure(ctx, "get user", err)
	}
	if user.Blocked {
		if err := s.DisconnectWithReason(ctx, notification.CodeBlockedUser); err != nil {
			return err
		}
		return ErrUserBlocked
	}
	if !user.Verified {
		s.logger.Info("provider user not verified yet", "member_id", user.MemberID)
		return nil
	}

	address, err := s.provider.EnsureCard(callCtx, record.Token)
	if err != nil {
		return s.providerFailure(ctx, "ensure card", err)
	}

	err = s.store.Update(ctx, func(r *Record) error {
		if r.Status != StatusPending || r.Token != record.Token {
			return ErrStatusChanged
		}
		if err := Transition(r.Status, StatusVerified); err != nil {
			return err
		}
		r.Status = StatusVerified
		r.Address = address
		r.UserName = user.Name
		r.MemberID = user.MemberID
		r.Links = GenerateLinks(r, s.cfg.Links)
		return nil
	})
	if err != nil {
		return fmt.Errorf("verify wallet: %w", err)
	}

	s.statusChanged(ctx, StatusPending, StatusVerified)
	s.saveEvent(ctx, audit.KeyWalletVerified, s.eventValue(address))
	s.logger.Info("wallet verified", "address", RedactAddress(address))
	return nil
}

// Disconnect is the user-initiated disconnect.
func (s *Service) Disconnect(ctx context.Context) error {
	return s.disconnect(ctx, "", true)
}

// DisconnectWithReason is the system-initiated disconnect. The code names the
// notification shown to the user; an empty code shows none.
func (s *Service) DisconnectWithReason(ctx context.Context, code string) error {
	return s.disconnect(ctx, code, false)
}

func (s *Service) disconnect(ctx context.Context, code string, manual bool) error {
	var from, to Status
	var address string
	err := s.store.Update(ctx, func(r *Record) error {
		from = r.Status
		address = r.Address
		to = StatusNotConnected
		if !manual {
			to = disconnectedStatus(from)
		}
		if err := Transition(from, to); err != nil {
			return err
		}
		r.reset(to)
		r.Links = GenerateLinks(r, s.cfg.Links)
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("disconnect wallet: %w", err)
	}

	s.logger.Info("wallet disconnected",
		"from", from,
		"to", to,
		"manual", manual,
		"address", RedactAddress(address),
	)
	s.statusChanged(ctx, from, to)

	shuttingDown := s.shuttingDown.Load()
	if !manual && !shuttingDown && code != "" {
		if err := s.notifier.ShowNotification(ctx, code, []string{s.cfg.ProviderName}); err != nil {
			s.logger.Error("notifier.ShowNotification", "code", code, "error", err)
		}
	}
	if !shuttingDown {
		if err := s.notifier.WalletDisconnected(ctx, s.cfg.ProviderName); err != nil {
			s.logger.Error("notifier.WalletDisconnected", "error", err)
		}
	}

	s.saveEvent(ctx, audit.KeyWalletDisconnected, s.eventValue(address))
	return nil
}

// FetchBalance returns the card balance of a verified wallet. Any other
// status yields zero without contacting the provider.
func (s *Service) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	record, err := s.store.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	if record.Status != StatusVerified {
		return decimal.Zero, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	balance, callErr := s.provider.GetCardBalance(callCtx, record.Token, record.Address)
	cancel()

	if err := s.revalidate(ctx, StatusVerified); err != nil {
		return decimal.Zero, err
	}
	if callErr != nil {
		return decimal.Zero, s.providerFailure(ctx, "get balance", callErr)
	}
	return balance, nil
}

// GetCapabilities asks the provider what a linked account may do.
func (s *Service) GetCapabilities(ctx context.Context) (Capabilities, error) {
	record, err := s.store.Get(ctx)
	if err != nil {
		return Capabilities{}, err
	}
	if !record.Status.Linked() {
		return Capabilities{}, nil
	}
	s.checkState(record)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	caps, callErr := s.provider.GetCapabilities(callCtx, record.Token)
	cancel()

	if err := s.revalidate(ctx, record.Status); err != nil {
		return Capabilities{}, err
	}
	if callErr != nil {
		return Capabilities{}, s.providerFailure(ctx, "get capabilities", callErr)
	}
	return caps, nil
}

// RequireVerified gates operations that move funds.
func (s *Service) RequireVerified(ctx context.Context) error {
	record, err := s.store.Get(ctx)
	if err != nil {
		return err
	}
	if record.Status != StatusVerified {
		return fmt.Errorf("%w: status %s", ErrNotVerified, record.Status)
	}
	if record.Token == "" || record.Address == "" {
		return fmt.Errorf("%w: missing credential", ErrNotVerified)
	}
	return nil
}

// revalidate re-reads the record after a provider call and reports whether
// the wallet is still in the status the call started from.
func (s *Service) revalidate(ctx context.Context, expected Status) error {
	current, err := s.store.Get(ctx)
	if err != nil {
		return err
	}
	if current.Status != expected {
		return ErrStatusChanged
	}
	return nil
}

// providerFailure disconnects on an expired credential and wraps everything else.
func (s *Service) providerFailure(ctx context.Context, op string, err error) error {
	if errors.Is(err, ErrExpiredCredential) {
		s.logger.Warn("provider credential expired", "op", op)
		if derr := s.DisconnectWithReason(ctx, notification.CodeWalletDisconnected); derr != nil {
			return errors.Join(ErrExpiredCredential, derr)
		}
		return ErrExpiredCredential
	}
	return fmt.Errorf("%s: %w", op, err)
}

// checkState logs records that claim a linked status without the data it needs.
func (s *Service) checkState(record *Record) {
	switch {
	case record.Token == "":
		s.logger.Warn("linked wallet has no token", "status", record.Status)
	case record.Status == StatusVerified && record.Address == "":
		s.logger.Warn("verified wallet has no address")
	}
}

func (s *Service) statusChanged(ctx context.Context, from, to Status) {
	s.metrics.RecordStatusTransition(from.String(), to.String())
	if err := s.notifier.StatusChanged(ctx, s.cfg.ProviderName, from.String(), to.String()); err != nil {
		s.logger.Error("notifier.StatusChanged", "from", from, "to", to, "error", err)
	}
}

func (s *Service) saveEvent(ctx context.Context, key, value string) {
	if s.events == nil {
		return
	}
	if err := s.events.Save(ctx, key, value); err != nil {
		s.logger.Error("audit.Save", "key", key, "error", err)
	}
}

func (s *Service) eventValue(address string) string {
	if address == "" {
		return s.cfg.ProviderName
	}
	return s.cfg.ProviderName + "/" + RedactAddress(address)
}
