package notification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

const (
	// CodeWalletDisconnected asks the user to reconnect after a system disconnect.
	CodeWalletDisconnected = "wallet_disconnected"
	// CodeBlockedUser tells the user the provider has blocked the account.
	CodeBlockedUser = "blocked_user"
)

// Message describes a notification payload.
type Message struct {
	Kind     string   `json:"kind"`
	Provider string   `json:"provider,omitempty"`
	Code     string   `json:"code,omitempty"`
	Args     []string `json:"args,omitempty"`
	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
}

const (
	KindNotification = "notification"
	KindDisconnected = "disconnected"
	KindStatus       = "status"
)

// Notifier delivers wallet lifecycle events to downstream systems.
type Notifier interface {
	ShowNotification(ctx context.Context, code string, args []string) error
	WalletDisconnected(ctx context.Context, provider string) error
	StatusChanged(ctx context.Context, provider, from, to string) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

func (n *LoggerNotifier) ShowNotification(_ context.Context, code string, args []string) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "code", code, "args", strings.Join(args, ","))
	return nil
}

func (n *LoggerNotifier) WalletDisconnected(_ context.Context, provider string) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("wallet disconnected", "provider", provider)
	return nil
}

func (n *LoggerNotifier) StatusChanged(_ context.Context, provider, from, to string) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("wallet status changed", "provider", provider, "from", from, "to", to)
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) ShowNotification(ctx context.Context, code string, args []string) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.ShowNotification(ctx, code, args))
	}
	return errors.Join(errs...)
}

func (f Fanout) WalletDisconnected(ctx context.Context, provider string) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.WalletDisconnected(ctx, provider))
	}
	return errors.Join(errs...)
}

func (f Fanout) StatusChanged(ctx context.Context, provider, from, to string) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.StatusChanged(ctx, provider, from, to))
	}
	return errors.Join(errs...)
}
