package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the JetStream stream carrying wallet events.
	StreamName = "WALLET_EVENTS"

	// StreamSubjects matches every wallet event subject.
	StreamSubjects = "wallet.>"

	streamRetention = 7 * 24 * time.Hour
)

// NATSNotifier publishes wallet events to JetStream under
// wallet.<provider>.<kind>.
type NATSNotifier struct {
	js       jetstream.JetStream
	provider string
	logger   *slog.Logger
}

// NewNATSNotifier creates the JetStream context and ensures the stream exists.
func NewNATSNotifier(ctx context.Context, nc *nats.Conn, provider string, logger *slog.Logger) (*NATSNotifier, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	n := &NATSNotifier{js: js, provider: provider, logger: logger}
	if err := n.ensureStream(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}
	return n, nil
}

func (n *NATSNotifier) ensureStream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := n.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	n.logger.Info("creating JetStream stream", "stream", StreamName)
	_, err := n.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "External wallet lifecycle events",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      streamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Subject returns the subject a message of the given kind is published on.
func Subject(provider, kind string) string {
	return fmt.Sprintf("wallet.%s.%s", provider, kind)
}

func (n *NATSNotifier) ShowNotification(ctx context.Context, code string, args []string) error {
	return n.publish(ctx, Message{Kind: KindNotification, Provider: n.provider, Code: code, Args: args})
}

func (n *NATSNotifier) WalletDisconnected(ctx context.Context, provider string) error {
	return n.publish(ctx, Message{Kind: KindDisconnected, Provider: provider})
}

func (n *NATSNotifier) StatusChanged(ctx context.Context, provider, from, to string) error {
	return n.publish(ctx, Message{Kind: KindStatus, Provider: provider, From: from, To: to})
}

func (n *NATSNotifier) publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", msg.Kind, err)
	}
	subject := Subject(msg.Provider, msg.Kind)
	if _, err := n.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	n.logger.Debug("published wallet event", "subject", subject)
	return nil
}
