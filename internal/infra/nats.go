package infra

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NewNATSConn connects to NATS with unlimited reconnects.
func NewNATSConn(url, name string) (*nats.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is required")
	}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}
