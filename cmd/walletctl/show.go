package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/congo-pay/remittance/internal/config"
	"github.com/congo-pay/remittance/internal/infra"
	"github.com/congo-pay/remittance/internal/wallet"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "print the wallet record with the address redacted and the token hidden",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(store wallet.Store) error {
			record, err := store.Get(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, redacted(record))
		})
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

type recordView struct {
	Provider    string        `json:"provider"`
	Status      wallet.Status `json:"status"`
	Address     string        `json:"address,omitempty"`
	HasToken    bool          `json:"has_token"`
	UserName    string        `json:"user_name,omitempty"`
	MemberID    string        `json:"member_id,omitempty"`
	Links       wallet.Links  `json:"links"`
	PendingFees int           `json:"pending_fees"`
	UpdatedAt   string        `json:"updated_at"`
}

func redacted(r *wallet.Record) recordView {
	return recordView{
		Provider:    r.Provider,
		Status:      r.Status,
		Address:     wallet.RedactAddress(r.Address),
		HasToken:    r.Token != "",
		UserName:    r.UserName,
		MemberID:    r.MemberID,
		Links:       r.Links,
		PendingFees: len(r.Fees),
		UpdatedAt:   r.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// withStore opens the Redis-backed store for the configured provider.
func withStore(ctx context.Context, fn func(wallet.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cache, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer cache.Close()
	return fn(wallet.NewRedisStore(cache, cfg.Provider.Name))
}

func openRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL or --redis-url is required")
	}
	return infra.NewRedisClient(ctx, cfg.RedisURL)
}
