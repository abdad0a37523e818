package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/congo-pay/remittance/internal/audit"
	"github.com/congo-pay/remittance/internal/infra"
)

var historyOpt struct {
	key   string
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "print recent wallet events from the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch historyOpt.key {
		case audit.KeyWalletDisconnected, audit.KeyWalletVerified:
		default:
			return fmt.Errorf("unknown event key %q", historyOpt.key)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL or --database-url is required")
		}
		db, err := infra.NewPostgresPool(cmd.Context(), cfg.DatabaseURL, "walletctl")
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := audit.NewPostgresLog(db).Recent(cmd.Context(), historyOpt.key, historyOpt.limit)
		if err != nil {
			return err
		}
		return printJSON(cmd, entries)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyOpt.key, "key", audit.KeyWalletDisconnected, "event key (wallet_disconnected or wallet_verified)")
	historyCmd.Flags().IntVar(&historyOpt.limit, "limit", 20, "maximum number of entries")
}
