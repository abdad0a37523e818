package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/congo-pay/remittance/internal/config"
)

// rootCmd is the operator CLI. It reads the same environment as the API.
var rootCmd = &cobra.Command{
	Use:           "walletctl",
	Short:         "inspect the linked external wallet of a remittance engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "walletctl:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("redis-url", "", "redis url (defaults to REDIS_URL)")
	rootCmd.PersistentFlags().String("database-url", "", "postgres url (defaults to DATABASE_URL)")
	viper.BindPFlag("redis_url", rootCmd.PersistentFlags().Lookup("redis-url"))       // nolint:errcheck
	viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url")) // nolint:errcheck
}

// loadConfig loads the engine config and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if url := viper.GetString("redis_url"); url != "" {
		cfg.RedisURL = url
	}
	if url := viper.GetString("database_url"); url != "" {
		cfg.DatabaseURL = url
	}
	return cfg, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(b))
	return nil
}
