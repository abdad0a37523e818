package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	defaultAppName         = "CongoRemit"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultProviderName    = "uphold"
	defaultProviderAPIURL  = "https://api.uphold.com"
	defaultProviderWebURL  = "https://wallet.uphold.com"
	defaultProviderTimeout = 15 * time.Second
	defaultCurrency        = "BAT"
	defaultFeeRate         = "0.05"
	defaultFeeBaseDelay    = 45 * time.Second
	defaultFeeJitter       = 0.5
	defaultFeeMaxAttempts  = 3
	defaultPlatformName    = "Congo Remit"

	configFileEnvVar       = "CONFIG_FILE"
	shutdownSecondsEnvVar  = "shutdown_timeout_seconds"
	shutdownDurationEnvVar = "shutdown_timeout"
	idemTTLSecondsEnvVar   = "idempotency_ttl_seconds"
	idemTTLDurEnvVar       = "idempotency_ttl"
)

// Config captures application runtime configuration loaded from environment
// variables and, optionally, a YAML file named by CONFIG_FILE.
type Config struct {
	AppName        string `valid:"required"`
	AppEnv         string `valid:"required"`
	Port           string `valid:"required"`
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	PlatformName   string `valid:"required"`
	Provider       ProviderConfig
	Fee            FeeConfig
}

// ProviderConfig describes the custodial provider the wallet is linked to.
type ProviderConfig struct {
	Name         string `valid:"required"`
	APIURL       string `valid:"required,url"`
	WebURL       string `valid:"required,url"`
	ClientID     string
	ClientSecret string
	Currency     string `valid:"required"`
	Timeout      time.Duration
}

// FeeConfig controls how platform fees are computed and collected.
type FeeConfig struct {
	Rate        decimal.Decimal `valid:"-"`
	Address     string          `valid:"required"`
	BaseDelay   time.Duration
	Jitter      float64
	MaxAttempts int
}

// Load reads configuration values and populates a Config instance.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("app_name", defaultAppName)
	v.SetDefault("app_env", defaultAppEnv)
	v.SetDefault("port", defaultPort)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("platform_name", defaultPlatformName)
	v.SetDefault("provider_name", defaultProviderName)
	v.SetDefault("provider_api_url", defaultProviderAPIURL)
	v.SetDefault("provider_web_url", defaultProviderWebURL)
	v.SetDefault("provider_currency", defaultCurrency)
	v.SetDefault("provider_timeout", defaultProviderTimeout)
	v.SetDefault("fee_rate", defaultFeeRate)
	v.SetDefault("fee_retry_base_delay", defaultFeeBaseDelay)
	v.SetDefault("fee_retry_jitter", defaultFeeJitter)
	v.SetDefault("fee_max_attempts", defaultFeeMaxAttempts)

	if file := os.Getenv(configFileEnvVar); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", file, err)
		}
	}

	rate, err := decimal.NewFromString(v.GetString("fee_rate"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid FEE_RATE: %w", err)
	}

	cfg := Config{
		AppName:        v.GetString("app_name"),
		AppEnv:         v.GetString("app_env"),
		Port:           v.GetString("port"),
		LogLevel:       strings.ToLower(v.GetString("log_level")),
		DatabaseURL:    v.GetString("database_url"),
		RedisURL:       v.GetString("redis_url"),
		NATSURL:        v.GetString("nats_url"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		PlatformName:   v.GetString("platform_name"),
		Provider: ProviderConfig{
			Name:         strings.ToLower(v.GetString("provider_name")),
			APIURL:       v.GetString("provider_api_url"),
			WebURL:       v.GetString("provider_web_url"),
			ClientID:     v.GetString("provider_client_id"),
			ClientSecret: v.GetString("provider_client_secret"),
			Currency:     v.GetString("provider_currency"),
			Timeout:      v.GetDuration("provider_timeout"),
		},
		Fee: FeeConfig{
			Rate:        rate,
			Address:     v.GetString("fee_address"),
			BaseDelay:   v.GetDuration("fee_retry_base_delay"),
			Jitter:      v.GetFloat64("fee_retry_jitter"),
			MaxAttempts: v.GetInt("fee_max_attempts"),
		},
	}

	if cfg.ShutdownPeriod, err = durationSetting(v, shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationSetting(v, idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks struct tags and the cross-field rules that tags cannot express.
func (c Config) Validate() error {
	var errs []error

	if _, err := govalidator.ValidateStruct(c); err != nil {
		errs = append(errs, err)
	}

	if !c.IsDev() {
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv))
		}
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv))
		}
	}

	if c.Fee.Rate.IsNegative() || c.Fee.Rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("FEE_RATE must be in [0, 1), got %s", c.Fee.Rate))
	}
	if c.Fee.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("FEE_RETRY_BASE_DELAY must be positive"))
	}
	if c.Fee.Jitter < 0 || c.Fee.Jitter > 1 {
		errs = append(errs, fmt.Errorf("FEE_RETRY_JITTER must be in [0, 1], got %v", c.Fee.Jitter))
	}
	if c.Fee.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("FEE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("PROVIDER_TIMEOUT must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// IsDev reports whether the process runs with in-memory fallbacks allowed.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// FeeMessage is the memo attached to every fee collection transfer.
func (c Config) FeeMessage() string {
	pct := c.Fee.Rate.Mul(decimal.NewFromInt(100))
	return fmt.Sprintf("%s%% transaction fee collected by %s", pct.String(), c.PlatformName)
}

func durationSetting(v *viper.Viper, secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if raw := v.GetString(secondsKey); raw != "" {
		seconds := v.GetInt(secondsKey)
		if seconds <= 0 {
			return 0, fmt.Errorf("invalid %s: %q", strings.ToUpper(secondsKey), raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if raw := v.GetString(durationKey); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", strings.ToUpper(durationKey), err)
		}
		return d, nil
	}
	return fallback, nil
}
