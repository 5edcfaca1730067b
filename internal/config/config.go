// Package config defines the configuration for the polygo CLI.
// Config is loaded from an optional YAML file with every key overridable via
// POLY_* environment variables; a .env file in the working directory is read
// first. Library users can skip this package and fill the option structs of
// the client packages directly.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"polygo/internal/auth"
	"polygo/internal/eip712"
	"polygo/internal/retry"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun  bool          `mapstructure:"dry_run"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	API     APIConfig     `mapstructure:"api"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Logging LoggingConfig `mapstructure:"logging"`
	Store   StoreConfig   `mapstructure:"store"`
}

// WalletConfig holds the Ethereum wallet used for signing orders.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API keys.
// FunderAddress is the on-chain address that funds orders (may differ from signer if using a proxy).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       uint64 `mapstructure:"chain_id"`
}

// APIConfig holds Polymarket API endpoints and optional pre-derived L2 credentials.
// If ApiKey/Secret/Passphrase are empty, the CLI derives them via L1 auth.
type APIConfig struct {
	CLOBBaseURL  string `mapstructure:"clob_base_url"`
	GammaBaseURL string `mapstructure:"gamma_base_url"`
	WSMarketURL  string `mapstructure:"ws_market_url"`
	WSUserURL    string `mapstructure:"ws_user_url"`
	ApiKey       string `mapstructure:"api_key"`
	Secret       string `mapstructure:"secret"`
	Passphrase   string `mapstructure:"passphrase"`
}

// HTTPConfig tunes the shared transport.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	PoolSize  int           `mapstructure:"pool_size"`
	UserAgent string        `mapstructure:"user_agent"`
}

// RetryConfig bounds retries of throttled (429) responses.
type RetryConfig struct {
	MaxRetries     uint32        `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// StoreConfig sets where derived credentials are persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

func setDefaults(v *viper.Viper) {
	rc := retry.DefaultConfig()

	v.SetDefault("dry_run", false)
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("wallet.signature_type", 0)
	v.SetDefault("wallet.funder_address", "")
	v.SetDefault("wallet.chain_id", eip712.ChainPolygon)
	v.SetDefault("api.clob_base_url", "https://clob.polymarket.com")
	v.SetDefault("api.gamma_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("api.ws_market_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("api.ws_user_url", "wss://ws-subscriptions-clob.polymarket.com/ws/user")
	v.SetDefault("api.api_key", "")
	v.SetDefault("api.secret", "")
	v.SetDefault("api.passphrase", "")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.pool_size", 10)
	v.SetDefault("http.user_agent", "polygo")
	v.SetDefault("retry.max_retries", rc.MaxRetries)
	v.SetDefault("retry.initial_backoff", rc.InitialBackoff)
	v.SetDefault("retry.max_backoff", rc.MaxBackoff)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("store.data_dir", "data")
}

// Load reads config from a YAML file with env var overrides. An empty path
// uses defaults and the environment only.
// Sensitive fields use env vars: POLY_PRIVATE_KEY, POLY_API_KEY, POLY_API_SECRET, POLY_PASSPHRASE.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("POLY_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("POLY_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("POLY_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("POLY_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if os.Getenv("POLY_DRY_RUN") == "true" || os.Getenv("POLY_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks value ranges. The private key is checked separately by
// RequireWallet since public commands run without one.
func (c *Config) Validate() error {
	if _, err := eip712.ContractsFor(c.Wallet.ChainID); err != nil {
		return fmt.Errorf("wallet.chain_id must be 137 (Polygon) or 80002 (Amoy), got %d", c.Wallet.ChainID)
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
	}
	for key, raw := range map[string]string{
		"api.clob_base_url":  c.API.CLOBBaseURL,
		"api.gamma_base_url": c.API.GammaBaseURL,
		"api.ws_market_url":  c.API.WSMarketURL,
		"api.ws_user_url":    c.API.WSUserURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
		}
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.PoolSize <= 0 {
		return fmt.Errorf("http.pool_size must be > 0")
	}
	if c.Retry.InitialBackoff <= 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("retry backoffs must satisfy 0 < initial_backoff <= max_backoff")
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// RequireWallet fails unless a private key is configured.
func (c *Config) RequireWallet() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set POLY_PRIVATE_KEY)")
	}
	return nil
}

// Credentials returns the configured L2 credentials; they may be incomplete.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{ApiKey: c.API.ApiKey, Secret: c.API.Secret, Passphrase: c.API.Passphrase}
}

// RetryPolicy converts the retry section for the transport.
func (c *Config) RetryPolicy() *retry.Config {
	return &retry.Config{
		MaxRetries:     c.Retry.MaxRetries,
		InitialBackoff: c.Retry.InitialBackoff,
		MaxBackoff:     c.Retry.MaxBackoff,
	}
}

// SlogLevel parses the level name.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", l.Level)
	}
}
