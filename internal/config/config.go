package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Chain       ChainConfig       `mapstructure:"chain"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Withdraw    WithdrawConfig    `mapstructure:"withdraw"`
	Wallet      WalletConfig      `mapstructure:"wallet"`
	Strategies  []StrategyConfig  `mapstructure:"strategies"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// Per-wallet request rate for the public API, requests per second.
	WalletQPS   float64 `mapstructure:"wallet_qps"`
	WalletBurst int     `mapstructure:"wallet_burst"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ChainConfig struct {
	// Timeout for a single RPC attempt against one endpoint. The pool
	// moves to the next endpoint once this elapses.
	CallTimeoutMs int `mapstructure:"call_timeout_ms"`
}

type LedgerConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type AggregationConfig struct {
	NetworkIntervalMs  int `mapstructure:"network_interval_ms"`
	StrategyIntervalMs int `mapstructure:"strategy_interval_ms"`
	RateLimitBackoffMs int `mapstructure:"rate_limit_backoff_ms"`
	SnapshotTTLSeconds int `mapstructure:"snapshot_ttl_seconds"`
	RateTTLSeconds     int `mapstructure:"rate_ttl_seconds"`
}

type WithdrawConfig struct {
	DeadlineSeconds      uint32 `mapstructure:"deadline_seconds"`
	Discount             uint16 `mapstructure:"discount"`
	LedgerRecheckDelayMs int    `mapstructure:"ledger_recheck_delay_ms"`
}

type WalletConfig struct {
	// Hex-encoded secp256k1 key for the server-side signer. Empty means
	// transactions can only be built, not submitted.
	PrivateKey string `mapstructure:"private_key"`
	// Network the signer currently considers active. Submissions to any
	// other network are refused with WRONG_NETWORK until it is switched.
	ActiveNetwork string `mapstructure:"active_network"`
}

// NetworkConfig describes one chain a strategy's vault is deployed on.
type NetworkConfig struct {
	ChainID           int64    `mapstructure:"chain_id"`
	RPCEndpoints      []string `mapstructure:"rpc_endpoints"`
	VaultShareAddress string   `mapstructure:"vault_share_address"`
}

// StrategyConfig identifies one vault strategy. Loaded once at startup
// and read-only afterwards.
type StrategyConfig struct {
	ID                   string                   `mapstructure:"id"`
	SolverAddress        string                   `mapstructure:"solver_address"`
	RateProviderAddress  string                   `mapstructure:"rate_provider_address"`
	ReferenceAsset       string                   `mapstructure:"reference_asset"`
	ShareDecimals        uint8                    `mapstructure:"share_decimals"`
	WithdrawableNetworks []string                 `mapstructure:"withdrawable_networks"`
	Networks             map[string]NetworkConfig `mapstructure:"networks"`
}

func (s *StrategyConfig) IsWithdrawable(network string) bool {
	for _, n := range s.WithdrawableNetworks {
		if n == network {
			return true
		}
	}
	return false
}

// Strategy returns the strategy with the given id, or nil.
func (c *Config) Strategy(id string) *StrategyConfig {
	for i := range c.Strategies {
		if c.Strategies[i].ID == id {
			return &c.Strategies[i]
		}
	}
	return nil
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. VAULTGATE_LEDGER_BASE_URL
	viper.SetEnvPrefix("vaultgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.wallet_qps", 5.0)
	viper.SetDefault("server.wallet_burst", 10)
	viper.SetDefault("chain.call_timeout_ms", 10000)
	viper.SetDefault("ledger.timeout_ms", 10000)
	viper.SetDefault("aggregation.network_interval_ms", 100)
	viper.SetDefault("aggregation.strategy_interval_ms", 500)
	viper.SetDefault("aggregation.rate_limit_backoff_ms", 2000)
	viper.SetDefault("aggregation.snapshot_ttl_seconds", 30)
	viper.SetDefault("aggregation.rate_ttl_seconds", 60)
	viper.SetDefault("withdraw.deadline_seconds", 432000)
	viper.SetDefault("withdraw.discount", 0)
	viper.SetDefault("withdraw.ledger_recheck_delay_ms", 2000)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fails fast on malformed strategy entries so a bad address or
// missing decimals never makes it into an aggregation pass.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i := range c.Strategies {
		s := &c.Strategies[i]
		if s.ID == "" {
			return fmt.Errorf("strategy[%d]: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("strategy %q: duplicate id", s.ID)
		}
		seen[s.ID] = true
		if !common.IsHexAddress(s.SolverAddress) {
			return fmt.Errorf("strategy %q: invalid solver_address %q", s.ID, s.SolverAddress)
		}
		if !common.IsHexAddress(s.RateProviderAddress) {
			return fmt.Errorf("strategy %q: invalid rate_provider_address %q", s.ID, s.RateProviderAddress)
		}
		if !common.IsHexAddress(s.ReferenceAsset) {
			return fmt.Errorf("strategy %q: invalid reference_asset %q", s.ID, s.ReferenceAsset)
		}
		if s.ShareDecimals == 0 {
			return fmt.Errorf("strategy %q: share_decimals is required", s.ID)
		}
		if len(s.Networks) == 0 {
			return fmt.Errorf("strategy %q: at least one network is required", s.ID)
		}
		for name, n := range s.Networks {
			if n.ChainID <= 0 {
				return fmt.Errorf("strategy %q network %q: chain_id is required", s.ID, name)
			}
			if len(n.RPCEndpoints) == 0 {
				return fmt.Errorf("strategy %q network %q: at least one rpc endpoint is required", s.ID, name)
			}
			if !common.IsHexAddress(n.VaultShareAddress) {
				return fmt.Errorf("strategy %q network %q: invalid vault_share_address %q", s.ID, name, n.VaultShareAddress)
			}
		}
		for _, w := range s.WithdrawableNetworks {
			if _, ok := s.Networks[w]; !ok {
				return fmt.Errorf("strategy %q: withdrawable network %q is not a configured network", s.ID, w)
			}
		}
	}
	return nil
}
