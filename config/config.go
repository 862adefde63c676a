package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	// 1Click API
	JWTToken string
	BaseURL  string

	SolverRelayURL  string
	NearRPCURL      string
	IntentsContract string
	BridgeURL       string
	Referral        string
	MetricsAddr     string
	// SwapMode is "intents" (solver relay) or "one_click".
	SwapMode string

	QuoteInterval     time.Duration
	QuoteMinDeadline  time.Duration
	PollInterval      time.Duration
	BridgeBackoffBase time.Duration
	BridgeBackoffMax  time.Duration
	SignDeadline      time.Duration
	DealTTL           time.Duration
	MaxPollFailures   int

	Signer      SignerConfig
	History     HistoryConfig
	Log         LogConfig
	AutoDeposit AutoDepositConfig
}

// SignerConfig selects the key used to sign intents.
type SignerConfig struct {
	// Chain is near, evm or solana.
	Chain      string
	AccountID  string
	PrivateKey string
	// Confirm asks on the terminal before each signature.
	Confirm bool
}

// HistoryConfig selects where OTC and gift trade records are kept.
type HistoryConfig struct {
	Driver        string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type LogConfig struct {
	Level       string
	Format      string
	OutputPaths []string
}

// AutoDepositConfig configures on-chain senders used by the deposit command
// and by destination-chain confirmation of withdrawals.
type AutoDepositConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	EVM     EVMConfig    `mapstructure:"evm"`
	Solana  SolanaConfig `mapstructure:"solana"`
}

type EVMConfig struct {
	Networks map[string]EVMNetwork `mapstructure:"networks"`
}

type EVMNetwork struct {
	RPCUrl     string  `mapstructure:"rpc_url"`
	ChainID    int64   `mapstructure:"chain_id"`
	PrivateKey string  `mapstructure:"private_key"`
	GasLimit   *uint64 `mapstructure:"gas_limit"`
	GasPrice   *int64  `mapstructure:"gas_price"`
}

type SolanaConfig struct {
	RPCUrl        string `mapstructure:"rpc_url"`
	PrivateKey    string `mapstructure:"private_key"`
	Commitment    string `mapstructure:"commitment"`
	SkipPreflight bool   `mapstructure:"skip_preflight"`
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".near-intents")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("NEAR_INTENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://1click.chaindefuser.com")
	v.SetDefault("solver_relay_url", "https://solver-relay-v2.chaindefuser.com/rpc")
	v.SetDefault("near_rpc_url", "https://rpc.mainnet.near.org")
	v.SetDefault("intents_contract", "intents.near")
	v.SetDefault("bridge_url", "https://bridge.chaindefuser.com/rpc")
	v.SetDefault("swap_mode", "intents")

	v.SetDefault("quote_interval", "1s")
	v.SetDefault("quote_min_deadline", "60s")
	v.SetDefault("poll_interval", "500ms")
	v.SetDefault("bridge_backoff_base", "2s")
	v.SetDefault("bridge_backoff_max", "30s")
	v.SetDefault("sign_deadline", "5m")
	v.SetDefault("deal_ttl", "168h")
	v.SetDefault("max_poll_failures", 3)

	v.SetDefault("signer.chain", "near")
	v.SetDefault("signer.confirm", true)
	v.SetDefault("history.driver", "file")
	v.SetDefault("history.path", "./data/trades.json")
	v.SetDefault("history.redis_addr", "localhost:6379")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		JWTToken:          v.GetString("jwt_token"),
		BaseURL:           v.GetString("base_url"),
		SolverRelayURL:    v.GetString("solver_relay_url"),
		NearRPCURL:        v.GetString("near_rpc_url"),
		IntentsContract:   v.GetString("intents_contract"),
		BridgeURL:         v.GetString("bridge_url"),
		Referral:          v.GetString("referral"),
		MetricsAddr:       v.GetString("metrics_addr"),
		SwapMode:          strings.ToLower(v.GetString("swap_mode")),
		QuoteInterval:     v.GetDuration("quote_interval"),
		QuoteMinDeadline:  v.GetDuration("quote_min_deadline"),
		PollInterval:      v.GetDuration("poll_interval"),
		BridgeBackoffBase: v.GetDuration("bridge_backoff_base"),
		BridgeBackoffMax:  v.GetDuration("bridge_backoff_max"),
		SignDeadline:      v.GetDuration("sign_deadline"),
		DealTTL:           v.GetDuration("deal_ttl"),
		MaxPollFailures:   v.GetInt("max_poll_failures"),
		Signer: SignerConfig{
			Chain:      strings.ToLower(v.GetString("signer.chain")),
			AccountID:  v.GetString("signer.account_id"),
			PrivateKey: v.GetString("signer.private_key"),
			Confirm:    v.GetBool("signer.confirm"),
		},
		History: HistoryConfig{
			Driver:        strings.ToLower(v.GetString("history.driver")),
			Path:          v.GetString("history.path"),
			RedisAddr:     v.GetString("history.redis_addr"),
			RedisPassword: v.GetString("history.redis_password"),
			RedisDB:       v.GetInt("history.redis_db"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Format:      v.GetString("log.format"),
			OutputPaths: v.GetStringSlice("log.output_paths"),
		},
	}

	if err := v.UnmarshalKey("auto_deposit", &cfg.AutoDeposit); err != nil {
		return nil, fmt.Errorf("invalid auto_deposit section: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside an actor.
func (c *Config) Validate() error {
	if c.QuoteInterval <= 0 {
		return fmt.Errorf("quote_interval must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.BridgeBackoffBase <= 0 || c.BridgeBackoffMax < c.BridgeBackoffBase {
		return fmt.Errorf("bridge backoff must satisfy 0 < base <= max")
	}
	if c.DealTTL <= 0 {
		return fmt.Errorf("deal_ttl must be positive")
	}
	if c.MaxPollFailures <= 0 {
		return fmt.Errorf("max_poll_failures must be positive")
	}
	switch c.Signer.Chain {
	case "near", "evm", "solana":
	default:
		return fmt.Errorf("unsupported signer chain %q", c.Signer.Chain)
	}
	switch c.SwapMode {
	case "intents", "one_click":
	default:
		return fmt.Errorf("unsupported swap_mode %q", c.SwapMode)
	}
	switch c.History.Driver {
	case "file", "redis":
	default:
		return fmt.Errorf("unsupported history driver %q", c.History.Driver)
	}
	return nil
}

// RequireOneClick validates the settings needed by 1Click-backed commands.
func (c *Config) RequireOneClick() error {
	if c.JWTToken == "" {
		return fmt.Errorf("JWT token not found. Please set NEAR_INTENTS_JWT_TOKEN environment variable or create a .near-intents.yaml config file")
	}
	return nil
}

// RequireSigner validates the settings needed to sign intents.
func (c *Config) RequireSigner() error {
	if c.Signer.PrivateKey == "" {
		return fmt.Errorf("signer private key not found. Please set NEAR_INTENTS_SIGNER_PRIVATE_KEY")
	}
	if c.Signer.Chain == "near" && c.Signer.AccountID == "" {
		return fmt.Errorf("NEAR signer requires signer.account_id")
	}
	return nil
}
