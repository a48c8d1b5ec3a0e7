// Package config loads process configuration from defaults, an optional YAML file,
// an optional .env file and PERPS_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"perps-trading-core/units"
)

// Config holds all runtime settings.
type Config struct {
	// RPCURL is the EVM JSON-RPC endpoint used for oracle and position reads.
	RPCURL   string `yaml:"rpc_url"`
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	Contracts ContractsConfig `yaml:"contracts"`
	Stats     StatsConfig     `yaml:"stats"`

	PollInterval time.Duration `yaml:"poll_interval"`
	// ExecutionFee is the native amount (e.g. "0.001") attached to every order.
	ExecutionFee           string        `yaml:"execution_fee"`
	DefaultSlippagePercent string        `yaml:"default_slippage_percent"`
	PositionPageSize       int64         `yaml:"position_page_size"`
	IntentTTL              time.Duration `yaml:"intent_ttl"`
}

type ContractsConfig struct {
	ExchangeRouter string `yaml:"exchange_router"`
	OrderVault     string `yaml:"order_vault"`
	Reader         string `yaml:"reader"`
	DataStore      string `yaml:"data_store"`
}

type StatsConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	TTL               time.Duration `yaml:"ttl"`
}

// Default returns the Arbitrum One deployment settings.
func Default() *Config {
	return &Config{
		RPCURL:   "https://arb1.arbitrum.io/rpc",
		HTTPAddr: ":8080",
		LogLevel: "info",
		Contracts: ContractsConfig{
			ExchangeRouter: "0x7C68C7866A64FA2160F78EEaE12217FFbf871fa8",
			OrderVault:     "0x31eF83a530Fde1B38EE9A18093A333D8Bbbc40D5",
			Reader:         "0xf60becbba223EEA9495Da3f606753867eC10d139",
			DataStore:      "0xFD70de6b91282D8017aA4E741e9Ae325CAb992d8",
		},
		Stats: StatsConfig{
			BaseURL:           "https://api.coingecko.com/api/v3",
			RequestsPerMinute: 30,
			TTL:               60 * time.Second,
		},
		PollInterval:           5 * time.Second,
		ExecutionFee:           "0.001",
		DefaultSlippagePercent: "0.5",
		PositionPageSize:       100,
		IntentTTL:              2 * time.Minute,
	}
}

// Load applies yamlPath and envFile on top of the defaults, then the environment.
// Either path may be empty; a missing envFile is not an error.
func Load(yamlPath, envFile string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		f, err := os.Open(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", yamlPath, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Overload(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.RPCURL = getEnv("PERPS_RPC_URL", c.RPCURL)
	c.HTTPAddr = getEnv("PERPS_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("PERPS_LOG_LEVEL", c.LogLevel)

	c.Contracts.ExchangeRouter = getEnv("PERPS_EXCHANGE_ROUTER", c.Contracts.ExchangeRouter)
	c.Contracts.OrderVault = getEnv("PERPS_ORDER_VAULT", c.Contracts.OrderVault)
	c.Contracts.Reader = getEnv("PERPS_READER", c.Contracts.Reader)
	c.Contracts.DataStore = getEnv("PERPS_DATA_STORE", c.Contracts.DataStore)

	c.Stats.BaseURL = getEnv("PERPS_STATS_BASE_URL", c.Stats.BaseURL)
	c.Stats.APIKey = strings.Trim(getEnv("PERPS_STATS_API_KEY", c.Stats.APIKey), `"'`)

	c.ExecutionFee = getEnv("PERPS_EXECUTION_FEE", c.ExecutionFee)
	c.DefaultSlippagePercent = getEnv("PERPS_DEFAULT_SLIPPAGE", c.DefaultSlippagePercent)

	var err error
	if c.Stats.RequestsPerMinute, err = getEnvInt("PERPS_STATS_RPM", c.Stats.RequestsPerMinute); err != nil {
		return err
	}
	if c.Stats.TTL, err = getEnvDuration("PERPS_STATS_TTL", c.Stats.TTL); err != nil {
		return err
	}
	if c.PollInterval, err = getEnvDuration("PERPS_POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.IntentTTL, err = getEnvDuration("PERPS_INTENT_TTL", c.IntentTTL); err != nil {
		return err
	}
	page, err := getEnvInt("PERPS_POSITION_PAGE_SIZE", int(c.PositionPageSize))
	if err != nil {
		return err
	}
	c.PositionPageSize = int64(page)
	return nil
}

// Validate rejects settings that would make the process misbehave at runtime.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	for name, addr := range map[string]string{
		"exchange_router": c.Contracts.ExchangeRouter,
		"order_vault":     c.Contracts.OrderVault,
		"reader":          c.Contracts.Reader,
		"data_store":      c.Contracts.DataStore,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("contracts.%s: invalid address %q", name, addr)
		}
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.Stats.TTL <= 0 {
		return errors.New("stats.ttl must be positive")
	}
	if c.IntentTTL <= 0 {
		return errors.New("intent_ttl must be positive")
	}
	if c.PositionPageSize <= 0 {
		return errors.New("position_page_size must be positive")
	}
	fee, err := c.ExecutionFeeWei()
	if err != nil {
		return err
	}
	if fee.Sign() <= 0 {
		return errors.New("execution_fee must be positive")
	}
	slippage, err := c.Slippage()
	if err != nil {
		return err
	}
	if slippage.IsNegative() {
		return errors.New("default_slippage_percent must not be negative")
	}
	return nil
}

// ExecutionFeeWei converts the configured native execution fee to wei.
func (c *Config) ExecutionFeeWei() (*big.Int, error) {
	fee, err := units.NativeToWei(c.ExecutionFee)
	if err != nil {
		return nil, fmt.Errorf("execution_fee: %w", err)
	}
	return fee, nil
}

func (c *Config) Slippage() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.DefaultSlippagePercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("default_slippage_percent: %w", err)
	}
	return d, nil
}

func (c ContractsConfig) ExchangeRouterAddress() common.Address {
	return common.HexToAddress(c.ExchangeRouter)
}

func (c ContractsConfig) OrderVaultAddress() common.Address {
	return common.HexToAddress(c.OrderVault)
}

func (c ContractsConfig) ReaderAddress() common.Address {
	return common.HexToAddress(c.Reader)
}

func (c ContractsConfig) DataStoreAddress() common.Address {
	return common.HexToAddress(c.DataStore)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
