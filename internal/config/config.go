// Package config loads controller configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"supply-controller/internal/controller"
)

// Backend names.
const (
	BackendMemory     = "memory"
	BackendFile       = "file"
	BackendPostgres   = "postgres"
	BackendSQLite     = "sqlite"
	BackendClickhouse = "clickhouse"
	BackendRedis      = "redis"
	BackendNone       = "none"
)

type Config struct {
	Chain      ChainConfig       `yaml:"chain"`
	Token      TokenConfig       `yaml:"token"`
	Ingestion  IngestionConfig   `yaml:"ingestion"`
	State      StateConfig       `yaml:"state"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Lock       LockConfig        `yaml:"lock"`
	Controller controller.Params `yaml:"controller"`
	Submitter  SubmitterConfig   `yaml:"submitter"`
	Server     ServerConfig      `yaml:"server"`
	Log        LogConfig         `yaml:"log"`
}

type ChainConfig struct {
	RPCURL    string        `yaml:"rpc_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst int           `yaml:"rate_burst"`
}

type TokenConfig struct {
	Address  string `yaml:"address"`
	Issuer   string `yaml:"issuer"`
	Treasury string `yaml:"treasury"`
	Funding  string `yaml:"funding"` // optional

	// SupplyFromTreasury reads total supply via the treasury's readSupply().
	SupplyFromTreasury bool `yaml:"supply_from_treasury"`
}

type IngestionConfig struct {
	StartBlock  uint64        `yaml:"start_block"`
	TargetSpan  uint64        `yaml:"target_span"`
	GrowAfter   int           `yaml:"grow_after"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	MaxRetries  int           `yaml:"max_retries"`
}

type StateConfig struct {
	Backend string `yaml:"backend"` // file|postgres|memory
	Dir     string `yaml:"dir"`
	DSN     string `yaml:"dsn"`
}

type MetricsConfig struct {
	Backend string `yaml:"backend"` // sqlite|postgres|clickhouse|memory
	DSN     string `yaml:"dsn"`
}

type LockConfig struct {
	Backend string        `yaml:"backend"` // file|postgres|redis|memory|none
	Name    string        `yaml:"name"`
	TTL     time.Duration `yaml:"ttl"`
	Dir     string        `yaml:"dir"`
	DSN     string        `yaml:"dsn"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type SubmitterConfig struct {
	PrivateKey string `yaml:"private_key"`
	ChainID    int64  `yaml:"chain_id"` // 0 asks the node
	GasLimit   uint64 `yaml:"gas_limit"`
	GasPrice   int64  `yaml:"gas_price"` // wei, 0 asks the node
	DryRun     bool   `yaml:"dry_run"`
}

type ServerConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	Schedule       string `yaml:"schedule"` // cron spec for schedule mode
	PushgatewayURL string `yaml:"pushgateway_url"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// Default returns a configuration with every optional field set.
func Default() *Config {
	return &Config{
		Chain: ChainConfig{
			Timeout:   30 * time.Second,
			RateLimit: 10,
			RateBurst: 5,
		},
		Ingestion: IngestionConfig{
			TargetSpan:  1000,
			GrowAfter:   3,
			BackoffBase: time.Second,
			MaxRetries:  5,
		},
		State:      StateConfig{Backend: BackendFile, Dir: "state"},
		Metrics:    MetricsConfig{Backend: BackendSQLite, DSN: "token_metrics.db"},
		Lock:       LockConfig{Backend: BackendFile, Name: "supply-controller", TTL: 30 * time.Minute, Dir: "state"},
		Controller: controller.DefaultParams(),
		Submitter: SubmitterConfig{
			GasLimit: 200000,
			GasPrice: 20_000_000_000,
		},
		Server: ServerConfig{
			ListenAddr: ":9090",
			Schedule:   "0 0 * * *",
		},
		Log: LogConfig{Level: "info", Encoding: "json"},
	}
}

// Load reads path (optional), expands ${VAR} references, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
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
	c.Chain.RPCURL = getEnv("RPC_URL", c.Chain.RPCURL)
	c.Token.Address = getEnv("TOKEN_ADDRESS", c.Token.Address)
	c.Token.Issuer = getEnv("ISSUER_ADDRESS", c.Token.Issuer)
	c.Token.Treasury = getEnv("TREASURY_ADDRESS", c.Token.Treasury)
	c.Token.Funding = getEnv("FUNDING_ADDRESS", c.Token.Funding)
	c.State.Backend = getEnv("STATE_BACKEND", c.State.Backend)
	c.State.Dir = getEnv("STATE_DIR", c.State.Dir)
	c.State.DSN = getEnv("STATE_DSN", c.State.DSN)
	c.Metrics.Backend = getEnv("METRICS_BACKEND", c.Metrics.Backend)
	c.Metrics.DSN = getEnv("METRICS_DSN", c.Metrics.DSN)
	c.Lock.Backend = getEnv("LOCK_BACKEND", c.Lock.Backend)
	c.Lock.RedisAddr = getEnv("REDIS_ADDR", c.Lock.RedisAddr)
	c.Lock.RedisPassword = getEnv("REDIS_PASSWORD", c.Lock.RedisPassword)
	c.Submitter.PrivateKey = getEnv("PRIVATE_KEY", c.Submitter.PrivateKey)
	c.Server.ListenAddr = getEnv("LISTEN_ADDR", c.Server.ListenAddr)
	c.Server.Schedule = getEnv("SCHEDULE", c.Server.Schedule)
	c.Server.PushgatewayURL = getEnv("PUSHGATEWAY_URL", c.Server.PushgatewayURL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Encoding = getEnv("LOG_ENCODING", c.Log.Encoding)

	var err error
	if c.Ingestion.StartBlock, err = getEnvUint("START_BLOCK", c.Ingestion.StartBlock); err != nil {
		return err
	}
	if c.Submitter.ChainID, err = getEnvInt("CHAIN_ID", c.Submitter.ChainID); err != nil {
		return err
	}
	if c.Submitter.DryRun, err = getEnvBool("DRY_RUN", c.Submitter.DryRun); err != nil {
		return err
	}
	return nil
}

// Validate reports every configuration problem found.
func (c *Config) Validate() error {
	var problems []string
	addr := func(name, value string, required bool) {
		if value == "" {
			if required {
				problems = append(problems, name+" is required")
			}
			return
		}
		if !common.IsHexAddress(value) {
			problems = append(problems, fmt.Sprintf("%s %q is not a hex address", name, value))
		}
	}

	if c.Chain.RPCURL == "" {
		problems = append(problems, "chain.rpc_url is required")
	}
	addr("token.address", c.Token.Address, true)
	addr("token.issuer", c.Token.Issuer, true)
	addr("token.treasury", c.Token.Treasury, true)
	addr("token.funding", c.Token.Funding, false)

	if c.Ingestion.TargetSpan == 0 {
		problems = append(problems, "ingestion.target_span must be positive")
	}
	if c.Ingestion.MaxRetries < 0 {
		problems = append(problems, "ingestion.max_retries must not be negative")
	}

	oneOf := func(name, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		problems = append(problems, fmt.Sprintf("%s %q must be one of %s", name, value, strings.Join(allowed, "|")))
	}
	oneOf("state.backend", c.State.Backend, BackendFile, BackendPostgres, BackendMemory)
	oneOf("metrics.backend", c.Metrics.Backend, BackendSQLite, BackendPostgres, BackendClickhouse, BackendMemory)
	oneOf("lock.backend", c.Lock.Backend, BackendFile, BackendPostgres, BackendRedis, BackendMemory, BackendNone)

	if c.State.Backend == BackendPostgres && c.State.DSN == "" {
		problems = append(problems, "state.dsn is required for postgres")
	}
	if c.Metrics.Backend != BackendMemory && c.Metrics.DSN == "" {
		problems = append(problems, "metrics.dsn is required")
	}
	if c.Lock.Backend == BackendRedis && c.Lock.RedisAddr == "" {
		problems = append(problems, "lock.redis_addr is required for redis")
	}

	p := c.Controller
	if p.DefaultThreshold <= 0 {
		problems = append(problems, "controller.default_threshold must be positive")
	}
	if p.PeriodDays <= 0 {
		problems = append(problems, "controller.period_days must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %w", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

// Address parses an already validated hex address; empty means zero.
func Address(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvUint(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvInt(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
