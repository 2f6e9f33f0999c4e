package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"predictive-league/internal/models"
	"predictive-league/internal/services"
)

// Config holds all application configuration
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Server       ServerConfig       `yaml:"server"`
	App          AppConfig          `yaml:"app"`
	Log          LogConfig          `yaml:"log"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Confidential ConfidentialConfig `yaml:"confidential"`
	Keeper       KeeperConfig       `yaml:"keeper"`
}

// DatabaseConfig selects the ledger store. Driver is postgres, sqlite or bolt.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	Path     string `yaml:"path"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Type  string `yaml:"type"`
}

// LedgerConfig carries the protocol constants. Amounts are wei in decimal.
type LedgerConfig struct {
	MinEntryFee       string        `yaml:"min_entry_fee"`
	ChallengeBond     string        `yaml:"challenge_bond"`
	ChallengePeriod   time.Duration `yaml:"challenge_period"`
	MinDuration       time.Duration `yaml:"min_duration"`
	MaxDuration       time.Duration `yaml:"max_duration"`
	CancelFee         string        `yaml:"cancel_fee"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	Arbiter           string        `yaml:"arbiter"`
	ArbitrationPeriod time.Duration `yaml:"arbitration_period"`
	Treasury          string        `yaml:"treasury"`
	Contract          string        `yaml:"contract"`
}

// ConfidentialConfig selects the encrypted-weight boundary: commitment or gateway.
type ConfidentialConfig struct {
	Mode       string `yaml:"mode"`
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
	Secret     string `yaml:"secret"`
}

// KeeperConfig drives the background finalizer.
type KeeperConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	Address   string        `yaml:"address"`
}

func defaults() *Config {
	policy := services.DefaultPolicy()
	return &Config{
		Database: DatabaseConfig{
			Driver: "postgres",
			Host:   "localhost",
			Port:   "5432",
			User:   "postgres",
			DBName: "predictive_league",
			Path:   "league.db",
		},
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{Level: "info", Type: "json"},
		Ledger: LedgerConfig{
			MinEntryFee:     policy.MinEntryFee.String(),
			ChallengeBond:   policy.ChallengeBond.String(),
			ChallengePeriod: policy.ChallengePeriod,
			MinDuration:     policy.MinDuration,
			MaxDuration:     policy.MaxDuration,
			CancelFee:       "0",
			StaleAfter:      policy.StaleAfter,
		},
		Confidential: ConfidentialConfig{Mode: "commitment"},
		Keeper: KeeperConfig{
			Enabled:   true,
			Interval:  time.Minute,
			BatchSize: 50,
		},
	}
}

// Load reads defaults, then the YAML file named by CONFIG_FILE, then environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)

	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	c.App.JWTSecret = getEnv("JWT_SECRET", c.App.JWTSecret)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Type = getEnv("LOG_TYPE", c.Log.Type)

	c.Ledger.MinEntryFee = getEnv("LEDGER_MIN_ENTRY_FEE", c.Ledger.MinEntryFee)
	c.Ledger.ChallengeBond = getEnv("LEDGER_CHALLENGE_BOND", c.Ledger.ChallengeBond)
	c.Ledger.CancelFee = getEnv("LEDGER_CANCEL_FEE", c.Ledger.CancelFee)
	c.Ledger.Arbiter = getEnv("LEDGER_ARBITER", c.Ledger.Arbiter)
	c.Ledger.Treasury = getEnv("LEDGER_TREASURY", c.Ledger.Treasury)
	c.Ledger.Contract = getEnv("LEDGER_CONTRACT", c.Ledger.Contract)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LEDGER_CHALLENGE_PERIOD", &c.Ledger.ChallengePeriod},
		{"LEDGER_MIN_DURATION", &c.Ledger.MinDuration},
		{"LEDGER_MAX_DURATION", &c.Ledger.MaxDuration},
		{"LEDGER_STALE_AFTER", &c.Ledger.StaleAfter},
		{"LEDGER_ARBITRATION_PERIOD", &c.Ledger.ArbitrationPeriod},
		{"KEEPER_INTERVAL", &c.Keeper.Interval},
	}
	for _, d := range durations {
		if err := envDuration(d.key, d.dst); err != nil {
			return err
		}
	}

	c.Confidential.Mode = getEnv("CONFIDENTIAL_MODE", c.Confidential.Mode)
	c.Confidential.GatewayURL = getEnv("CONFIDENTIAL_GATEWAY_URL", c.Confidential.GatewayURL)
	c.Confidential.APIKey = getEnv("CONFIDENTIAL_API_KEY", c.Confidential.APIKey)
	c.Confidential.Secret = getEnv("CONFIDENTIAL_SECRET", c.Confidential.Secret)

	if v := os.Getenv("KEEPER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid KEEPER_ENABLED: %w", err)
		}
		c.Keeper.Enabled = enabled
	}
	if v := os.Getenv("KEEPER_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid KEEPER_BATCH_SIZE: %w", err)
		}
		c.Keeper.BatchSize = n
	}
	c.Keeper.Address = getEnv("KEEPER_ADDRESS", c.Keeper.Address)
	return nil
}

// Validate checks required fields and cross-field constraints
func (c *Config) Validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite", "bolt":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Confidential.Mode {
	case "commitment":
	case "gateway":
		if c.Confidential.GatewayURL == "" || c.Confidential.Secret == "" {
			return fmt.Errorf("gateway mode requires CONFIDENTIAL_GATEWAY_URL and CONFIDENTIAL_SECRET")
		}
	default:
		return fmt.Errorf("unsupported CONFIDENTIAL_MODE %q", c.Confidential.Mode)
	}
	if c.Keeper.Enabled && c.Keeper.Interval <= 0 {
		return fmt.Errorf("KEEPER_INTERVAL must be positive")
	}
	_, err := c.Ledger.Policy()
	return err
}

// Policy converts the ledger section into the service policy
func (l LedgerConfig) Policy() (services.Policy, error) {
	var (
		p   services.Policy
		err error
	)
	if p.MinEntryFee, err = models.ParseWei(l.MinEntryFee); err != nil {
		return p, fmt.Errorf("invalid min entry fee: %w", err)
	}
	if p.ChallengeBond, err = models.ParseWei(l.ChallengeBond); err != nil {
		return p, fmt.Errorf("invalid challenge bond: %w", err)
	}
	if p.ChallengeBond.IsZero() {
		return p, fmt.Errorf("challenge bond must be positive")
	}
	if l.CancelFee != "" {
		if p.CancelFee, err = models.ParseWei(l.CancelFee); err != nil {
			return p, fmt.Errorf("invalid cancel fee: %w", err)
		}
	}
	if l.ChallengePeriod <= 0 {
		return p, fmt.Errorf("challenge period must be positive")
	}
	if l.MinDuration <= 0 || l.MaxDuration < l.MinDuration {
		return p, fmt.Errorf("invalid duration bounds %s..%s", l.MinDuration, l.MaxDuration)
	}

	addresses := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"arbiter", l.Arbiter, &p.Arbiter},
		{"treasury", l.Treasury, &p.Treasury},
		{"contract", l.Contract, &p.Contract},
	}
	for _, a := range addresses {
		if a.raw == "" {
			continue
		}
		if !common.IsHexAddress(a.raw) {
			return p, fmt.Errorf("invalid %s address %q", a.name, a.raw)
		}
		*a.dst = common.HexToAddress(a.raw)
	}
	if !p.CancelFee.IsZero() && p.Treasury == (common.Address{}) {
		return p, fmt.Errorf("a cancel fee requires a treasury address")
	}
	if p.HasArbiter() && l.ArbitrationPeriod <= 0 {
		return p, fmt.Errorf("an arbiter requires a positive arbitration period")
	}

	p.ChallengePeriod = l.ChallengePeriod
	p.MinDuration = l.MinDuration
	p.MaxDuration = l.MaxDuration
	p.StaleAfter = l.StaleAfter
	p.ArbitrationPeriod = l.ArbitrationPeriod
	return p, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func envDuration(key string, dst *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
