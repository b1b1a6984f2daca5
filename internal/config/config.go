// Package config provides configuration management for the portfolio engine.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/portfolio-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Transfer TransferConfig
	Oracle   OracleConfig
	Logging  LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
	RPS  int // Requests per second per caller
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	PriceTTL       time.Duration
}

// EngineConfig holds the state-transition engine parameters
type EngineConfig struct {
	// MinAccrualInterval is the minimum elapsed time between fee accruals;
	// calls inside the interval are no-ops
	MinAccrualInterval time.Duration
	// DefaultTolerance is the rebalance deviation tolerance used when the
	// caller does not supply one
	DefaultTolerance decimal.Decimal
	// RiskPolicy controls gating of mutations while risk bounds are violated
	RiskPolicy types.RiskPolicy
	// FeeRecipient is the account credited by fee accruals
	FeeRecipient string
	// BonusThreshold and BonusRate configure the dynamic performance bonus
	BonusThreshold decimal.Decimal
	BonusRate      decimal.Decimal
	// FlashLoanFeeRate is the flat fee rate charged on flash loans
	FlashLoanFeeRate decimal.Decimal
	// WithdrawalTTL is the default expiry window for multisig requests
	WithdrawalTTL time.Duration
}

// TransferConfig holds the transfer collaborator configuration. An empty
// RPCEndpoint selects the logging executor instead of the EVM one.
type TransferConfig struct {
	RPCEndpoint string
	PrivateKey  string
	// TokenContracts maps asset ids to ERC-20 contract addresses
	TokenContracts map[string]string
	GasLimit       uint64
}

// OracleConfig holds the price oracle collaborator configuration
type OracleConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			RPS:  getEnvAsInt("SERVER_RPS", 100),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "portfolio_engine"),
				User:           getEnv("POSTGRES_USER", "engine"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 100),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "portfolio_engine"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
				PriceTTL:       getEnvAsDuration("REDIS_PRICE_TTL", 30*time.Second),
			},
		},
		Engine: EngineConfig{
			MinAccrualInterval: getEnvAsDuration("ENGINE_MIN_ACCRUAL_INTERVAL", time.Hour),
			DefaultTolerance:   getEnvAsDecimal("ENGINE_DEFAULT_TOLERANCE", "0.05"),
			RiskPolicy:         types.RiskPolicy(getEnv("ENGINE_RISK_POLICY", string(types.RiskPolicyStrict))),
			FeeRecipient:       getEnv("ENGINE_FEE_RECIPIENT", "fee-collector"),
			BonusThreshold:     getEnvAsDecimal("ENGINE_BONUS_THRESHOLD", "0"),
			BonusRate:          getEnvAsDecimal("ENGINE_BONUS_RATE", "0.05"),
			FlashLoanFeeRate:   getEnvAsDecimal("ENGINE_FLASH_LOAN_FEE_RATE", "0.0009"),
			WithdrawalTTL:      getEnvAsDuration("ENGINE_WITHDRAWAL_TTL", 72*time.Hour),
		},
		Transfer: TransferConfig{
			RPCEndpoint:    getEnv("TRANSFER_RPC_ENDPOINT", ""),
			PrivateKey:     getEnv("TRANSFER_PRIVATE_KEY", ""),
			TokenContracts: getEnvAsStringMap("TRANSFER_TOKEN_CONTRACTS"),
			GasLimit:       uint64(getEnvAsInt("TRANSFER_GAS_LIMIT", 90000)), // #nosec G115 - bounded default
		},
		Oracle: OracleConfig{
			BaseURL: getEnv("ORACLE_BASE_URL", ""),
			APIKey:  getEnv("ORACLE_API_KEY", ""),
			Timeout: getEnvAsDuration("ORACLE_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the engine parameters for internally consistent values
func (c *Config) Validate() error {
	if c.Engine.MinAccrualInterval <= 0 {
		return fmt.Errorf("ENGINE_MIN_ACCRUAL_INTERVAL must be positive")
	}
	if c.Engine.DefaultTolerance.IsNegative() {
		return fmt.Errorf("ENGINE_DEFAULT_TOLERANCE must not be negative")
	}
	switch c.Engine.RiskPolicy {
	case types.RiskPolicyStrict, types.RiskPolicyLenient:
	default:
		return fmt.Errorf("ENGINE_RISK_POLICY must be %q or %q",
			types.RiskPolicyStrict, types.RiskPolicyLenient)
	}
	if c.Engine.FlashLoanFeeRate.IsNegative() {
		return fmt.Errorf("ENGINE_FLASH_LOAN_FEE_RATE must not be negative")
	}
	if c.Engine.WithdrawalTTL <= 0 {
		return fmt.Errorf("ENGINE_WITHDRAWAL_TTL must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringMap parses an environment variable of the form
// "key1=value1,key2=value2" into a map. Malformed pairs are skipped.
func getEnvAsStringMap(key string) map[string]string {
	result := map[string]string{}
	for _, pair := range strings.Split(getEnv(key, ""), ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		result[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return result
}

// getEnvAsDecimal gets an environment variable as a decimal with a default value
func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	valueStr := getEnv(key, defaultValue)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		value, _ = decimal.NewFromString(defaultValue)
	}
	return value
}
