package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/djeraseit/parity/pkg/log"
)

type Mode string

const (
	// ModeProduction serves key-backed accounts persisted in the database.
	ModeProduction Mode = "production"
	// ModeTest serves password-only accounts seeded from accounts.yaml.
	ModeTest Mode = "test"
)

const (
	configDirPathEnv     = "KEYRING_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
)

// ServerConfig holds the settings read from the environment.
type ServerConfig struct {
	Mode              Mode   `env:"KEYRING_MODE" env-default:"production"`
	SignerPrivateKey  string `env:"KEYRING_SIGNER_PRIVATE_KEY"`
	RPCListenAddr     string `env:"KEYRING_RPC_LISTEN_ADDR" env-default:":8000"`
	MetricsListenAddr string `env:"KEYRING_METRICS_LISTEN_ADDR" env-default:":4242"`

	// UnlockRPS and UnlockBurst bound unlock attempts per address.
	UnlockRPS   float64 `env:"KEYRING_UNLOCK_RPS" env-default:"1"`
	UnlockBurst int     `env:"KEYRING_UNLOCK_BURST" env-default:"5"`
	// HideUnknownAccounts makes unlock and sign answer the same way for
	// unknown accounts as for a wrong password or a locked account.
	HideUnknownAccounts bool `env:"KEYRING_HIDE_UNKNOWN_ACCOUNTS" env-default:"false"`
	BcryptCost          int  `env:"KEYRING_BCRYPT_COST" env-default:"10"`
}

// Config represents the overall application configuration.
type Config struct {
	configDirPath string
	server        ServerConfig
	dbConf        DatabaseConfig
	logConf       log.Config
}

// LoadConfig reads the .env file from the config directory and builds the
// configuration from the environment.
func LoadConfig(logger log.Logger) (*Config, error) {
	logger = logger.WithName("config")
	configDirPath := loadDotEnv(logger)

	var server ServerConfig
	if err := cleanenv.ReadEnv(&server); err != nil {
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}
	if server.Mode != ModeProduction && server.Mode != ModeTest {
		return nil, fmt.Errorf("invalid KEYRING_MODE value: %q", server.Mode)
	}
	if server.SignerPrivateKey == "" {
		return nil, fmt.Errorf("KEYRING_SIGNER_PRIVATE_KEY environment variable is required")
	}
	if server.UnlockRPS <= 0 || server.UnlockBurst <= 0 {
		return nil, fmt.Errorf("unlock rate limit must be positive: rps=%v burst=%d", server.UnlockRPS, server.UnlockBurst)
	}
	logger.Info("set mode", "value", server.Mode)

	dbConf, err := readDatabaseConfig()
	if err != nil {
		return nil, err
	}

	var logConf log.Config
	if err := cleanenv.ReadEnv(&logConf); err != nil {
		return nil, fmt.Errorf("failed to read log config: %w", err)
	}

	return &Config{
		configDirPath: configDirPath,
		server:        server,
		dbConf:        dbConf,
		logConf:       logConf,
	}, nil
}

// LoadDatabaseConfig loads only what the CLI commands need.
func LoadDatabaseConfig(logger log.Logger) (DatabaseConfig, error) {
	loadDotEnv(logger.WithName("config"))
	return readDatabaseConfig()
}

// loadDotEnv loads <config dir>/.env into the environment and returns the
// config directory.
func loadDotEnv(logger log.Logger) string {
	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	configDotEnvPath := filepath.Join(configDirPath, ".env")
	logger.Info("loading .env file", "path", configDotEnvPath)
	if err := godotenv.Load(configDotEnvPath); err != nil {
		logger.Warn(".env file not found")
	}
	return configDirPath
}

func readDatabaseConfig() (DatabaseConfig, error) {
	var dbConf DatabaseConfig
	if dbURL := os.Getenv("KEYRING_DATABASE_URL"); dbURL != "" {
		var err error
		dbConf, err = ParseConnectionString(dbURL)
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("failed to parse connection string: %w", err)
		}
		return dbConf, nil
	}

	if err := cleanenv.ReadEnv(&dbConf); err != nil {
		return DatabaseConfig{}, fmt.Errorf("failed to read database config: %w", err)
	}
	return dbConf, nil
}
