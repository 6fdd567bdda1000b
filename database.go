package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/djeraseit/parity/pkg/log"
)

// DatabaseConfig selects the account store backend.
//
// To connect to Postgresql fill out all the fields. For sqlite only the
// driver is required: without KEYRING_DATABASE_NAME the database lives in
// memory and accounts are lost on restart.
type DatabaseConfig struct {
	Name     string `env:"KEYRING_DATABASE_NAME" env-default:""`
	Schema   string `env:"KEYRING_DATABASE_SCHEMA" env-default:""`
	Driver   string `env:"KEYRING_DATABASE_DRIVER" env-default:"sqlite"`
	Username string `env:"KEYRING_DATABASE_USERNAME" env-default:"postgres"`
	Password string `env:"KEYRING_DATABASE_PASSWORD" env-default:""`
	Host     string `env:"KEYRING_DATABASE_HOST" env-default:"localhost"`
	Port     string `env:"KEYRING_DATABASE_PORT" env-default:"5432"`
	Retries  int    `env:"KEYRING_DATABASE_RETRIES" env-default:"5"`
}

// ParseConnectionString turns a postgres:// URI or a file: sqlite path into
// a DatabaseConfig.
func ParseConnectionString(connStr string) (DatabaseConfig, error) {
	if strings.HasPrefix(connStr, "file:") {
		parts := strings.SplitN(connStr[5:], "?", 2)
		return DatabaseConfig{
			Name:    parts[0],
			Driver:  "sqlite",
			Retries: 1,
		}, nil
	}

	parsedURL, err := url.Parse(connStr)
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid connection string: %w", err)
	}

	if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}

	var username, password string
	if user := parsedURL.User; user != nil {
		username = user.Username()
		password, _ = user.Password()
	}

	port := parsedURL.Port()
	if port == "" {
		port = "5432"
	}

	retries := 5
	query := parsedURL.Query()
	if r := query.Get("retries"); r != "" {
		if retryVal, err := strconv.Atoi(r); err == nil {
			retries = retryVal
		}
	}

	return DatabaseConfig{
		Name:     strings.TrimPrefix(parsedURL.Path, "/"),
		Schema:   query.Get("search_path"),
		Driver:   "postgres",
		Username: username,
		Password: password,
		Host:     parsedURL.Hostname(),
		Port:     port,
		Retries:  retries,
	}, nil
}

// ConnectToDB opens the configured database and brings its schema up to date.
func ConnectToDB(cnf DatabaseConfig, logger log.Logger) (*gorm.DB, error) {
	logger = logger.WithName("database")

	switch cnf.Driver {
	case "postgres":
		return connectToPostgresql(cnf, logger)
	case "sqlite", "":
		return connectToSqlite(cnf, logger)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cnf.Driver)
	}
}

func connectToPostgresql(cnf DatabaseConfig, logger log.Logger) (*gorm.DB, error) {
	logger.Info("connecting to postgresql", "host", cnf.Host, "database", cnf.Name)
	err := withRetries(cnf.Retries, time.Second, logger, func() error {
		return ensurePostgresqlSchema(cnf, logger)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to ensure postgresql schema")
	}

	if err := migratePostgres(cnf, logger); err != nil {
		return nil, errors.Wrap(err, "failed to apply postgresql migrations")
	}

	dsn, err := postgresqlDbUrl(cnf)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig(cnf))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgresql")
	}

	return db, nil
}

func connectToSqlite(cnf DatabaseConfig, logger log.Logger) (*gorm.DB, error) {
	var dsn string
	if cnf.Name != "" {
		logger.Info("connecting to sqlite", "path", cnf.Name)
		dsn = fmt.Sprintf("file:%s?cache=shared", cnf.Name)
	} else {
		logger.Warn("connecting to in-memory sqlite, accounts will not survive a restart")
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cnf))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite")
	}

	if err := migrateSqlite(db); err != nil {
		return nil, errors.Wrap(err, "failed to migrate sqlite")
	}
	logger.Info("successfully auto-migrated")

	return db, nil
}

// withRetries calls fn up to attempts times, sleeping a growing delay between
// failures. Postgres may still be starting when the service comes up.
func withRetries(attempts int, delay time.Duration, logger log.Logger, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts {
			logger.Warn("database not ready, retrying", "attempt", i, "error", err)
			time.Sleep(delay * time.Duration(i))
		}
	}
	return err
}

func gormConfig(cnf DatabaseConfig) *gorm.Config {
	conf := &gorm.Config{}
	if cnf.Schema != "" {
		conf.NamingStrategy = schema.NamingStrategy{TablePrefix: cnf.Schema + "."}
	}
	return conf
}

func postgresqlDbUrl(cnf DatabaseConfig) (string, error) {
	if cnf.Driver != "postgres" {
		return "", fmt.Errorf("unsupported driver: %s", cnf.Driver)
	}

	dsn := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		cnf.Username, cnf.Password, cnf.Host, cnf.Port, cnf.Name,
	)
	if cnf.Schema != "" {
		dsn = fmt.Sprintf("%s search_path=%s", dsn, cnf.Schema)
	}

	return dsn, nil
}

func ensurePostgresqlSchema(cnf DatabaseConfig, logger log.Logger) error {
	if cnf.Schema == "" {
		logger.Debug("no schema specified, skipping schema creation")
		return nil
	}

	dbConf := cnf
	dbConf.Schema = ""
	dsn, err := postgresqlDbUrl(dbConf)
	if err != nil {
		return err
	}

	db, err := sqlx.Connect(dbConf.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	var exists bool
	if err := db.Get(&exists, "SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", cnf.Schema); err != nil {
		return errors.Wrap(err, "error while checking schema existence")
	}
	if exists {
		logger.Debug("schema already exists", "schema", cnf.Schema)
		return nil
	}

	if _, err = db.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(cnf.Schema)); err != nil {
		return errors.Wrap(err, "error while creating schema")
	}

	logger.Info("schema created", "schema", cnf.Schema)
	return nil
}

func migratePostgres(cnf DatabaseConfig, logger log.Logger) error {
	dsn, err := postgresqlDbUrl(cnf)
	if err != nil {
		return err
	}

	db, err := goose.OpenDBWithDriver(cnf.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if cnf.Schema != "" {
		if _, err := db.Exec("SET search_path TO " + pq.QuoteIdentifier(cnf.Schema)); err != nil {
			return errors.Wrap(err, "failed to set search path")
		}
	}

	logger.Info("applying database migrations")
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(cnf.Driver); err != nil {
		return err
	}
	if err := goose.Up(db, "config/migrations/"+cnf.Driver); err != nil {
		return err
	}

	logger.Info("applied migrations")
	return nil
}

func migrateSqlite(db *gorm.DB) error {
	return db.AutoMigrate(&AccountRecord{}, &AccountAuditLog{})
}
