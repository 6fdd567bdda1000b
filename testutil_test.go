package main

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	container "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/djeraseit/parity/pkg/log"
)

// setupTestSqlite creates an in-memory SQLite DB for testing.
func setupTestSqlite(t testing.TB) *gorm.DB {
	t.Helper()

	uniqueDSN := fmt.Sprintf("file::memory:test%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(uniqueDSN), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, migrateSqlite(db))
	return db
}

// setupTestPostgres starts PostgreSQL in a container and applies the
// embedded migrations to it.
func setupTestPostgres(ctx context.Context, t testing.TB) (*gorm.DB, testcontainers.Container) {
	t.Helper()

	const dbName = "postgres"
	const dbUser = "postgres"
	const dbPassword = "postgres"

	postgresContainer, err := container.Run(ctx,
		"postgres:16-alpine",
		container.WithDatabase(dbName),
		container.WithUsername(dbUser),
		container.WithPassword(dbPassword),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			)))
	require.NoError(t, err)

	url, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dbConf, err := ParseConnectionString(url)
	require.NoError(t, err)

	db, err := ConnectToDB(dbConf, log.NewNoopLogger())
	require.NoError(t, err)

	return db, postgresContainer
}

// setupTestDB chooses SQLite or Postgres based on TEST_DB_DRIVER.
func setupTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	ctx := context.Background()
	switch os.Getenv("TEST_DB_DRIVER") {
	case "postgres":
		db, postgresContainer := setupTestPostgres(ctx, t)
		t.Cleanup(func() {
			if err := postgresContainer.Terminate(ctx); err != nil {
				t.Logf("failed to terminate PostgreSQL container: %v", err)
			}
		})
		return db
	default:
		return setupTestSqlite(t)
	}
}
