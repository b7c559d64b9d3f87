package test_utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/budgetly/internal/config"
	"github.com/klokku/budgetly/internal/database"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const snapshotName = "budgetly-migrated"

// DB is a migrated Postgres container shared by the tests of one package.
type DB struct {
	container *postgres.PostgresContainer
	cfg       config.Database
}

// StartDB starts the container, applies all migrations and snapshots the migrated schema.
// Any failure ends the test binary.
func StartDB() *DB {
	ctx := context.Background()

	container, err := runContainer(ctx)
	if err != nil {
		log.Errorf("Failed to start postgres container: %v", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to read postgres container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("Failed to read postgres container port: %v", err)
	}
	log.Infof("Postgres container started at %s:%d", host, port.Int())

	cfg := config.Database{
		Host:     host,
		Port:     port.Int(),
		User:     "test_budgetly",
		Pass:     "test_budgetly",
		Name:     "budgetly",
		Schema:   "budgetly",
		MaxConns: 4,
	}
	if err := database.Migrate(cfg); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	if err := container.Snapshot(ctx, postgres.WithSnapshotName(snapshotName)); err != nil {
		log.Fatalf("Failed to snapshot postgres container: %v", err)
	}
	return &DB{container: container, cfg: cfg}
}

func runContainer(ctx context.Context) (*postgres.PostgresContainer, error) {
	devDir, err := database.FindDir("dev")
	if err != nil {
		return nil, fmt.Errorf("failed to find dev scripts: %w", err)
	}
	return postgres.Run(
		ctx, "postgres:18.1-alpine",
		postgres.WithInitScripts(filepath.Join(devDir, "init.sql")),
		postgres.WithDatabase("budgetly"),
		postgres.WithUsername("test_budgetly"),
		postgres.WithPassword("test_budgetly"),
		postgres.BasicWaitStrategies(),
	)
}

// Open returns a pool on the migrated schema. When t ends the pool is closed and the
// schema is restored from the snapshot, so every test starts from empty tables.
func (d *DB) Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := database.Open(ctx, d.cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Close()
		require.NoError(t, d.container.Restore(ctx, postgres.WithSnapshotName(snapshotName)))
	})
	return pool
}

func (d *DB) Terminate() {
	if err := testcontainers.TerminateContainer(d.container); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
}
