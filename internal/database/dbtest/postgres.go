//go:build integration

// Package dbtest starts a throwaway PostgreSQL for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/solosaving/backend/internal/database"
)

var (
	once sync.Once
	pool *pgxpool.Pool
	err  error
)

// Pool returns a migrated pool shared by the whole test binary. Tables are
// truncated before it is handed out.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	once.Do(func() {
		pool, err = start(context.Background())
	})
	if err != nil {
		t.Fatalf("postgres container failed: %v", err)
	}

	_, terr := pool.Exec(context.Background(),
		`TRUNCATE holdings, transactions, holding_histories, daily_snapshots, savings_goals CASCADE`)
	if terr != nil {
		t.Fatalf("truncating tables: %v", terr)
	}
	return pool
}

func start(ctx context.Context) (*pgxpool.Pool, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "solosaving",
			"POSTGRES_PASSWORD": "solosaving",
			"POSTGRES_DB":       "solosaving",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("get postgres host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("get postgres port: %w", err)
	}

	url := fmt.Sprintf("postgres://solosaving:solosaving@%s:%s/solosaving?sslmode=disable", host, port.Port())
	p, err := database.Connect(ctx, url, 5)
	if err != nil {
		container.Terminate(ctx)
		return nil, err
	}
	if _, err := database.RunMigrations(ctx, p, os.DirFS(migrationsDir())); err != nil {
		p.Close()
		container.Terminate(ctx)
		return nil, err
	}
	return p, nil
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "cmd", "solosaving", "migrations")
}
