//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hudson-blanoire/chroma-server/internal/store"
	"github.com/hudson-blanoire/chroma-server/internal/store/storetest"
)

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "chroma",
			"POSTGRES_PASSWORD": "chroma",
			"POSTGRES_DB":       "chroma",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}
	return fmt.Sprintf("postgres://chroma:chroma@%s:%s/chroma?sslmode=disable", host, port.Port())
}

func TestPostgresStore_ContainerCompliance(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(ctx, t)
	storetest.Run(t, func(t *testing.T) store.Store { return resetAll(t, dsn) })
}
