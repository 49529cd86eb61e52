//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// newTestClient starts an ephemeral Postgres container, applies migrations
// and returns a ready-to-use Client.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("qaorchd_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{DSN: connStr, MaxOpenConns: 5})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestPackageRepository_CreateGetUpdate(t *testing.T) {
	client := newTestClient(t)
	repo := NewPackageRepository(client.Pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	pkg := &models.Package{
		ID:        models.NewPackageID(),
		Name:      "pets API",
		BaseURL:   "https://example.com",
		Status:    models.StatusRequested,
		Config:    models.DefaultPackageConfig(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	specURL := "https://example.com/openapi.json"
	pkg.SpecURL = &specURL

	require.NoError(t, repo.Create(ctx, pkg))

	got, err := repo.Get(ctx, pkg.ID)
	require.NoError(t, err)
	require.Equal(t, pkg.Name, got.Name)
	require.Equal(t, pkg.Status, got.Status)
	require.Equal(t, pkg.Config.MaxScenarios, got.Config.MaxScenarios)

	got.Status = models.StatusSpecFetched
	got.SpecHash = "deadbeef"
	got.UpdatedAt = now.Add(time.Second)
	require.NoError(t, repo.Update(ctx, got))

	reloaded, err := repo.Get(ctx, pkg.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSpecFetched, reloaded.Status)
	require.Equal(t, "deadbeef", reloaded.SpecHash)
}

func TestPackageRepository_FindBySpecHash_NotFound(t *testing.T) {
	client := newTestClient(t)
	repo := NewPackageRepository(client.Pool)

	_, err := repo.FindBySpecHash(context.Background(), "nonexistent")
	require.ErrorIs(t, err, models.ErrNotFound)
}
