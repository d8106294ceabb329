package postgres

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/catalog"
)

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	parentDir := filepath.Dir(dir)
	parentDir = filepath.Dir(parentDir)
	return filepath.Join(parentDir, "database", "migrations")
}

func setupTestRepo(t *testing.T) (*Repository, *pgxpool.Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := "postgres://testuser:testpass@" + host + ":" + port.Port() + "/testdb?sslmode=disable"
	m, err := migrate.New("file://"+getMigrationsPath(), dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("failed to run migrations: %s", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	logger, _ := zap.NewDevelopment()
	repo, err := New(pool, logger)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return repo, pool, cleanup
}

func insertTestTenant(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO tenants (id, slug) VALUES ($1, $2)`, id, "tenant-"+id.String()[:8])
	require.NoError(t, err)
	return id
}

func TestRepository_ReplaceAllAndFindServiceTask(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool)

	entries := []catalog.Entry{
		{ExternalID: "notify-service", Name: "Notify Service", ServiceURL: "https://example.com/notify", Metadata: map[string]interface{}{"tier": "gold"}},
	}
	tasks := []catalog.ServiceTask{
		{EntryExternalID: "notify-service", ExternalID: "send-email", Name: "Send Email", URL: "https://example.com/notify/email"},
	}
	require.NoError(t, repo.ReplaceAll(ctx, tenantID, entries, tasks))

	got, err := repo.Get(ctx, tenantID, "notify-service")
	require.NoError(t, err)
	assert.Equal(t, "Notify Service", got.Name)
	assert.Equal(t, "gold", got.Metadata["tier"])

	task, err := repo.FindServiceTask(ctx, tenantID, "notify-service", "send-email")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/notify/email", task.URL)

	list, err := repo.List(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRepository_ReplaceAll_ClearsPriorGeneration(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool)

	require.NoError(t, repo.ReplaceAll(ctx, tenantID, []catalog.Entry{{ExternalID: "a", Name: "A", ServiceURL: "https://a"}}, nil))
	require.NoError(t, repo.ReplaceAll(ctx, tenantID, []catalog.Entry{{ExternalID: "b", Name: "B", ServiceURL: "https://b"}}, nil))

	_, err := repo.Get(ctx, tenantID, "a")
	assert.ErrorIs(t, err, catalog.ErrEntryNotFound)

	got, err := repo.Get(ctx, tenantID, "b")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Name)
}

func TestRepository_Get_NotFound(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool)

	_, err := repo.Get(ctx, tenantID, "missing")
	assert.ErrorIs(t, err, catalog.ErrEntryNotFound)
}
