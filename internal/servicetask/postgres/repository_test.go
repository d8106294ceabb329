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

	"github.com/quickwind/orchestrator/internal/servicetask"
)

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	parentDir := filepath.Dir(dir)
	parentDir = filepath.Dir(parentDir)
	return filepath.Join(parentDir, "database", "migrations")
}

func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
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

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return pool, cleanup
}

func seedTenantAndInstance(t *testing.T, ctx context.Context, pool *pgxpool.Pool) (tenantID, instanceID uuid.UUID) {
	t.Helper()
	tenantID = uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO tenants (id, slug) VALUES ($1, $2)`, tenantID, "tenant-"+tenantID.String()[:8])
	require.NoError(t, err)

	definitionID := uuid.New()
	_, err = pool.Exec(ctx, `INSERT INTO workflow_definitions (id, tenant_id, process_key, name) VALUES ($1, $2, 'p1', 'P1')`, definitionID, tenantID)
	require.NoError(t, err)

	versionID := uuid.New()
	_, err = pool.Exec(ctx, `INSERT INTO workflow_definition_versions (id, tenant_id, definition_id, version, bpmn_xml) VALUES ($1, $2, $3, 1, '<xml/>')`, versionID, tenantID, definitionID)
	require.NoError(t, err)

	instanceID = uuid.New()
	_, err = pool.Exec(ctx, `INSERT INTO workflow_instances (id, tenant_id, definition_version_id, status, correlation_id, business_key) VALUES ($1, $2, $3, 'waiting', 'corr-1', 'bk-1')`, instanceID, tenantID, versionID)
	require.NoError(t, err)
	return tenantID, instanceID
}

func TestRepository_CreateIsIdempotentAndLists(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	repo, err := New(pool, logger)
	require.NoError(t, err)

	tenantID, instanceID := seedTenantAndInstance(t, ctx, pool)

	task := &servicetask.Task{
		TenantID: tenantID, WorkflowInstanceID: instanceID,
		TaskID: "ServiceTask_Notify", Name: "Notify", ElementID: "ServiceTask_Notify",
	}
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.Create(ctx, task))

	list, err := repo.List(ctx, tenantID, &instanceID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, servicetask.StatusPending, list[0].Status)

	got, err := repo.GetByID(ctx, tenantID, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "ServiceTask_Notify", got.TaskID)
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	repo, err := New(pool, logger)
	require.NoError(t, err)

	tenantID, _ := seedTenantAndInstance(t, ctx, pool)
	_, err = repo.GetByID(ctx, tenantID, uuid.New())
	assert.ErrorIs(t, err, servicetask.ErrNotFound)
}

func TestRepository_ExistingTaskIDs(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	repo, err := New(pool, logger)
	require.NoError(t, err)

	tenantID, instanceID := seedTenantAndInstance(t, ctx, pool)
	require.NoError(t, repo.Create(ctx, &servicetask.Task{TenantID: tenantID, WorkflowInstanceID: instanceID, TaskID: "ServiceTask_A"}))

	existing, err := repo.ExistingTaskIDs(ctx, tenantID, instanceID)
	require.NoError(t, err)
	assert.True(t, existing["ServiceTask_A"])
	assert.False(t, existing["ServiceTask_B"])
}
