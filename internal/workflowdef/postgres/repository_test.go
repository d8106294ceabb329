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

	"github.com/quickwind/orchestrator/internal/workflowdef"
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

func TestRepository_UploadVersion_AssignsSequentialVersions(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool)

	v1, err := repo.UploadVersion(ctx, tenantID, "leave_request_v1", "Leave Request", "<xml/>", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	v2, err := repo.UploadVersion(ctx, tenantID, "leave_request_v1", "Leave Request", "<xml v2/>", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, v1.DefinitionID, v2.DefinitionID)
}

func TestRepository_GetByProcessKey(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool)

	_, err := repo.UploadVersion(ctx, tenantID, "onboarding", "Onboarding", "<xml/>", nil, nil)
	require.NoError(t, err)

	def, err := repo.GetByProcessKey(ctx, tenantID, "onboarding")
	require.NoError(t, err)
	assert.Equal(t, "onboarding", def.ProcessKey)
	assert.Equal(t, "Onboarding", def.Name)
}

func TestRepository_GetByProcessKey_NotFound(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool)

	_, err := repo.GetByProcessKey(ctx, tenantID, "missing")
	assert.ErrorIs(t, err, workflowdef.ErrDefinitionNotFound)
}

func TestRepository_GetVersion(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool)

	uploaded, err := repo.UploadVersion(ctx, tenantID, "leave_request_v1", "Leave Request", "<xml/>",
		[]interface{}{map[string]interface{}{"element_id": "u1", "form_key": "approve"}}, nil)
	require.NoError(t, err)

	fetched, err := repo.GetVersion(ctx, tenantID, "leave_request_v1", uploaded.Version)
	require.NoError(t, err)
	assert.Equal(t, "<xml/>", fetched.BPMNXML)
	require.Len(t, fetched.FormSchemaRefs, 1)
}

func TestRepository_GetVersion_NotFound(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool)

	_, err := repo.GetVersion(ctx, tenantID, "leave_request_v1", 99)
	assert.ErrorIs(t, err, workflowdef.ErrVersionNotFound)
}

func TestRepository_GetVersionByID(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool)

	uploaded, err := repo.UploadVersion(ctx, tenantID, "leave_request_v1", "Leave Request", "<xml/>", nil,
		[]interface{}{map[string]interface{}{"catalog_entry_id": "", "service_task_id": "ServiceTask_Notify"}})
	require.NoError(t, err)

	fetched, err := repo.GetVersionByID(ctx, tenantID, uploaded.ID)
	require.NoError(t, err)
	assert.Equal(t, uploaded.ID, fetched.ID)
	assert.Equal(t, "leave_request_v1", fetched.ProcessKey)
	require.Len(t, fetched.CatalogBindingPlaceholders, 1)
}

func TestRepository_GetVersionByID_NotFound(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool)

	_, err := repo.GetVersionByID(ctx, tenantID, uuid.New())
	assert.ErrorIs(t, err, workflowdef.ErrVersionNotFound)
}
