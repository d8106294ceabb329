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
	"github.com/quickwind/orchestrator/internal/tenant"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// getMigrationsPath returns the path to the database migrations directory
func getMigrationsPath() string {
	// Get the directory of this file
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	// Navigate from internal/tenant/postgres to internal/database/migrations
	parentDir := filepath.Dir(dir)      // internal/tenant
	parentDir = filepath.Dir(parentDir) // internal
	migrationsDir := filepath.Join(parentDir, "database", "migrations")
	return migrationsDir
}

func setupTestRepo(t *testing.T) (*Repository, *pgxpool.Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	// Start PostgreSQL container
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
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %s", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %s", err)
	}

	dsn := "postgres://testuser:testpass@" + host + ":" + port.Port() + "/testdb?sslmode=disable"

	// Run migrations
	migrationPath := "file://" + getMigrationsPath()
	m, err := migrate.New(
		migrationPath,
		dsn,
	)
	if err != nil {
		t.Fatalf("failed to create migrate instance: %s", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("failed to run migrations: %s", err)
	}

	// Create connection pool
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to create pool: %s", err)
	}

	logger, _ := zap.NewDevelopment()
	repo, err := New(pool, logger)
	if err != nil {
		t.Fatalf("failed to create repository: %s", err)
	}

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, pool, cleanup
}

// insertTestTenant seeds a tenant row directly, bypassing the repository:
// tenants are created externally, out of band, so the repository itself
// exposes no CreateTenant operation.
func insertTestTenant(t *testing.T, ctx context.Context, pool *pgxpool.Pool, slug string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO tenants (id, slug) VALUES ($1, $2)`,
		id, slug,
	)
	if err != nil {
		t.Fatalf("insert test tenant: %s", err)
	}
	return id
}

func insertTestAPIKey(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, keyHash, label string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO tenant_api_keys (id, tenant_id, key_hash, label) VALUES ($1, $2, $3, $4)`,
		id, tenantID, keyHash, label,
	)
	if err != nil {
		t.Fatalf("insert test api key: %s", err)
	}
	return id
}

func TestRepository_GetTenantByID(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	id := insertTestTenant(t, ctx, pool, "acme-corp")

	tn, err := repo.GetTenantByID(ctx, id)
	if err != nil {
		t.Fatalf("GetTenantByID() error = %v", err)
	}
	if tn.ID != id {
		t.Errorf("GetTenantByID() ID = %v, want %v", tn.ID, id)
	}
	if tn.Slug != "acme-corp" {
		t.Errorf("GetTenantByID() Slug = %v, want acme-corp", tn.Slug)
	}
	if tn.CreatedAt.IsZero() {
		t.Error("GetTenantByID() did not populate CreatedAt")
	}
}

func TestRepository_GetTenantByID_NotFound(t *testing.T) {
	repo, _, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := repo.GetTenantByID(ctx, uuid.New()); err != tenant.ErrTenantNotFound {
		t.Errorf("GetTenantByID() error = %v, want %v", err, tenant.ErrTenantNotFound)
	}
}

func TestRepository_GetTenantBySlug(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	id := insertTestTenant(t, ctx, pool, "umbrella-inc")

	tn, err := repo.GetTenantBySlug(ctx, "umbrella-inc")
	if err != nil {
		t.Fatalf("GetTenantBySlug() error = %v", err)
	}
	if tn.ID != id {
		t.Errorf("GetTenantBySlug() ID = %v, want %v", tn.ID, id)
	}
}

func TestRepository_GetTenantBySlug_NotFound(t *testing.T) {
	repo, _, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := repo.GetTenantBySlug(ctx, "nonexistent"); err != tenant.ErrTenantNotFound {
		t.Errorf("GetTenantBySlug() error = %v, want %v", err, tenant.ErrTenantNotFound)
	}
}

func TestRepository_SetDiscoveryURL(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	id := insertTestTenant(t, ctx, pool, "initech")

	if err := repo.SetDiscoveryURL(ctx, id, "https://initech.example.com/discovery"); err != nil {
		t.Fatalf("SetDiscoveryURL() error = %v", err)
	}

	tn, err := repo.GetTenantByID(ctx, id)
	if err != nil {
		t.Fatalf("GetTenantByID() error = %v", err)
	}
	if tn.DiscoveryURL != "https://initech.example.com/discovery" {
		t.Errorf("DiscoveryURL = %v, want https://initech.example.com/discovery", tn.DiscoveryURL)
	}
}

func TestRepository_SetDiscoveryURL_NotFound(t *testing.T) {
	repo, _, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	if err := repo.SetDiscoveryURL(ctx, uuid.New(), "https://example.com"); err != tenant.ErrTenantNotFound {
		t.Errorf("SetDiscoveryURL() error = %v, want %v", err, tenant.ErrTenantNotFound)
	}
}

func TestRepository_GetAPIKeyByHash(t *testing.T) {
	repo, pool, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenantID := insertTestTenant(t, ctx, pool, "hooli")
	hash := tenant.HashAPIKey("raw-secret-key")
	insertTestAPIKey(t, ctx, pool, tenantID, hash, "ci-pipeline")

	key, err := repo.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetAPIKeyByHash() error = %v", err)
	}
	if key.TenantID != tenantID {
		t.Errorf("GetAPIKeyByHash() TenantID = %v, want %v", key.TenantID, tenantID)
	}
	if key.Label != "ci-pipeline" {
		t.Errorf("GetAPIKeyByHash() Label = %v, want ci-pipeline", key.Label)
	}
}

func TestRepository_GetAPIKeyByHash_NotFound(t *testing.T) {
	repo, _, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := repo.GetAPIKeyByHash(ctx, "nonexistent-hash"); err != tenant.ErrAPIKeyNotFound {
		t.Errorf("GetAPIKeyByHash() error = %v, want %v", err, tenant.ErrAPIKeyNotFound)
	}
}
