package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/api"
	auditpg "github.com/quickwind/orchestrator/internal/audit/postgres"
	catalogpg "github.com/quickwind/orchestrator/internal/catalog/postgres"
	"github.com/quickwind/orchestrator/internal/config"
	"github.com/quickwind/orchestrator/internal/database"
	"github.com/quickwind/orchestrator/internal/instance"
	instancepg "github.com/quickwind/orchestrator/internal/instance/postgres"
	"github.com/quickwind/orchestrator/internal/logger"
	"github.com/quickwind/orchestrator/internal/servicetask"
	servicetaskpg "github.com/quickwind/orchestrator/internal/servicetask/postgres"
	tenantpg "github.com/quickwind/orchestrator/internal/tenant/postgres"
	"github.com/quickwind/orchestrator/internal/usertask"
	usertaskpg "github.com/quickwind/orchestrator/internal/usertask/postgres"
	workflowdefpg "github.com/quickwind/orchestrator/internal/workflowdef/postgres"
)

func main() {
	v := config.NewViperInstance()
	if err := config.BindEnvironmentVariables(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind environment variables: %v\n", err)
		os.Exit(1)
	}

	configFile, err := config.FindConfigFile("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find config file: %v\n", err)
		os.Exit(1)
	}
	if configFile != "" {
		if err := config.LoadConfigFile(v, configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config file: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting workflow orchestrator")

	ctx := context.Background()

	dbProvider, err := database.NewProvider(ctx, &cfg.Database, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbProvider.Close()

	if err := database.RunMigrations(cfg.Database.MigrationConnectionString(), log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	pool, ok := dbProvider.Pool().(*pgxpool.Pool)
	if !ok {
		log.Fatal("database provider is not a pgxpool.Pool")
	}

	tenantRepo, err := tenantpg.New(pool, log)
	if err != nil {
		log.Fatal("failed to initialize tenant repository", zap.Error(err))
	}
	defRepo, err := workflowdefpg.New(pool, log)
	if err != nil {
		log.Fatal("failed to initialize workflow definition repository", zap.Error(err))
	}
	catalogRepo, err := catalogpg.New(pool, log)
	if err != nil {
		log.Fatal("failed to initialize catalog repository", zap.Error(err))
	}
	auditRepo, err := auditpg.New(pool, log)
	if err != nil {
		log.Fatal("failed to initialize audit repository", zap.Error(err))
	}
	instanceRepo, err := instancepg.New(pool, log)
	if err != nil {
		log.Fatal("failed to initialize instance repository", zap.Error(err))
	}
	userTaskRepo, err := usertaskpg.New(pool, log)
	if err != nil {
		log.Fatal("failed to initialize user task repository", zap.Error(err))
	}
	serviceTaskRepo, err := servicetaskpg.New(pool, log)
	if err != nil {
		log.Fatal("failed to initialize service task repository", zap.Error(err))
	}

	orchestrator := instance.NewOrchestrator(instanceRepo, userTaskRepo, serviceTaskRepo, catalogRepo, defRepo, auditRepo, log)
	userTaskController := usertask.NewController(pool, log)
	serviceTaskDispatcher := servicetask.NewDispatcher(pool, catalogRepo, userTaskRepo, serviceTaskRepo, defRepo, auditRepo, tenantRepo, log)

	srv := api.New(&cfg.HTTP, dbProvider, api.Dependencies{
		TenantRepo:      tenantRepo,
		DefRepo:         defRepo,
		CatalogRepo:     catalogRepo,
		AuditRepo:       auditRepo,
		UserTaskRepo:    userTaskRepo,
		ServiceTaskRepo: serviceTaskRepo,
		Orchestrator:    orchestrator,
		UserTasks:       userTaskController,
		ServiceTasks:    serviceTaskDispatcher,
	}, log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case <-sigCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	log.Info("workflow orchestrator stopped")
}
