package database

import (
	"context"

	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/config"
	"github.com/quickwind/orchestrator/internal/database/providers/postgres"
)

// NewProvider creates the PostgreSQL database provider.
func NewProvider(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (Provider, error) {
	logger = logger.With(zap.String("component", "database-factory"))
	logger.Info("initializing PostgreSQL provider")
	return postgres.New(ctx, cfg, logger)
}
