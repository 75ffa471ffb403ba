package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrator накатывает схему бронирований и леджера через goose
type Migrator struct {
	provider *goose.Provider
	dir      string
	logger   *zap.Logger
}

func NewMigrator(pool *pgxpool.Pool, dir string, logger *zap.Logger) (*Migrator, error) {
	// goose нужен *sql.DB; открываем его поверх того же пула
	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool), os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("create goose provider for %s: %w", dir, err)
	}
	return &Migrator{provider: provider, dir: dir, logger: logger}, nil
}

// Run applies pending migrations and logs every applied file.
func (mg *Migrator) Run(ctx context.Context) error {
	results, err := mg.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations from %s: %w", mg.dir, err)
	}
	for _, r := range results {
		mg.logger.Info("Migration applied",
			zap.String("file", r.Source.Path),
			zap.Duration("took", r.Duration))
	}

	version, err := mg.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	mg.logger.Info("Schema is up to date", zap.Int64("version", version), zap.Int("applied", len(results)))
	return nil
}

// Close закрывает sql.DB провайдера; пул остаётся за main
func (mg *Migrator) Close() error {
	return mg.provider.Close()
}
