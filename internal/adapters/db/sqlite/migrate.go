package sqlite

import (
	"context"
	"embed"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies every pending embedded migration and logs each one.
func RunMigrations(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	dir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, dir)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		log.Info().Int64("version", res.Source.Version).Dur("took", res.Duration).Msg("migration applied")
	}
	return nil
}
