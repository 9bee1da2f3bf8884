package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/journalsync/internal/client/migrations"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/images"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/syncstate"
)

// Repositories bundles the local stores, all backed by one SQLite database.
type Repositories struct {
	Notes     notes.Repository
	Images    images.Repository
	SyncState syncstate.Repository
	DB        *sql.DB
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the local database, migrates it,
// and returns the repository set bound to it. The caller owns DB.Close.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Repositories{
		Notes:     notes.NewSQLiteRepository(db),
		Images:    images.NewSQLiteRepository(db),
		SyncState: syncstate.NewSQLiteRepository(db),
		DB:        db,
	}, nil
}
