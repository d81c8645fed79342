package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/repository/sqlstore"
)

type PhotoRepository struct {
	*sqlstore.PhotoRepository
	db *sql.DB
}

func NewPhotoRepository(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{
		PhotoRepository: sqlstore.NewPhotoRepository(db, sqlstore.Postgres),
		db:              db,
	}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PhotoRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS photos (
	id BIGSERIAL PRIMARY KEY,
	file_name TEXT NOT NULL,
	content_hash CHAR(40) NOT NULL UNIQUE,
	source_path TEXT NOT NULL,
	companion_path TEXT,
	library_path TEXT,
	captured_at TIMESTAMPTZ,
	camera_model TEXT,
	lens TEXT,
	focal_length_mm DOUBLE PRECISION,
	iso INTEGER,
	aperture DOUBLE PRECISION,
	shutter_seconds DOUBLE PRECISION,
	category TEXT NOT NULL DEFAULT 'unclassified',
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	caption TEXT,
	is_selected BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_photos_captured_at ON photos(captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_photos_category ON photos(category);
CREATE INDEX IF NOT EXISTS idx_photos_is_selected ON photos(is_selected);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
