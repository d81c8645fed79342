package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/repository/sqlstore"
)

type PhotoRepository struct {
	*sqlstore.PhotoRepository
	db *sql.DB
}

func NewPhotoRepository(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{
		PhotoRepository: sqlstore.NewPhotoRepository(db, sqlstore.SQLite),
		db:              db,
	}
}

// OpenDB opens the database file in WAL mode, creating its directory if needed.
func OpenDB(path string) (*sql.DB, error) {
	if path == "" {
		path = "./data/photos.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	// One writer at a time; WAL lets readers proceed.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PhotoRepository) EnsureSchema(ctx context.Context) error {
	const query = `
CREATE TABLE IF NOT EXISTS photos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	source_path TEXT NOT NULL,
	companion_path TEXT,
	library_path TEXT,
	captured_at TIMESTAMP,
	camera_model TEXT,
	lens TEXT,
	focal_length_mm REAL,
	iso INTEGER,
	aperture REAL,
	shutter_seconds REAL,
	category TEXT NOT NULL DEFAULT 'unclassified',
	tags TEXT NOT NULL DEFAULT '[]',
	caption TEXT,
	is_selected BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_photos_captured_at ON photos(captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_photos_category ON photos(category);
CREATE INDEX IF NOT EXISTS idx_photos_is_selected ON photos(is_selected);
`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	return nil
}
