// Package sqlstore implements the photo repository over database/sql for both
// supported dialects. Queries are written with "?" placeholders and rebound
// for PostgreSQL.
package sqlstore

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// maxIDsPerQuery keeps IN lists well under the bind-variable limits of both
// drivers (32766 on SQLite, 65535 on PostgreSQL).
const maxIDsPerQuery = 500

const photoColumns = `id, file_name, content_hash, source_path, companion_path, library_path, captured_at, camera_model, lens, focal_length_mm, iso, aperture, shutter_seconds, category, tags, caption, is_selected, created_at, updated_at`

type PhotoRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewPhotoRepository(db *sql.DB, dialect Dialect) *PhotoRepository {
	return &PhotoRepository{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *PhotoRepository) DB() *sql.DB {
	return r.db
}

func (r *PhotoRepository) rebind(query string) string {
	if r.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *PhotoRepository) UpsertByHash(ctx context.Context, photo *domain.Photo) (*domain.Photo, bool, error) {
	if photo == nil || photo.ContentHash == "" {
		return nil, false, domain.WrapError(domain.ErrInvalidInput, "upsert photo", errors.New("content hash is required"))
	}
	tagsJSON, err := encodeTags(photo.Tags)
	if err != nil {
		return nil, false, err
	}
	category := photo.Category
	if category == "" {
		category = domain.CategoryUnclassified
	}
	now := r.now()

	row := r.db.QueryRowContext(ctx, r.rebind(`
INSERT INTO photos (
	file_name, content_hash, source_path, companion_path, library_path, captured_at, camera_model, lens,
	focal_length_mm, iso, aperture, shutter_seconds, category, tags, caption, is_selected, created_at, updated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (content_hash) DO NOTHING
RETURNING id
`),
		photo.FileName, photo.ContentHash, photo.SourcePath, photo.CompanionPath, photo.LibraryPath, utcPtr(photo.CapturedAt),
		photo.CameraModel, photo.Lens, photo.FocalLengthMM, photo.ISO, photo.Aperture, photo.ShutterSeconds,
		string(category), tagsJSON, photo.Caption, photo.IsSelected, now, now,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existing, getErr := r.GetByHash(ctx, photo.ContentHash)
			if getErr != nil {
				return nil, false, fmt.Errorf("load existing photo: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert photo: %w", err)
	}

	created := *photo
	created.ID = id
	created.Category = category
	if created.Tags == nil {
		created.Tags = []string{}
	}
	created.CapturedAt = utcPtr(photo.CapturedAt)
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, true, nil
}

func (r *PhotoRepository) GetByID(ctx context.Context, id int64) (*domain.Photo, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+photoColumns+` FROM photos WHERE id = ?`), id)
	photo, err := scanPhoto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get photo", fmt.Errorf("photo id=%d", id))
		}
		return nil, fmt.Errorf("scan photo: %w", err)
	}
	return &photo, nil
}

func (r *PhotoRepository) GetByHash(ctx context.Context, hash string) (*domain.Photo, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+photoColumns+` FROM photos WHERE content_hash = ?`), hash)
	photo, err := scanPhoto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get photo", fmt.Errorf("photo hash=%s", hash))
		}
		return nil, fmt.Errorf("scan photo: %w", err)
	}
	return &photo, nil
}

func (r *PhotoRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.Photo, error) {
	out := make([]domain.Photo, 0, len(ids))
	for chunk := range slices.Chunk(ids, maxIDsPerQuery) {
		in, args := inClause(chunk)
		photos, err := r.queryPhotos(ctx, `SELECT `+photoColumns+` FROM photos WHERE id IN `+in+` ORDER BY id`, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, photos...)
	}
	slices.SortFunc(out, func(a, b domain.Photo) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *PhotoRepository) UpdateFields(ctx context.Context, id int64, update domain.PhotoUpdate) (*domain.Photo, error) {
	sets, args, err := r.setClause(update)
	if err != nil {
		return nil, err
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE photos SET `+sets+` WHERE id = ?`), args...)
	if err != nil {
		return nil, fmt.Errorf("update photo: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update photo rows affected: %w", err)
	}
	if affected == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "update photo", fmt.Errorf("photo id=%d", id))
	}
	return r.GetByID(ctx, id)
}

func (r *PhotoRepository) BatchUpdate(ctx context.Context, ids []int64, update domain.PhotoUpdate) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	sets, setArgs, err := r.setClause(update)
	if err != nil {
		return 0, err
	}
	return r.execByIDs(ctx, "batch update photos", ids, func(in string, idArgs []any) (string, []any) {
		return `UPDATE photos SET ` + sets + ` WHERE id IN ` + in, append(slices.Clip(setArgs), idArgs...)
	})
}

func (r *PhotoRepository) BatchDelete(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.execByIDs(ctx, "batch delete photos", ids, func(in string, idArgs []any) (string, []any) {
		return `DELETE FROM photos WHERE id IN ` + in, idArgs
	})
}

// execByIDs runs one statement per id chunk inside a single transaction and
// returns the total rows affected.
func (r *PhotoRepository) execByIDs(ctx context.Context, op string, ids []int64, build func(in string, idArgs []any) (string, []any)) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	total := 0
	for chunk := range slices.Chunk(ids, maxIDsPerQuery) {
		query, args := build(inClause(chunk))
		res, err := tx.ExecContext(ctx, r.rebind(query), args...)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%s rows affected: %w", op, err)
		}
		total += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", op, err)
	}
	return total, nil
}

func (r *PhotoRepository) List(ctx context.Context, filter domain.PhotoFilter) ([]domain.Photo, int, error) {
	filter = filter.Normalize()
	where, args := whereClause(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM photos`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count photos: %w", err)
	}

	pageArgs := append(append([]any{}, args...), filter.PageSize, filter.Offset())
	photos, err := r.queryPhotos(ctx, `SELECT `+photoColumns+` FROM photos`+where+`
ORDER BY captured_at IS NULL, captured_at DESC, id DESC
LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return photos, total, nil
}

func (r *PhotoRepository) ListForStats(ctx context.Context, window domain.DateRange) ([]domain.Photo, error) {
	where, args := whereClause(domain.PhotoFilter{Range: window})
	return r.queryPhotos(ctx, `SELECT `+photoColumns+` FROM photos`+where+` ORDER BY id`, args...)
}

func (r *PhotoRepository) ListUnorganized(ctx context.Context) ([]domain.Photo, error) {
	return r.queryPhotos(ctx, `SELECT `+photoColumns+` FROM photos WHERE library_path IS NULL ORDER BY id`)
}

func (r *PhotoRepository) queryPhotos(ctx context.Context, query string, args ...any) ([]domain.Photo, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Photo, 0)
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out = append(out, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return out, nil
}

func (r *PhotoRepository) setClause(update domain.PhotoUpdate) (string, []any, error) {
	if update.Empty() {
		return "", nil, domain.WrapError(domain.ErrInvalidInput, "update photo", errors.New("no fields to update"))
	}

	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if update.Category != nil {
		if !update.Category.Valid() {
			return "", nil, domain.WrapError(domain.ErrInvalidInput, "update photo", fmt.Errorf("unknown category %q", *update.Category))
		}
		add("category", string(*update.Category))
	}
	if update.Tags != nil {
		tagsJSON, err := encodeTags(*update.Tags)
		if err != nil {
			return "", nil, err
		}
		add("tags", tagsJSON)
	}
	if update.Caption != nil {
		add("caption", *update.Caption)
	}
	if update.IsSelected != nil {
		add("is_selected", *update.IsSelected)
	}
	if update.LibraryPath != nil {
		add("library_path", *update.LibraryPath)
	}
	if update.SourcePath != nil {
		add("source_path", *update.SourcePath)
	}
	if update.CompanionPath != nil {
		add("companion_path", nullIfEmpty(*update.CompanionPath))
	}
	add("updated_at", r.now())
	return strings.Join(sets, ", "), args, nil
}

func whereClause(filter domain.PhotoFilter) (string, []any) {
	conds := make([]string, 0, 8)
	args := make([]any, 0, 8)

	if !filter.Range.From.IsZero() {
		conds = append(conds, "captured_at >= ?")
		args = append(args, filter.Range.From.UTC())
	}
	if !filter.Range.To.IsZero() {
		conds = append(conds, "captured_at <= ?")
		args = append(args, filter.Range.To.UTC())
	}
	if filter.Category != nil {
		conds = append(conds, "category = ?")
		args = append(args, string(*filter.Category))
	}
	if filter.IsSelected != nil {
		conds = append(conds, "is_selected = ?")
		args = append(args, *filter.IsSelected)
	}
	if filter.FocalMin != nil {
		conds = append(conds, "focal_length_mm >= ?")
		args = append(args, *filter.FocalMin)
	}
	if filter.FocalMax != nil {
		conds = append(conds, "focal_length_mm <= ?")
		args = append(args, *filter.FocalMax)
	}
	if filter.ISOMin != nil {
		conds = append(conds, "iso >= ?")
		args = append(args, *filter.ISOMin)
	}
	if filter.ISOMax != nil {
		conds = append(conds, "iso <= ?")
		args = append(args, *filter.ISOMax)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func inClause(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(marks, ",") + ")", args
}

type photoScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row photoScanner) (domain.Photo, error) {
	var (
		p             domain.Photo
		companionPath sql.NullString
		libraryPath   sql.NullString
		capturedAt    sql.NullTime
		cameraModel   sql.NullString
		lens          sql.NullString
		focal         sql.NullFloat64
		iso           sql.NullInt64
		aperture      sql.NullFloat64
		shutter       sql.NullFloat64
		category      string
		tagsRaw       []byte
		caption       sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.FileName, &p.ContentHash, &p.SourcePath, &companionPath, &libraryPath, &capturedAt,
		&cameraModel, &lens, &focal, &iso, &aperture, &shutter, &category, &tagsRaw, &caption,
		&p.IsSelected, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Photo{}, err
	}

	p.CompanionPath = nullString(companionPath)
	p.LibraryPath = nullString(libraryPath)
	if capturedAt.Valid {
		t := capturedAt.Time
		p.CapturedAt = &t
	}
	p.CameraModel = nullString(cameraModel)
	p.Lens = nullString(lens)
	p.FocalLengthMM = nullFloat(focal)
	if iso.Valid {
		n := int(iso.Int64)
		p.ISO = &n
	}
	p.Aperture = nullFloat(aperture)
	p.ShutterSeconds = nullFloat(shutter)
	p.Category = domain.Category(category)
	p.Caption = nullString(caption)

	p.Tags = []string{}
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &p.Tags); err != nil {
			return domain.Photo{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return p, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(raw), nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
