package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/showsync/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/showsync/internal/showstate/storage"
	"github.com/louisbranch/showsync/internal/showstate/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for show state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a show-state SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ListLights returns every light record ordered by participant name.
func (s *Store) ListLights(ctx context.Context) ([]storage.LightRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT name, realname, mode, created_at, updated_at
FROM lights
ORDER BY name ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list lights: %w", err)
	}
	defer rows.Close()

	var results []storage.LightRecord
	for rows.Next() {
		record, scanErr := scanLight(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan light row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate light rows: %w", err)
	}
	return results, nil
}

// UpsertLight creates or updates the light record keyed on participant name
// and returns the post-write row. The original creation time is preserved on
// update.
func (s *Store) UpsertLight(ctx context.Context, record storage.LightRecord) (storage.LightRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.LightRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.LightRecord{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeLightRecord(record)
	if err != nil {
		return storage.LightRecord{}, err
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO lights (name, realname, mode, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	realname = excluded.realname,
	mode = excluded.mode,
	updated_at = excluded.updated_at
`,
		normalized.Name,
		normalized.RealName,
		string(normalized.Mode),
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	); err != nil {
		return storage.LightRecord{}, fmt.Errorf("upsert light: %w", err)
	}
	return s.getLightByName(ctx, normalized.Name)
}

// ListPicks returns every pick record in creation order.
func (s *Store) ListPicks(ctx context.Context) ([]storage.PickRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT name, pick, show, created_at, updated_at
FROM picks
ORDER BY created_at ASC, name ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list picks: %w", err)
	}
	defer rows.Close()

	var results []storage.PickRecord
	for rows.Next() {
		record, scanErr := scanPick(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan pick row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pick rows: %w", err)
	}
	return results, nil
}

// UpsertPick creates or updates the pick record keyed on participant name and
// returns the post-write row. The original creation time and visibility are
// preserved on update.
func (s *Store) UpsertPick(ctx context.Context, record storage.PickRecord) (storage.PickRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.PickRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PickRecord{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizePickRecord(record)
	if err != nil {
		return storage.PickRecord{}, err
	}

	show := 0
	if normalized.Show {
		show = 1
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO picks (name, pick, show, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	pick = excluded.pick,
	updated_at = excluded.updated_at
`,
		normalized.Name,
		normalized.Pick,
		show,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	); err != nil {
		return storage.PickRecord{}, fmt.Errorf("upsert pick: %w", err)
	}
	return s.getPickByName(ctx, normalized.Name)
}

// SetPickVisibility updates the show flag on an existing pick. A missing name
// yields storage.ErrNotFound.
func (s *Store) SetPickVisibility(ctx context.Context, name string, show bool, updatedAt time.Time) (storage.PickRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.PickRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PickRecord{}, fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.PickRecord{}, fmt.Errorf("participant name is required")
	}
	if updatedAt.IsZero() {
		return storage.PickRecord{}, fmt.Errorf("updated_at is required")
	}

	showValue := 0
	if show {
		showValue = 1
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE picks
SET show = ?, updated_at = ?
WHERE name = ?
`, showValue, toMillis(updatedAt.UTC()), name)
	if err != nil {
		return storage.PickRecord{}, fmt.Errorf("set pick visibility: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.PickRecord{}, fmt.Errorf("set pick visibility rows affected: %w", err)
	}
	if affected == 0 {
		return storage.PickRecord{}, storage.ErrNotFound
	}
	return s.getPickByName(ctx, name)
}

func (s *Store) getLightByName(ctx context.Context, name string) (storage.LightRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT name, realname, mode, created_at, updated_at
FROM lights
WHERE name = ?
`, name)
	record, err := scanLight(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.LightRecord{}, storage.ErrNotFound
		}
		return storage.LightRecord{}, fmt.Errorf("get light by name: %w", err)
	}
	return record, nil
}

func (s *Store) getPickByName(ctx context.Context, name string) (storage.PickRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT name, pick, show, created_at, updated_at
FROM picks
WHERE name = ?
`, name)
	record, err := scanPick(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PickRecord{}, storage.ErrNotFound
		}
		return storage.PickRecord{}, fmt.Errorf("get pick by name: %w", err)
	}
	return record, nil
}

type scanner func(dest ...any) error

func normalizeLightRecord(record storage.LightRecord) (storage.LightRecord, error) {
	record.Name = strings.TrimSpace(record.Name)
	record.RealName = strings.TrimSpace(record.RealName)
	record.Mode = storage.LightMode(strings.TrimSpace(string(record.Mode)))
	if record.Name == "" {
		return storage.LightRecord{}, fmt.Errorf("participant name is required")
	}
	if record.Mode == "" {
		return storage.LightRecord{}, fmt.Errorf("light mode is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.LightRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.LightRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func normalizePickRecord(record storage.PickRecord) (storage.PickRecord, error) {
	record.Name = strings.TrimSpace(record.Name)
	record.Pick = strings.TrimSpace(record.Pick)
	if record.Name == "" {
		return storage.PickRecord{}, fmt.Errorf("participant name is required")
	}
	if record.Pick == "" {
		return storage.PickRecord{}, fmt.Errorf("pick value is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.PickRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.PickRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func scanLight(scan scanner) (storage.LightRecord, error) {
	var record storage.LightRecord
	var mode string
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.Name,
		&record.RealName,
		&mode,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.LightRecord{}, err
	}
	record.Mode = storage.LightMode(mode)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanPick(scan scanner) (storage.PickRecord, error) {
	var record storage.PickRecord
	var show int
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.Name,
		&record.Pick,
		&show,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.PickRecord{}, err
	}
	record.Show = show != 0
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
