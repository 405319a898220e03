// ABOUTME: SQLite implementation of the gallery Store using modernc.org/sqlite
// ABOUTME: Provides profile and saved image persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so that text comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a SQLiteStore
type Option func(*SQLiteStore)

// WithLogger sets the logger used by the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger.With("component", "store")
		}
	}
}

// WithClock overrides the time source used for CreatedAt/UpdatedAt
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "store"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS profile (
			singleton    INTEGER PRIMARY KEY CHECK (singleton = 1),
			id           TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS saved_images (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE,
			prompt      TEXT NOT NULL,
			image_bytes BLOB NOT NULL CHECK (length(image_bytes) > 0),
			mime_type   TEXT NOT NULL DEFAULT 'application/octet-stream',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_saved_images_created
			ON saved_images(created_at DESC, seq ASC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// Galleries created before mime_type existed need the column added.
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string
		apply  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('saved_images') WHERE name = 'mime_type'`,
			apply:  `ALTER TABLE saved_images ADD COLUMN mime_type TEXT NOT NULL DEFAULT 'application/octet-stream'`,
			column: "mime_type",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to saved_images: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "saved_images")
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// CreateProfile creates the profile record.
// Returns ErrDuplicateProfile if a profile already exists.
func (s *SQLiteStore) CreateProfile(ctx context.Context, name string) (*Profile, error) {
	now := s.now()
	p := &Profile{
		ID:          uuid.New().String(),
		DisplayName: name,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if err := insertProfile(ctx, s.db, p); err != nil {
		return nil, err
	}

	s.logger.Debug("created profile", "id", p.ID)
	return p, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertProfile(ctx context.Context, db execer, p *Profile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO profile (singleton, id, display_name, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
	`, p.ID, p.DisplayName, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateProfile
		}
		return fmt.Errorf("inserting profile: %w", err)
	}
	return nil
}

func selectProfile(ctx context.Context, db queryRower) (*Profile, error) {
	var p Profile
	var createdAtStr, updatedAtStr string

	err := db.QueryRowContext(ctx, `
		SELECT id, display_name, created_at, updated_at
		FROM profile
		WHERE singleton = 1
	`).Scan(&p.ID, &p.DisplayName, &createdAtStr, &updatedAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	p.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	p.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &p, nil
}

// GetProfile retrieves the profile.
// Returns ErrNotFound if no profile has been created yet.
func (s *SQLiteStore) GetProfile(ctx context.Context) (*Profile, error) {
	return selectProfile(ctx, s.db)
}

// UpdateProfileName renames the profile with the given ID.
// Returns ErrNotFound if the profile doesn't exist.
func (s *SQLiteStore) UpdateProfileName(ctx context.Context, id, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profile
		SET display_name = ?, updated_at = ?
		WHERE id = ?
	`, name, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated profile", "id", id)
	return nil
}

// EnsureProfile returns the profile, creating it with defaultName inside the
// same transaction when none exists.
func (s *SQLiteStore) EnsureProfile(ctx context.Context, defaultName string) (*Profile, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := selectProfile(ctx, tx)
	if err == nil {
		return p, false, tx.Commit()
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := s.now().UTC()
	p = &Profile{
		ID:          uuid.New().String(),
		DisplayName: defaultName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := insertProfile(ctx, tx, p); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing profile: %w", err)
	}

	s.logger.Info("created default profile", "id", p.ID, "name", defaultName)
	return p, true, nil
}

// CreateSavedImage stores accepted image bytes with the prompt that produced them.
// Returns ErrEmptyImage without writing if data is empty.
func (s *SQLiteStore) CreateSavedImage(ctx context.Context, data []byte, prompt string) (*SavedImage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	now := s.now().UTC()
	img := &SavedImage{
		ID:         uuid.New().String(),
		Prompt:     prompt,
		ImageBytes: append([]byte(nil), data...),
		MIMEType:   http.DetectContentType(data),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_images (id, prompt, image_bytes, mime_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, img.ID, img.Prompt, img.ImageBytes, img.MIMEType, formatTime(img.CreatedAt), formatTime(img.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting saved image: %w", err)
	}

	s.logger.Debug("created saved image", "id", img.ID, "size", len(data), "mime", img.MIMEType)
	return img, nil
}

const savedImageColumns = `id, prompt, image_bytes, mime_type, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSavedImage(row rowScanner) (*SavedImage, error) {
	var img SavedImage
	var createdAtStr, updatedAtStr string

	if err := row.Scan(&img.ID, &img.Prompt, &img.ImageBytes, &img.MIMEType, &createdAtStr, &updatedAtStr); err != nil {
		return nil, err
	}

	var err error
	img.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	img.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &img, nil
}

// GetSavedImage retrieves a saved image by ID.
// Returns ErrNotFound if the image doesn't exist.
func (s *SQLiteStore) GetSavedImage(ctx context.Context, id string) (*SavedImage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+savedImageColumns+` FROM saved_images WHERE id = ?`, id)

	img, err := scanSavedImage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying saved image: %w", err)
	}
	return img, nil
}

// ListSavedImages returns all saved images, newest first.
func (s *SQLiteStore) ListSavedImages(ctx context.Context) ([]*SavedImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+savedImageColumns+`
		FROM saved_images
		ORDER BY created_at DESC, seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying saved images: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var images []*SavedImage
	for rows.Next() {
		img, err := scanSavedImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning saved image row: %w", err)
		}
		images = append(images, img)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating saved image rows: %w", err)
	}
	return images, nil
}

// CountSavedImages returns the number of saved images
func (s *SQLiteStore) CountSavedImages(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM saved_images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting saved images: %w", err)
	}
	return n, nil
}

// DeleteSavedImage removes a saved image.
// Returns ErrNotFound if the image doesn't exist, so callers can tell
// "already gone" apart from "deleted".
func (s *SQLiteStore) DeleteSavedImage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM saved_images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting saved image: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted saved image", "id", id)
	return nil
}

// ReplaceSavedImageBytes swaps the bytes of an existing saved image. Prompt
// and CreatedAt are left untouched.
// Returns ErrEmptyImage if data is empty, ErrNotFound if the image doesn't exist.
func (s *SQLiteStore) ReplaceSavedImageBytes(ctx context.Context, id string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyImage
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE saved_images
		SET image_bytes = ?, mime_type = ?, updated_at = ?
		WHERE id = ?
	`, data, http.DetectContentType(data), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("replacing saved image bytes: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("replaced saved image bytes", "id", id, "size", len(data))
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
