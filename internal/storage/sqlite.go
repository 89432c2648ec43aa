// Package storage persists workspaces, sources, labs, and chat history in
// SQLite. Timestamps are stored as RFC3339 text; the cache handle columns
// are nullable and always written together.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for the AIDE data model.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "aide.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	// Cascade deletes rely on foreign keys being enforced.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// --- Workspaces ---

func (s *Store) CreateWorkspace(ctx context.Context, w Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		w.ID, w.Name, fmtTime(w.CreatedAt), fmtTime(w.UpdatedAt),
	)
	return err
}

func (s *Store) GetWorkspace(ctx context.Context, id string) (Workspace, error) {
	var w Workspace
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM workspaces WHERE id = ?`, id,
	).Scan(&w.ID, &w.Name, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Workspace{}, ErrNotFound
	}
	if err != nil {
		return Workspace{}, err
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return Workspace{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Workspace{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return w, nil
}

func (s *Store) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM workspaces ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Workspace
	for rows.Next() {
		var w Workspace
		var createdAt, updatedAt string
		if err := rows.Scan(&w.ID, &w.Name, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if w.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

func (s *Store) RenameWorkspace(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workspaces SET name = ?, updated_at = ? WHERE id = ?`,
		name, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// --- Sources ---

func (s *Store) CreateSource(ctx context.Context, src Source) error {
	metadata := src.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, workspace_id, type, title, storage_path, metadata, cache_id, cache_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.WorkspaceID, src.Type, src.Title, src.StoragePath, metadata,
		src.CacheID, nullableTime(src.CacheExpiresAt),
		fmtTime(src.CreatedAt), fmtTime(src.UpdatedAt),
	)
	return err
}

func (s *Store) GetSource(ctx context.Context, id string) (Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, type, title, storage_path, metadata, cache_id, cache_expires_at, created_at, updated_at
		FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return Source{}, ErrNotFound
	}
	return src, err
}

func (s *Store) ListSources(ctx context.Context, workspaceID string) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, type, title, storage_path, metadata, cache_id, cache_expires_at, created_at, updated_at
		FROM sources WHERE workspace_id = ? ORDER BY created_at ASC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, src)
	}
	return results, rows.Err()
}

// UpdateSourceContent records the outcome of a successful upload: where
// the raw file lives and the parsed structure.
func (s *Store) UpdateSourceContent(ctx context.Context, id, storagePath, metadata string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET storage_path = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		storagePath, metadata, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return affected(res)
}

// UpdateSourceCache writes the cache handle columns. Nil pointers clear
// both fields; both are always written in one statement.
func (s *Store) UpdateSourceCache(ctx context.Context, id string, cacheID *string, expiresAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET cache_id = ?, cache_expires_at = ?, updated_at = ? WHERE id = ?`,
		cacheID, nullableTime(expiresAt), fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *Store) UpdateSourceTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET title = ?, updated_at = ? WHERE id = ?`,
		title, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *Store) DeleteSource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (Source, error) {
	var src Source
	var cacheID, cacheExpiresAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&src.ID, &src.WorkspaceID, &src.Type, &src.Title, &src.StoragePath,
		&src.Metadata, &cacheID, &cacheExpiresAt, &createdAt, &updatedAt)
	if err != nil {
		return Source{}, err
	}
	if cacheID.Valid {
		src.CacheID = &cacheID.String
	}
	if cacheExpiresAt.Valid {
		t, err := parseTime(cacheExpiresAt.String)
		if err != nil {
			return Source{}, fmt.Errorf("parsing cache_expires_at: %w", err)
		}
		src.CacheExpiresAt = &t
	}
	if src.CreatedAt, err = parseTime(createdAt); err != nil {
		return Source{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if src.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Source{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return src, nil
}

// --- Labs ---

func (s *Store) CreateLab(ctx context.Context, l Lab) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO labs (id, workspace_id, source_id, type, config, generated_content, user_state, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.WorkspaceID, l.SourceID, l.Type,
		orEmptyJSON(l.Config), orEmptyJSON(l.GeneratedContent), orEmptyJSON(l.UserState),
		l.Status, fmtTime(l.CreatedAt), fmtTime(l.UpdatedAt),
	)
	return err
}

func (s *Store) GetLab(ctx context.Context, id string) (Lab, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, source_id, type, config, generated_content, user_state, status, created_at, updated_at
		FROM labs WHERE id = ?`, id)
	l, err := scanLab(row)
	if err == sql.ErrNoRows {
		return Lab{}, ErrNotFound
	}
	return l, err
}

func (s *Store) ListLabsBySource(ctx context.Context, sourceID string) ([]Lab, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, source_id, type, config, generated_content, user_state, status, created_at, updated_at
		FROM labs WHERE source_id = ? ORDER BY created_at DESC`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Lab
	for rows.Next() {
		l, err := scanLab(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

func (s *Store) ListLabsByWorkspace(ctx context.Context, workspaceID string) ([]Lab, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, source_id, type, config, generated_content, user_state, status, created_at, updated_at
		FROM labs WHERE workspace_id = ? ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Lab
	for rows.Next() {
		l, err := scanLab(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

// UpdateLabState saves learner progress and status.
func (s *Store) UpdateLabState(ctx context.Context, id, userState, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE labs SET user_state = ?, status = ?, updated_at = ? WHERE id = ?`,
		orEmptyJSON(userState), status, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *Store) DeleteLab(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM labs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(res)
}

func scanLab(row scanner) (Lab, error) {
	var l Lab
	var createdAt, updatedAt string
	err := row.Scan(&l.ID, &l.WorkspaceID, &l.SourceID, &l.Type, &l.Config,
		&l.GeneratedContent, &l.UserState, &l.Status, &createdAt, &updatedAt)
	if err != nil {
		return Lab{}, err
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return Lab{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Lab{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return l, nil
}

// --- Chat ---

func (s *Store) SaveChatMessage(ctx context.Context, m ChatMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, workspace_id, source_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.WorkspaceID, m.SourceID, m.Role, m.Content, fmtTime(m.CreatedAt),
	)
	return err
}

func (s *Store) ListChatMessages(ctx context.Context, workspaceID string, limit int) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, source_id, role, content, created_at
		FROM chat_messages WHERE workspace_id = ?
		ORDER BY created_at ASC LIMIT ?`, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.SourceID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// --- helpers ---

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func orEmptyJSON(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
