package dynamic

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/verdict/pkg/table"
)

// SQLiteStore persists Dynamic Values in a SQLite database. Values are
// stored JSON-encoded next to their field type.
type SQLiteStore struct {
	guard

	db        *sql.DB
	logger    *slog.Logger
	mu        sync.Mutex
	closeOnce sync.Once

	setStmt    *sql.Stmt
	getStmt    *sql.Stmt
	deleteStmt *sql.Stmt
	listStmt   *sql.Stmt
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore opens or creates a store at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig, logger *slog.Logger) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default().With("component", "dynamic.sqlite")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "open", Cause: err}
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, &StorageError{Backend: "sqlite", Operation: "init schema", Cause: err}
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, &StorageError{Backend: "sqlite", Operation: "prepare", Cause: err}
	}

	logger.Info("dynamic value store opened", "path", cfg.Path)
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS dynamic_values (
		name TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.setStmt, err = s.db.Prepare(`
		INSERT INTO dynamic_values (name, type, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			type = excluded.type,
			value = excluded.value,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare set statement: %w", err)
	}

	s.getStmt, err = s.db.Prepare(`SELECT name, type, value, updated_at FROM dynamic_values WHERE name = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM dynamic_values WHERE name = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`SELECT name, type, value, updated_at FROM dynamic_values ORDER BY name`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}

	return nil
}

// Get returns the value called name.
func (s *SQLiteStore) Get(ctx context.Context, name string) (*Value, error) {
	v, err := scanValue(s.getStmt.QueryRowContext(ctx, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Name: name}
	}
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "get", Cause: err}
	}
	return v, nil
}

// Set creates or replaces a value.
func (s *SQLiteStore) Set(ctx context.Context, name string, value any) (*Value, error) {
	v, err := newValue(name, value, time.Now())
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(v.Value)
	if err != nil {
		return nil, &InvalidValueError{Name: name, Value: value}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.setStmt.ExecContext(ctx, v.Name, string(v.Type), string(encoded), v.UpdatedAt.UnixNano()); err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "set", Cause: err}
	}

	s.logger.Debug("dynamic value set", "name", name, "type", v.Type)
	return v, nil
}

// Delete removes a value unless it is still referenced.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Get(ctx, name); err != nil {
		return err
	}
	if err := s.checkUnreferenced(name); err != nil {
		return err
	}
	if _, err := s.deleteStmt.ExecContext(ctx, name); err != nil {
		return &StorageError{Backend: "sqlite", Operation: "delete", Cause: err}
	}

	s.logger.Debug("dynamic value deleted", "name", name)
	return nil
}

// List returns every value ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]*Value, error) {
	rows, err := s.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "list", Cause: err}
	}
	defer rows.Close()

	var values []*Value
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, &StorageError{Backend: "sqlite", Operation: "list", Cause: err}
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "list", Cause: err}
	}
	return values, nil
}

// Close releases the prepared statements and the database.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.setStmt, s.getStmt, s.deleteStmt, s.listStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		closeErr = s.db.Close()
	})
	return closeErr
}

type scanner interface {
	Scan(dest ...any) error
}

func scanValue(row scanner) (*Value, error) {
	var (
		name      string
		typ       string
		encoded   string
		updatedAt int64
	)
	if err := row.Scan(&name, &typ, &encoded, &updatedAt); err != nil {
		return nil, err
	}

	fieldType, err := table.ParseFieldType(typ)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode value %q: %w", name, err)
	}
	value, ok := table.NormalizeValue(fieldType, raw)
	if !ok {
		return nil, fmt.Errorf("stored value %q does not match type %s", name, fieldType)
	}

	return &Value{
		Name:      name,
		Type:      fieldType,
		Value:     value,
		UpdatedAt: time.Unix(0, updatedAt),
	}, nil
}
