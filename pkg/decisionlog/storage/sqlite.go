package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/verdict/pkg/decisionlog"
)

const backendSQLite = "sqlite"

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/decisions.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements decisionlog.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	insert *sql.Stmt
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, creates the schema and enables WAL
// mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "decisionlog.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, decisionlog.NewStorageError(backendSQLite, "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up pragmas, the schema and prepared statements.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return decisionlog.NewStorageError(backendSQLite, "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return decisionlog.NewStorageError(backendSQLite, "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return decisionlog.NewStorageError(backendSQLite, "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return decisionlog.NewStorageError(backendSQLite, "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return decisionlog.NewStorageError(backendSQLite, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return decisionlog.NewStorageError(backendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	stmt, err := s.db.Prepare(insertDecision)
	if err != nil {
		return decisionlog.NewStorageError(backendSQLite, "prepare", err)
	}
	s.insert = stmt

	return nil
}

// Store persists a decision record.
func (s *SQLiteStorage) Store(ctx context.Context, record *decisionlog.Record) error {
	request, err := json.Marshal(record.Request)
	if err != nil {
		return decisionlog.NewStorageError(backendSQLite, "encode_request", err)
	}

	var response any
	if record.Response != nil {
		data, err := json.Marshal(record.Response)
		if err != nil {
			return decisionlog.NewStorageError(backendSQLite, "encode_response", err)
		}
		response = string(data)
	}

	_, err = s.insert.ExecContext(ctx,
		record.ID, record.Slug, record.Version, nullString(record.RowID), record.Fallback,
		string(request), record.RequestHash, response, nullString(record.Error),
		record.Duration.Microseconds(), record.SolvedAt.UTC().UnixNano(), nullString(record.BatchID),
	)
	if err != nil {
		return decisionlog.NewStorageError(backendSQLite, "store", err)
	}
	return nil
}

// Query retrieves the records matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *decisionlog.Query) ([]*decisionlog.Record, error) {
	sqlQuery, args := s.buildSelect(query)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, decisionlog.NewStorageError(backendSQLite, "query", err)
	}
	defer rows.Close()

	records := []*decisionlog.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, decisionlog.NewStorageError(backendSQLite, "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, decisionlog.NewStorageError(backendSQLite, "query", err)
	}

	return records, nil
}

// QueryStream streams matching records for memory-efficient export.
func (s *SQLiteStorage) QueryStream(ctx context.Context, query *decisionlog.Query) (<-chan *decisionlog.Record, <-chan error, error) {
	recordsCh := make(chan *decisionlog.Record, 100)
	errCh := make(chan error, 1)

	sqlQuery, args := s.buildSelect(query)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- decisionlog.NewStorageError(backendSQLite, "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				errCh <- decisionlog.NewStorageError(backendSQLite, "scan", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- decisionlog.NewStorageError(backendSQLite, "query_stream", err)
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *decisionlog.Query) (int64, error) {
	where, args := buildWhereClause(query)

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decisions"+where, args...).Scan(&count); err != nil {
		return 0, decisionlog.NewStorageError(backendSQLite, "count", err)
	}
	return count, nil
}

// Delete removes the records matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *decisionlog.Query) (int64, error) {
	where, args := buildWhereClause(query)

	result, err := s.db.ExecContext(ctx, "DELETE FROM decisions"+where, args...)
	if err != nil {
		return 0, decisionlog.NewStorageError(backendSQLite, "delete", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, decisionlog.NewStorageError(backendSQLite, "delete", err)
	}
	return count, nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	if err := s.db.Close(); err != nil {
		return decisionlog.NewStorageError(backendSQLite, "close", err)
	}

	s.logger.Info("SQLite storage closed")
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) buildSelect(query *decisionlog.Query) (string, []any) {
	where, args := buildWhereClause(query)

	column := "solved_at"
	if query.SortBy == "duration" {
		column = "duration_us"
	}
	order := "DESC"
	if strings.EqualFold(query.SortOrder, "asc") {
		order = "ASC"
	}

	sqlQuery := fmt.Sprintf("SELECT %s FROM decisions%s ORDER BY %s %s, rowid %s", selectColumns, where, column, order, order)

	switch {
	case query.Limit > 0:
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
	case query.Offset > 0:
		sqlQuery += " LIMIT -1"
	}
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	return sqlQuery, args
}

// buildWhereClause returns " WHERE ..." (or "") and its arguments.
func buildWhereClause(query *decisionlog.Query) (string, []any) {
	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "solved_at >= ?")
		args = append(args, query.StartTime.UTC().UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "solved_at <= ?")
		args = append(args, query.EndTime.UTC().UnixNano())
	}
	if query.Slug != "" {
		conditions = append(conditions, "slug = ?")
		args = append(args, query.Slug)
	}
	if query.RowID != "" {
		conditions = append(conditions, "row_id = ?")
		args = append(args, query.RowID)
	}
	if query.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, query.BatchID)
	}

	switch query.Status {
	case decisionlog.StatusSuccess:
		conditions = append(conditions, "error IS NULL", "fallback = 0")
	case decisionlog.StatusError:
		conditions = append(conditions, "error IS NOT NULL")
	case decisionlog.StatusFallback:
		conditions = append(conditions, "error IS NULL", "fallback = 1")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// scanRecord scans a database row into a Record.
func scanRecord(rows *sql.Rows) (*decisionlog.Record, error) {
	var (
		record                         decisionlog.Record
		request                        string
		rowID, response, errVal, batch sql.NullString
		durationUs, solvedAt           int64
	)

	err := rows.Scan(
		&record.ID, &record.Slug, &record.Version, &rowID, &record.Fallback,
		&request, &record.RequestHash, &response, &errVal,
		&durationUs, &solvedAt, &batch,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(request), &record.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if response.Valid {
		if err := json.Unmarshal([]byte(response.String), &record.Response); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}

	record.RowID = rowID.String
	record.Error = errVal.String
	record.BatchID = batch.String
	record.Duration = time.Duration(durationUs) * time.Microsecond
	record.SolvedAt = time.Unix(0, solvedAt).UTC()

	return &record, nil
}

// nullString converts empty strings to NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
