package workspace

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/qustavo/dotsql"

	"mercator-hq/verdict/pkg/config"
)

//go:embed queries/*.sql
var queriesFS embed.FS

//go:embed migrations
var migrationsFS embed.FS

const (
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// SQLRepository stores versions in sqlite or postgres through sqlx. Queries
// are named statements loaded from embedded .sql files.
type SQLRepository struct {
	db      *sqlx.DB
	dot     *dotsql.DotSql
	backend string
}

// NewSQLRepository opens the database named by cfg.URL and applies pending
// migrations unless cfg.SkipMigrations is set.
//
// sqlite://data/workspace.db is relative, sqlite:///var/lib/verdict.db is
// absolute. postgres URLs are passed to lib/pq unchanged.
func NewSQLRepository(cfg config.RepositoryConfig) (*SQLRepository, error) {
	driverName, dataSource, err := parseDatabaseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	if driverName == "sqlite3" {
		if dir := filepath.Dir(strings.SplitN(dataSource, "?", 2)[0]); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, NewRepositoryError(driverName, "open", err)
			}
		}
	}

	if !cfg.SkipMigrations {
		if err := runMigrations(driverName, dataSource); err != nil {
			return nil, NewRepositoryError(driverName, "migrate", err)
		}
	}

	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		return nil, NewRepositoryError(driverName, "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewRepositoryError(driverName, "ping", err)
	}

	dot, err := loadQueries()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLRepository{db: db, dot: dot, backend: driverName}, nil
}

func parseDatabaseURL(dbURL string) (driverName, dataSource string, err error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid database URL: %w", err)
	}

	switch u.Scheme {
	case "sqlite":
		driverName = "sqlite3"
		if u.Host != "" {
			dataSource = u.Host + u.Path
		} else {
			dataSource = u.Path
		}
		query := u.RawQuery
		if query == "" {
			query = "_busy_timeout=5000&_journal_mode=WAL"
		}
		dataSource += "?" + query
	case "postgres", "postgresql":
		driverName = "postgres"
		dataSource = dbURL
	default:
		return "", "", fmt.Errorf("%w: scheme %q (expected sqlite or postgres)", ErrUnsupportedRepository, u.Scheme)
	}
	return driverName, dataSource, nil
}

// runMigrations applies the embedded migrations on a dedicated connection,
// since closing the migrator closes the database it was given.
func runMigrations(driverName, dataSource string) error {
	db, err := sql.Open(driverName, dataSource)
	if err != nil {
		return err
	}

	var (
		dir    string
		driver database.Driver
	)
	switch driverName {
	case "sqlite3":
		dir = "migrations/sqlite"
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case "postgres":
		dir = "migrations/postgres"
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		err = fmt.Errorf("unsupported database driver: %s", driverName)
	}
	if err != nil {
		db.Close()
		return err
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		db.Close()
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, driverName, driver)
	if err != nil {
		db.Close()
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func loadQueries() (*dotsql.DotSql, error) {
	var combined strings.Builder
	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		combined.Write(content)
		combined.WriteString("\n")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}
	return dot, nil
}

// query returns the named statement with placeholders for the backend.
func (r *SQLRepository) query(name string) (string, error) {
	q, err := r.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return r.db.Rebind(q), nil
}

// Save implements Repository.
func (r *SQLRepository) Save(ctx context.Context, slug string, document []byte) (*Version, error) {
	nextQ, err := r.query("next-version")
	if err != nil {
		return nil, err
	}
	insertQ, err := r.query("insert-version")
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, NewRepositoryError(r.backend, "save", err)
	}
	defer tx.Rollback()

	v := &Version{
		Slug:        slug,
		Document:    string(document),
		Checksum:    checksum(document),
		PublishedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := tx.GetContext(ctx, &v.Version, nextQ, slug); err != nil {
		return nil, NewRepositoryError(r.backend, "save", err)
	}
	if _, err := tx.ExecContext(ctx, insertQ, v.Slug, v.Version, v.Document, v.Checksum, v.PublishedAt); err != nil {
		return nil, NewRepositoryError(r.backend, "save", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, NewRepositoryError(r.backend, "save", err)
	}
	return v, nil
}

// Latest implements Repository.
func (r *SQLRepository) Latest(ctx context.Context) ([]*Version, error) {
	return r.selectVersions(ctx, "latest", "latest-versions")
}

// Versions implements Repository.
func (r *SQLRepository) Versions(ctx context.Context, slug string) ([]*Version, error) {
	return r.selectVersions(ctx, "versions", "list-versions", slug)
}

func (r *SQLRepository) selectVersions(ctx context.Context, op, name string, args ...any) ([]*Version, error) {
	q, err := r.query(name)
	if err != nil {
		return nil, err
	}
	var out []*Version
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, NewRepositoryError(r.backend, op, err)
	}
	for _, v := range out {
		v.PublishedAt = v.PublishedAt.UTC()
	}
	return out, nil
}

// Get implements Repository.
func (r *SQLRepository) Get(ctx context.Context, slug string, version int) (*Version, error) {
	q, err := r.query("get-version")
	if err != nil {
		return nil, err
	}
	var v Version
	if err := r.db.GetContext(ctx, &v, q, slug, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &VersionNotFoundError{Slug: slug, Version: version}
		}
		return nil, NewRepositoryError(r.backend, "get", err)
	}
	v.PublishedAt = v.PublishedAt.UTC()
	return &v, nil
}

// Rename implements Repository.
func (r *SQLRepository) Rename(ctx context.Context, from, to string) error {
	return r.exec(ctx, "rename", "rename-rule", to, from)
}

// Delete implements Repository.
func (r *SQLRepository) Delete(ctx context.Context, slug string) error {
	return r.exec(ctx, "delete", "delete-rule", slug)
}

func (r *SQLRepository) exec(ctx context.Context, op, name string, args ...any) error {
	q, err := r.query(name)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return NewRepositoryError(r.backend, op, err)
	}
	return nil
}

// Ping implements Repository.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close implements Repository.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
