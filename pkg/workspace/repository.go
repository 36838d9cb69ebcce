package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"mercator-hq/verdict/pkg/config"
)

// Version is one published revision of a rule. Document holds the table
// document as YAML.
type Version struct {
	Slug        string    `db:"slug" json:"slug"`
	Version     int       `db:"version" json:"version"`
	Document    string    `db:"document" json:"document"`
	Checksum    string    `db:"checksum" json:"checksum"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
}

// Repository persists published versions.
type Repository interface {
	// Save stores document as the next version of slug.
	Save(ctx context.Context, slug string, document []byte) (*Version, error)

	// Latest returns the newest version of every rule, ordered by slug.
	Latest(ctx context.Context) ([]*Version, error)

	// Versions returns every version of slug, oldest first.
	Versions(ctx context.Context, slug string) ([]*Version, error)

	// Get returns one version, or ErrVersionNotFound.
	Get(ctx context.Context, slug string, version int) (*Version, error)

	// Rename moves every version of from to to.
	Rename(ctx context.Context, from, to string) error

	// Delete removes every version of slug.
	Delete(ctx context.Context, slug string) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// OpenRepository opens the repository named by cfg.URL: memory://,
// sqlite://path or postgres://...
func OpenRepository(cfg config.RepositoryConfig) (Repository, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid repository URL: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return NewMemoryRepository(), nil
	case "sqlite", "postgres", "postgresql":
		return NewSQLRepository(cfg)
	default:
		return nil, fmt.Errorf("%w: scheme %q (expected memory, sqlite or postgres)", ErrUnsupportedRepository, u.Scheme)
	}
}

func checksum(document []byte) string {
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])
}

// MemoryRepository keeps versions in memory. It is used in tests and by
// one-shot CLI commands.
type MemoryRepository struct {
	mu       sync.RWMutex
	versions map[string][]*Version
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{versions: make(map[string][]*Version)}
}

// Save implements Repository.
func (m *MemoryRepository) Save(_ context.Context, slug string, document []byte) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := &Version{
		Slug:        slug,
		Version:     len(m.versions[slug]) + 1,
		Document:    string(document),
		Checksum:    checksum(document),
		PublishedAt: time.Now().UTC(),
	}
	m.versions[slug] = append(m.versions[slug], v)
	return copyVersion(v), nil
}

// Latest implements Repository.
func (m *MemoryRepository) Latest(_ context.Context) ([]*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Version, 0, len(m.versions))
	for _, vs := range m.versions {
		if len(vs) > 0 {
			out = append(out, copyVersion(vs[len(vs)-1]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Versions implements Repository.
func (m *MemoryRepository) Versions(_ context.Context, slug string) ([]*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Version, 0, len(m.versions[slug]))
	for _, v := range m.versions[slug] {
		out = append(out, copyVersion(v))
	}
	return out, nil
}

// Get implements Repository.
func (m *MemoryRepository) Get(_ context.Context, slug string, version int) (*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vs := m.versions[slug]
	if version < 1 || version > len(vs) {
		return nil, &VersionNotFoundError{Slug: slug, Version: version}
	}
	return copyVersion(vs[version-1]), nil
}

// Rename implements Repository.
func (m *MemoryRepository) Rename(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	vs, ok := m.versions[from]
	if !ok {
		return nil
	}
	for _, v := range vs {
		v.Slug = to
	}
	m.versions[to] = vs
	delete(m.versions, from)
	return nil
}

// Delete implements Repository.
func (m *MemoryRepository) Delete(_ context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.versions, slug)
	return nil
}

// Ping implements Repository.
func (m *MemoryRepository) Ping(context.Context) error {
	return nil
}

// Close implements Repository.
func (m *MemoryRepository) Close() error {
	return nil
}

func copyVersion(v *Version) *Version {
	c := *v
	return &c
}
