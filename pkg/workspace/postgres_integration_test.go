//go:build integration
// +build integration

package workspace

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"mercator-hq/verdict/pkg/config"
)

// startPostgres runs a disposable PostgreSQL container and returns its URL.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "verdict",
			"POSTGRES_PASSWORD": "verdict",
			"POSTGRES_DB":       "verdict_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return fmt.Sprintf("postgres://verdict:verdict@%s:%s/verdict_test?sslmode=disable", host, port.Port())
}

func TestSQLRepository_Postgres(t *testing.T) {
	repo, err := OpenRepository(config.RepositoryConfig{URL: startPostgres(t), MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("OpenRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	testRepository(t, repo)
}

func TestWorkspace_PublishToPostgres(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenRepository(config.RepositoryConfig{URL: startPostgres(t)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })

	f := newFixture(t)
	ws := New(f.store, WithRepository(repo))
	if _, err := ws.Import(ctx, mustParse(t, healthDoc)); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Publish(ctx, "health-plans"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	reloaded := New(f.store, WithRepository(repo))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	d, err := reloaded.Solve(ctx, "health-plans", youngApplicant)
	if err != nil {
		t.Fatal(err)
	}
	if d.Response["recommended_plan"] != "HSA" {
		t.Errorf("decision = %v", d.Response)
	}
}
