package gitsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/verdict/pkg/config"
)

// commitFile writes name under dir and commits it.
func commitFile(t *testing.T, repo *gogit.Repository, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatalf("failed to add %s: %v", name, err)
	}
	_, err = wt.Commit("update "+name, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}

func newOrigin(t *testing.T) (*gogit.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	commitFile(t, repo, dir, "tables/plans.yaml", "name: plans\n")
	return repo, dir
}

func testConfig(t *testing.T, origin string) config.GitSourceConfig {
	return config.GitSourceConfig{
		Repository: origin,
		Branch:     "master",
		Path:       "tables",
		Auth:       config.GitAuthConfig{Type: "none"},
		Poll:       config.GitPollConfig{Interval: time.Hour, Timeout: 10 * time.Second},
		Clone:      config.GitCloneConfig{LocalPath: t.TempDir()},
	}
}

func cloned(t *testing.T, cfg config.GitSourceConfig) *Repository {
	t.Helper()
	repo, err := NewRepository(cfg)
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	return repo
}

func TestNewRepository(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.GitSourceConfig
		wantErr bool
	}{
		{name: "empty repository", cfg: config.GitSourceConfig{Branch: "main"}, wantErr: true},
		{name: "empty branch", cfg: config.GitSourceConfig{Repository: "https://example.com/t.git"}, wantErr: true},
		{name: "unknown auth", cfg: config.GitSourceConfig{Repository: "https://example.com/t.git", Branch: "main", Auth: config.GitAuthConfig{Type: "kerberos"}}, wantErr: true},
		{name: "token without token", cfg: config.GitSourceConfig{Repository: "https://example.com/t.git", Branch: "main", Auth: config.GitAuthConfig{Type: "token"}}, wantErr: true},
		{name: "valid", cfg: config.GitSourceConfig{Repository: "https://example.com/t.git", Branch: "main"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRepository(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRepository() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRepository_CloneAndPull(t *testing.T) {
	origin, originDir := newOrigin(t)
	cfg := testConfig(t, originDir)
	repo := cloned(t, cfg)

	if _, err := os.Stat(filepath.Join(repo.TablesPath(), "plans.yaml")); err != nil {
		t.Fatalf("cloned table missing: %v", err)
	}

	res, err := repo.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if res.HadChanges {
		t.Errorf("Pull() without new commits reported changes: %+v", res)
	}

	commitFile(t, origin, originDir, "tables/plans.yaml", "name: plans v2\n")

	res, err = repo.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if !res.HadChanges || len(res.ChangedFiles) != 1 || res.ChangedFiles[0] != "tables/plans.yaml" {
		t.Errorf("Pull() = %+v, want one changed table", res)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.SHA != res.ToSHA || head.Message != "update tables/plans.yaml" {
		t.Errorf("Head() = %+v", head)
	}
}

func TestRepository_ReopenExistingClone(t *testing.T) {
	_, originDir := newOrigin(t)
	cfg := testConfig(t, originDir)

	cloned(t, cfg)
	again := cloned(t, cfg)
	if _, err := again.Head(); err != nil {
		t.Fatalf("Head() on reopened clone error = %v", err)
	}
}

func TestPoller_Check(t *testing.T) {
	origin, originDir := newOrigin(t)
	repo := cloned(t, testConfig(t, originDir))

	var dirs []string
	poller := NewPoller(repo, time.Hour, func(dir string) error {
		dirs = append(dirs, dir)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := poller.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer poller.Stop()

	commitFile(t, origin, originDir, "README.md", "docs\n")
	if err := poller.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(dirs) != 0 {
		t.Errorf("non-table change triggered %d reloads", len(dirs))
	}

	commitFile(t, origin, originDir, "tables/plans.yaml", "name: plans v2\n")
	if err := poller.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(dirs) != 1 || dirs[0] != repo.TablesPath() {
		t.Errorf("reloads = %v, want one of %s", dirs, repo.TablesPath())
	}

	head, _ := repo.Head()
	if poller.LastGood() != head.SHA {
		t.Errorf("LastGood() = %s, want %s", poller.LastGood(), head.SHA)
	}
}

func TestPoller_RollsBackOnReloadFailure(t *testing.T) {
	origin, originDir := newOrigin(t)
	repo := cloned(t, testConfig(t, originDir))

	before, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	poller := NewPoller(repo, time.Hour, func(dir string) error {
		calls++
		data, err := os.ReadFile(filepath.Join(dir, "plans.yaml"))
		if err != nil {
			return err
		}
		if string(data) == "broken\n" {
			return errors.New("invalid table")
		}
		return nil
	}, nil)

	ctx := context.Background()
	if err := poller.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer poller.Stop()

	commitFile(t, origin, originDir, "tables/plans.yaml", "broken\n")
	if err := poller.Check(ctx); err == nil {
		t.Fatal("Check() error = nil, want reload failure")
	}

	if calls != 2 {
		t.Errorf("reload called %d times, want 2 (new commit, then rollback)", calls)
	}
	if poller.LastGood() != before.SHA {
		t.Errorf("LastGood() = %s, want %s", poller.LastGood(), before.SHA)
	}
	data, err := os.ReadFile(filepath.Join(repo.TablesPath(), "plans.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "name: plans\n" {
		t.Errorf("working tree after rollback = %q", data)
	}
}

func TestAuthProviders(t *testing.T) {
	if auth, err := NewTokenAuth("secret").Auth(); err != nil || auth == nil {
		t.Errorf("TokenAuth.Auth() = %v, %v", auth, err)
	}
	if _, err := NewTokenAuth("").Auth(); err == nil {
		t.Error("empty token accepted")
	}

	key := filepath.Join(t.TempDir(), "id_rsa")
	if err := os.WriteFile(key, []byte("not a key"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSSHAuth(key, "").Auth(); err == nil {
		t.Error("world readable key accepted")
	}

	if auth, err := (NoAuth{}).Auth(); err != nil || auth != nil {
		t.Errorf("NoAuth.Auth() = %v, %v", auth, err)
	}
}
