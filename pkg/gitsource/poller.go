package gitsource

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ReloadFunc loads every table document under dir. An error makes the
// poller roll the clone back to the last good commit.
type ReloadFunc func(dir string) error

// Poller pulls the repository periodically and reloads tables when a table
// document changed.
type Poller struct {
	repo     *Repository
	interval time.Duration
	reload   ReloadFunc
	logger   *slog.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	lastGood string
}

// NewPoller creates a poller. A nil logger uses the default logger.
func NewPoller(repo *Repository, interval time.Duration, reload ReloadFunc, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default().With("component", "gitsource")
	}
	return &Poller{
		repo:     repo,
		interval: interval,
		reload:   reload,
		logger:   logger,
	}
}

// Start records the current commit as last good and starts polling in the
// background until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller already running")
	}

	head, err := p.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to get initial commit: %w", err)
	}
	p.lastGood = head.SHA
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	p.logger.Info("polling table repository",
		"interval", p.interval,
		"commit", head.Short(),
	)

	go p.loop(ctx, p.stopCh, p.doneCh)
	return nil
}

// Stop ends polling and waits for an in-flight check to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// LastGood returns the commit tables were last loaded from.
func (p *Poller) LastGood() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastGood
}

func (p *Poller) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := p.Check(ctx); err != nil {
				p.logger.Error("table repository check failed", "error", err)
			}
		}
	}
}

// Check pulls once and reloads when a table document changed. On reload
// failure the clone is rolled back and the previous tables reloaded.
func (p *Poller) Check(ctx context.Context) error {
	result, err := p.repo.Pull(ctx)
	if err != nil {
		return err
	}
	if !result.HadChanges {
		return nil
	}

	p.mu.Lock()
	lastGood := p.lastGood
	p.mu.Unlock()

	if !touchesTables(result.ChangedFiles) {
		p.logger.Debug("no table documents changed", "commit", shortSHA(result.ToSHA))
		p.setLastGood(result.ToSHA)
		return nil
	}

	p.logger.Info("reloading tables",
		"from", shortSHA(result.FromSHA),
		"to", shortSHA(result.ToSHA),
		"changed_files", len(result.ChangedFiles),
	)

	dir := p.repo.TablesPath()
	if err := p.reload(dir); err != nil {
		if rbErr := p.repo.Rollback(lastGood); rbErr != nil {
			return fmt.Errorf("reload failed: %w (rollback: %v)", err, rbErr)
		}
		if rbErr := p.reload(dir); rbErr != nil {
			return fmt.Errorf("reload failed: %w (reload after rollback: %v)", err, rbErr)
		}
		p.logger.Warn("rolled back to last good commit", "commit", shortSHA(lastGood))
		return fmt.Errorf("reload of %s failed: %w", shortSHA(result.ToSHA), err)
	}

	p.setLastGood(result.ToSHA)
	return nil
}

func (p *Poller) setLastGood(sha string) {
	p.mu.Lock()
	p.lastGood = sha
	p.mu.Unlock()
}

func touchesTables(files []string) bool {
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f)) {
		case ".yaml", ".yml":
			return true
		}
	}
	return false
}
