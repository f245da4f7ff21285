// Package schemacatalog maintains a bare mirror of a remote schemas Git
// repository and resolves (version_tag, schema_path) to schema bytes
// (spec §4.3). Cloning and fetching shell out to the git binary rather than
// vendoring a pure-Go implementation, grounded on holon-run-holon's
// pkg/git/pkg/publisher/git convention of wrapping os/exec around "git".
package schemacatalog

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redhatci/kaijs/internal/log"
)

// RefreshInterval is the scheduled fetch-with-prune period (spec §4.3).
const RefreshInterval = 12 * time.Hour

// Catalog maintains a bare git mirror on the local filesystem and serves
// get_file(tag, path) lookups against it.
type Catalog struct {
	remoteURL       string
	localPath       string
	logger          *log.Logger
	refreshInterval time.Duration

	mu        sync.Mutex
	ready     bool
	readyCh   chan struct{}
	readyOnce sync.Once
}

// WithRefreshInterval overrides the default RefreshInterval for Start's
// background ticker. A non-positive value is ignored.
func (c *Catalog) WithRefreshInterval(d time.Duration) *Catalog {
	if d > 0 {
		c.refreshInterval = d
	}
	return c
}

// New creates a Catalog for the given remote and local mirror path. Call
// EnsureCloned followed by Refresh (or Start) before serving lookups.
func New(remoteURL, localPath string, logger *log.Logger) *Catalog {
	return &Catalog{remoteURL: remoteURL, localPath: localPath, logger: logger, readyCh: make(chan struct{})}
}

// EnsureCloned performs an idempotent bare clone: if localPath already
// contains a git directory, it is left untouched (spec §4.3: "detects
// existing bare repo; skips re-clone").
func (c *Catalog) EnsureCloned(ctx context.Context) error {
	if info, err := os.Stat(filepath.Join(c.localPath, "HEAD")); err == nil && !info.IsDir() {
		c.logger.Debug("schema catalog already cloned", map[string]any{"path": c.localPath})
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.localPath), 0o755); err != nil {
		return fmt.Errorf("schemacatalog: create parent dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--bare", c.remoteURL, c.localPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("schemacatalog: git clone --bare: %w: %s", err, out)
	}
	c.logger.Info("schema catalog cloned", map[string]any{"remote": c.remoteURL, "path": c.localPath})
	return nil
}

// Refresh runs "git fetch --prune" against the bare mirror and marks the
// catalog ready on first success.
func (c *Catalog) Refresh(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "--git-dir", c.localPath, "fetch", "--prune", "origin", "+refs/tags/*:refs/tags/*")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("schemacatalog: git fetch --prune: %w: %s", err, out)
	}

	c.mu.Lock()
	wasReady := c.ready
	c.ready = true
	c.mu.Unlock()
	if !wasReady {
		c.readyOnce.Do(func() { close(c.readyCh) })
	}
	return nil
}

// Start runs an initial EnsureCloned+Refresh, then refreshes on a
// RefreshInterval ticker until ctx is canceled. The loader must wait on
// WaitReady before consuming any message (spec §4.3: "the catalog MUST have
// completed an initial fetch; the loader waits on this").
func (c *Catalog) Start(ctx context.Context) error {
	if err := c.EnsureCloned(ctx); err != nil {
		return err
	}
	if err := c.Refresh(ctx); err != nil {
		return err
	}

	interval := c.refreshInterval
	if interval <= 0 {
		interval = RefreshInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					c.logger.Error("schema catalog refresh failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}()
	return nil
}

// WaitReady blocks until the initial fetch has completed or ctx is done.
func (c *Catalog) WaitReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetFile resolves refs/tags/<tag>:<path> against the bare mirror and
// returns its contents.
func (c *Catalog) GetFile(ctx context.Context, tag, path string) ([]byte, error) {
	ref := fmt.Sprintf("refs/tags/%s:%s", tag, path)
	cmd := exec.CommandContext(ctx, "git", "--git-dir", c.localPath, "show", ref)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("schemacatalog: get_file %s: %w", ref, classifyGitError(err))
	}
	return out, nil
}

func classifyGitError(err error) error {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return err
}
