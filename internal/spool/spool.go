// Package spool implements the durable, file-backed single-producer/
// single-consumer queue between the listener and the loader (spec §4.2).
//
// Each envelope is one file. Push appends it to the active directory by
// atomic rename. TPop claims the oldest file by moving it into a claim
// directory and hands the caller a Claim with explicit Commit/Rollback —
// a crash between claim and commit leaves the file in the claim directory,
// which Open treats as active on the next startup, giving at-least-once
// delivery.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/redhatci/kaijs/internal/types"
)

// MaxClaimScan bounds how many filenames TPop considers per scan (spec
// §4.2). The directory itself is still read in full by os.ReadDir, which
// returns entries sorted by name, so the first MaxClaimScan are the oldest.
const MaxClaimScan = 32

// filePerm is the permission mode for spool envelope files.
const filePerm = 0o644

// Spool is a durable on-disk FIFO. Not safe for concurrent producers or
// concurrent consumers — the spool is strictly single-consumer per process.
type Spool struct {
	activeDir string
	claimDir  string
}

// Open opens (creating if necessary) a spool rooted at dir, with "active"
// and "claim" subdirectories. Any files left in claim from a prior crash are
// moved back to active before Open returns, so an interrupted claim/commit
// cycle is recovered as at-least-once redelivery.
func Open(dir string) (*Spool, error) {
	active := filepath.Join(dir, "active")
	claim := filepath.Join(dir, "claim")
	for _, d := range []string{active, claim} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("spool: create %s: %w", d, err)
		}
	}

	s := &Spool{activeDir: active, claimDir: claim}
	if err := s.recoverClaims(); err != nil {
		return nil, err
	}
	return s, nil
}

// recoverClaims moves any file left in the claim directory back to active.
// This is the only correctness tool needed against a crash between claim and
// commit: the claim directory is treated as active on restart.
func (s *Spool) recoverClaims() error {
	entries, err := os.ReadDir(s.claimDir)
	if err != nil {
		return fmt.Errorf("spool: list claim dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(s.claimDir, e.Name())
		dst := filepath.Join(s.activeDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("spool: recover %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Push appends env to the spool. The write-then-rename sequence makes the
// append atomic: a reader never observes a partially written file.
func (s *Spool) Push(env *types.SpoolMessage) error {
	payload, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("spool: marshal envelope: %w", err)
	}

	name := fileName(env.SpoolID)
	tmp := filepath.Join(s.activeDir, "."+name+".tmp")
	dst := filepath.Join(s.activeDir, name)

	if err := os.WriteFile(tmp, payload, filePerm); err != nil {
		return fmt.Errorf("spool: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("spool: rename into active: %w", err)
	}
	return nil
}

// fileName derives a lexically sortable filename from a spool id so that
// directory listing order matches push order (FIFO by filename timestamp).
func fileName(spoolID string) string {
	return fmt.Sprintf("%020d.msgpack", time.Now().UnixNano()) + "~" + sanitize(spoolID)
}

func sanitize(spoolID string) string {
	b := []byte(spoolID)
	for i, c := range b {
		if c == '/' || c == os.PathSeparator {
			b[i] = '_'
		}
	}
	return string(b)
}

// Claim is an in-flight pop: exactly one of Commit or Rollback must be
// called before the next TPop on this Spool.
type Claim struct {
	spool *Spool
	path  string
}

// Commit durably removes the claimed envelope. Once Commit returns nil, the
// envelope will never be redelivered.
func (c *Claim) Commit() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("spool: commit: %w", err)
	}
	return nil
}

// Rollback returns the claimed envelope to the active directory so a future
// TPop can redeliver it.
func (c *Claim) Rollback() error {
	dst := filepath.Join(c.spool.activeDir, filepath.Base(c.path))
	if err := os.Rename(c.path, dst); err != nil {
		return fmt.Errorf("spool: rollback: %w", err)
	}
	return nil
}

// TPop claims the oldest envelope in the spool, if any. ok is false when the
// spool is empty. The caller must call exactly one of claim.Commit or
// claim.Rollback before calling TPop again.
func (s *Spool) TPop() (env *types.SpoolMessage, claim *Claim, ok bool, err error) {
	entries, err := os.ReadDir(s.activeDir)
	if err != nil {
		return nil, nil, false, fmt.Errorf("spool: list active dir: %w", err)
	}

	names := make([]string, 0, MaxClaimScan)
	for _, e := range entries {
		if e.IsDir() || isTempFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
		if len(names) >= MaxClaimScan {
			break
		}
	}
	if len(names) == 0 {
		return nil, nil, false, nil
	}
	sort.Strings(names)
	oldest := names[0]

	src := filepath.Join(s.activeDir, oldest)
	dst := filepath.Join(s.claimDir, oldest)
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			// Raced with another claimant (shouldn't happen in the
			// single-consumer contract, but don't wedge the loader).
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("spool: claim %s: %w", oldest, err)
	}

	payload, err := os.ReadFile(dst)
	if err != nil {
		return nil, nil, false, fmt.Errorf("spool: read claimed %s: %w", oldest, err)
	}

	var msg types.SpoolMessage
	if err := msgpack.Unmarshal(payload, &msg); err != nil {
		return nil, nil, false, fmt.Errorf("spool: decode claimed %s: %w", oldest, err)
	}

	return &msg, &Claim{spool: s, path: dst}, true, nil
}

func isTempFile(name string) bool {
	return len(name) > 0 && name[0] == '.'
}

// Length returns the current number of envelopes waiting in the active
// directory. Not claim-state aware: in-flight claims are excluded.
func (s *Spool) Length() (int, error) {
	entries, err := os.ReadDir(s.activeDir)
	if err != nil {
		return 0, fmt.Errorf("spool: list active dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && !isTempFile(e.Name()) {
			n++
		}
	}
	return n, nil
}

// ClaimedLength returns the number of envelopes currently claimed (popped
// but not yet committed or rolled back), for operator visibility into a
// possibly stuck consumer.
func (s *Spool) ClaimedLength() (int, error) {
	entries, err := os.ReadDir(s.claimDir)
	if err != nil {
		return 0, fmt.Errorf("spool: list claim dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

// Clear removes every envelope from the active directory. Intended for test
// fixtures and operator-invoked resets, not for normal operation.
func (s *Spool) Clear() error {
	entries, err := os.ReadDir(s.activeDir)
	if err != nil {
		return fmt.Errorf("spool: list active dir: %w", err)
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(s.activeDir, e.Name())); err != nil {
			return fmt.Errorf("spool: clear %s: %w", e.Name(), err)
		}
	}
	return nil
}
