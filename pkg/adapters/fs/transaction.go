package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/git"
)

// errNoChange aborts a mutation that would not change the tree.
var errNoChange = errors.New("no change")

// txn records the file operations of one mutation so they can be staged
// together and undone if the commit fails.
type txn struct {
	repo   *Repository
	staged []string
	undo   []func() error
	after  []func()
}

// onCommit registers fn to run once the commit is recorded, while the
// writer lock is still held.
func (tx *txn) onCommit(fn func()) {
	tx.after = append(tx.after, fn)
}

func (tx *txn) write(rel string, data []byte) error {
	return tx.writeFrom(rel, bytes.NewReader(data))
}

func (tx *txn) writeFrom(rel string, r io.Reader) error {
	full := tx.repo.abs(rel)
	prev, err := os.ReadFile(full)
	existed := err == nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := writeFileAtomic(full, r, 0644); err != nil {
		return err
	}
	tx.staged = append(tx.staged, rel)
	tx.undo = append(tx.undo, func() error {
		if existed {
			return writeBytesAtomic(full, prev, 0644)
		}
		return os.Remove(full)
	})
	return nil
}

func (tx *txn) rename(fromRel, toRel string) error {
	from, to := tx.repo.abs(fromRel), tx.repo.abs(toRel)
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return err
	}
	if err := os.Rename(from, to); err != nil {
		return err
	}
	tx.staged = append(tx.staged, fromRel, toRel)
	tx.undo = append(tx.undo, func() error {
		return os.Rename(to, from)
	})
	return nil
}

func (tx *txn) remove(rel string) error {
	full := tx.repo.abs(rel)
	prev, err := os.ReadFile(full)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return err
	}
	tx.staged = append(tx.staged, rel)
	tx.undo = append(tx.undo, func() error {
		return writeBytesAtomic(full, prev, 0644)
	})
	return nil
}

func (tx *txn) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](); err != nil {
			tx.repo.config.Logger.Error("rollback step failed", "error", err)
		}
	}
	tx.undo = nil
}

func (tx *txn) abort(ctx context.Context) {
	if err := tx.repo.git.Reset(ctx, tx.staged...); err != nil {
		tx.repo.config.Logger.Error("failed to unstage aborted change", "error", err)
	}
	tx.rollback()
}

// lock acquires the writer lock for op and maps failures to the error taxonomy.
func (r *Repository) lock(ctx context.Context, op, path string) (func(), error) {
	unlock, waited, err := r.git.Lock(ctx, r.config.LockTimeout)
	if err != nil {
		if errors.Is(err, git.ErrLockTimeout) {
			return nil, core.E(core.KindLockTimeout, op, path, err)
		}
		return nil, core.Storage(op, path, err)
	}
	if waited >= lockWaitThreshold {
		r.config.Logger.Info("waited for writer lock", "op", op, "path", path, "waited", waited)
		core.ObserveLockWait(ctx, waited)
	}
	return unlock, nil
}

// commit runs apply under the writer lock and records everything it
// staged as one commit. Any failure after apply started restores the
// previous files, so a mutation either commits fully or leaves no trace.
func (r *Repository) commit(ctx context.Context, op, path, message string, apply func(tx *txn) error) (core.Commit, error) {
	msg, err := core.ValidateCommitMessage(message)
	if err != nil {
		return core.Commit{}, err
	}

	unlock, err := r.lock(ctx, op, path)
	if err != nil {
		return core.Commit{}, err
	}
	defer unlock()

	// Past the lock, the mutation runs to completion.
	ctx = context.WithoutCancel(ctx)

	tx := &txn{repo: r}
	if err := apply(tx); err != nil {
		tx.rollback()
		if errors.Is(err, errNoChange) {
			return r.noop(ctx, op, path)
		}
		if core.KindOf(err) != "" {
			return core.Commit{}, err
		}
		return core.Commit{}, core.Storage(op, path, err)
	}

	if err := r.git.Add(ctx, tx.staged...); err != nil {
		tx.abort(ctx)
		return core.Commit{}, core.Storage(op, path, err)
	}
	changed, err := r.git.HasStagedChanges(ctx, tx.staged...)
	if err != nil {
		tx.abort(ctx)
		return core.Commit{}, core.Storage(op, path, err)
	}
	if !changed {
		return r.noop(ctx, op, path)
	}

	sha, err := r.git.Commit(ctx, msg)
	if err != nil {
		tx.abort(ctx)
		return core.Commit{}, core.Storage(op, path, err)
	}

	for _, fn := range tx.after {
		fn()
	}
	r.recordCommit(sha)
	r.config.Logger.Debug("committed", "op", op, "path", path, "commit", sha)
	return core.Commit{ID: sha}, nil
}

func (r *Repository) noop(ctx context.Context, op, path string) (core.Commit, error) {
	head, err := r.git.Head(ctx)
	if err != nil {
		return core.Commit{}, core.Storage(op, path, err)
	}
	return core.Commit{ID: head, NoOp: true}, nil
}

// changeReason returns the commit message carried by ctx, or def.
func changeReason(ctx context.Context, def string) string {
	if val, ok := ctx.Value(core.ChangeReasonKey).(string); ok && val != "" {
		return val
	}
	return def
}
