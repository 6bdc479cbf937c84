package fs

import (
	"context"
	"fmt"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/git"
)

func (r *Repository) branch(ctx context.Context) (string, error) {
	if r.config.Branch != "" {
		return r.config.Branch, nil
	}
	return r.git.CurrentBranch(ctx)
}

// HasRemote reports whether the tree is mirrored to a remote.
func (r *Repository) HasRemote(ctx context.Context) bool {
	return r.git.HasRemote(ctx, defaultRemote)
}

// Push sends local commits to the remote. It does not take the writer
// lock: pushing reads refs only. Without a remote it reports false.
func (r *Repository) Push(ctx context.Context) (bool, error) {
	if !r.HasRemote(ctx) {
		return false, nil
	}
	branch, err := r.branch(ctx)
	if err != nil {
		return false, core.Storage("push", "", err)
	}
	if err := r.git.Push(ctx, defaultRemote, branch); err != nil {
		return false, classifyRemote("push", err)
	}
	r.config.Logger.Info("pushed to remote", "remote", defaultRemote, "branch", branch)
	return true, nil
}

// Pull rebases local commits onto the remote under the writer lock and
// reports whether HEAD moved. A conflicting rebase is aborted.
func (r *Repository) Pull(ctx context.Context) (bool, error) {
	if !r.HasRemote(ctx) {
		return false, nil
	}
	branch, err := r.branch(ctx)
	if err != nil {
		return false, core.Storage("pull", "", err)
	}

	unlock, err := r.lock(ctx, "pull", "")
	if err != nil {
		return false, err
	}
	defer unlock()

	before, err := r.git.Head(ctx)
	if err != nil {
		return false, core.Storage("pull", "", err)
	}
	if err := r.git.Pull(ctx, defaultRemote, branch); err != nil {
		if git.IsConflict(err) {
			if abortErr := r.git.RebaseAbort(context.WithoutCancel(ctx)); abortErr != nil {
				r.config.Logger.Error("failed to abort rebase", "error", abortErr)
			}
			return false, core.Storage("pull", "", fmt.Errorf("conflict with remote, resolve manually: %w", err))
		}
		return false, classifyRemote("pull", err)
	}
	after, err := r.git.Head(ctx)
	if err != nil {
		return false, core.Storage("pull", "", err)
	}
	r.recordCommit(after)
	return before != after, nil
}

func classifyRemote(op string, err error) error {
	if git.IsNetworkError(err) {
		return core.Transient(op, err)
	}
	return core.Storage(op, "", err)
}

var _ core.Syncable = (*Repository)(nil)
var _ core.Repository = (*Repository)(nil)
