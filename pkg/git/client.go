package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLockTimeout is returned when the writer lock is not acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for writer lock")

// Locks older than this are left over from a crashed process.
const staleLockAge = 10 * time.Minute

// Client wraps git command execution with a writer lock shared by every
// goroutine of the process (a semaphore) and by other processes working
// on the same tree (a lock file).
type Client struct {
	WorkDir  string
	Logger   *slog.Logger
	lockPath string
	sem      chan struct{}
}

// NewClient creates a new git client for the given working directory.
// lockName is relative to workDir.
func NewClient(workDir, lockName string, logger *slog.Logger) *Client {
	if lockName == "" {
		lockName = ".folio.lock"
	}
	return &Client{
		WorkDir:  workDir,
		Logger:   logger,
		lockPath: lockName,
		sem:      make(chan struct{}, 1),
	}
}

// Lock acquires the writer lock, blocking up to timeout. It returns the
// unlock function and how long the caller waited.
func (c *Client) Lock(ctx context.Context, timeout time.Duration) (func(), time.Duration, error) {
	start := time.Now()
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case c.sem <- struct{}{}:
	case <-lockCtx.Done():
		return nil, time.Since(start), c.lockErr(ctx)
	}

	fullLockPath := filepath.Join(c.WorkDir, c.lockPath)
	if err := os.MkdirAll(filepath.Dir(fullLockPath), 0755); err != nil {
		<-c.sem
		return nil, time.Since(start), fmt.Errorf("failed to create lock directory: %w", err)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		f, err := os.OpenFile(fullLockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			f.Close()
			waited := time.Since(start)
			return func() {
				os.Remove(fullLockPath)
				<-c.sem
			}, waited, nil
		}

		if !os.IsExist(err) {
			<-c.sem
			return nil, time.Since(start), fmt.Errorf("failed to acquire lock: %w", err)
		}

		if info, statErr := os.Stat(fullLockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			if c.Logger != nil {
				c.Logger.Warn("removing stale lock", "path", fullLockPath, "age", time.Since(info.ModTime()))
			}
			os.Remove(fullLockPath)
			continue
		}

		select {
		case <-lockCtx.Done():
			<-c.sem
			return nil, time.Since(start), c.lockErr(ctx)
		case <-ticker.C:
		}
	}
}

func (c *Client) lockErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrLockTimeout
}

// CommandError is returned when git exits with a failure.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s failed: %v\nOutput: %s", e.Args[0], e.Err, e.Output)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Run executes a raw git command in the working directory.
// NOTE: It does NOT acquire the lock. Callers mutating the tree must hold Lock.
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	return c.run(ctx, c.WorkDir, args...)
}

func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	if c.Logger != nil {
		c.Logger.Debug("executing git", "args", args, "dir", dir)
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	// Never prompt for credentials; provisioning happens outside the store.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	out, err := cmd.CombinedOutput()
	output := string(out)

	if err != nil {
		return output, &CommandError{Args: args, Output: output, Err: err}
	}

	return strings.TrimSpace(output), nil
}

// Init initializes a new repository with the given initial branch.
func (c *Client) Init(ctx context.Context, branch string) error {
	if err := os.MkdirAll(c.WorkDir, 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	args := []string{"init"}
	if branch != "" {
		args = append(args, "--initial-branch", branch)
	}
	_, err := c.Run(ctx, args...)
	return err
}

// Clone clones url into the client's working directory.
func (c *Client) Clone(ctx context.Context, url, branch string) error {
	parent := filepath.Dir(c.WorkDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}
	args := []string{"clone"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, c.WorkDir)
	_, err := c.run(ctx, parent, args...)
	return err
}

// EnsureIdentity sets a local committer identity when none is configured,
// so commits work on fresh machines and in CI.
func (c *Client) EnsureIdentity(ctx context.Context, name, email string) error {
	if out, err := c.Run(ctx, "config", "user.email"); err == nil && out != "" {
		return nil
	}
	if _, err := c.Run(ctx, "config", "user.email", email); err != nil {
		return err
	}
	_, err := c.Run(ctx, "config", "user.name", name)
	return err
}

// Add stages files, including removals.
func (c *Client) Add(ctx context.Context, files ...string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"add", "-A", "--"}, files...)
	_, err := c.Run(ctx, args...)
	return err
}

// Rm removes files from the working tree and from the index.
func (c *Client) Rm(ctx context.Context, files ...string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"rm", "-f", "-q", "--"}, files...)
	_, err := c.Run(ctx, args...)
	return err
}

// Reset unstages files, leaving the working tree alone.
func (c *Client) Reset(ctx context.Context, files ...string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"reset", "-q", "--"}, files...)
	_, err := c.Run(ctx, args...)
	return err
}

// Commit records the staged changes and returns the new HEAD.
func (c *Client) Commit(ctx context.Context, msg string) (string, error) {
	if _, err := c.Run(ctx, "commit", "-q", "-m", msg); err != nil {
		return "", err
	}
	return c.Head(ctx)
}

// HasStagedChanges reports whether the index differs from HEAD for paths.
func (c *Client) HasStagedChanges(ctx context.Context, paths ...string) (bool, error) {
	args := append([]string{"diff", "--cached", "--quiet", "--"}, paths...)
	_, err := c.Run(ctx, args...)
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, err
}

// Head returns the current commit id, or "" in a repository without commits.
func (c *Client) Head(ctx context.Context) (string, error) {
	out, err := c.Run(ctx, "rev-parse", "--verify", "-q", "HEAD")
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && strings.TrimSpace(cmdErr.Output) == "" {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// Status returns the porcelain status of the repo.
func (c *Client) Status(ctx context.Context) (string, error) {
	return c.Run(ctx, "status", "--porcelain")
}

// Dirty reports whether the working tree differs from HEAD for paths,
// untracked files included.
func (c *Client) Dirty(ctx context.Context, paths ...string) (bool, error) {
	args := append([]string{"status", "--porcelain", "--untracked-files=all", "--"}, paths...)
	out, err := c.Run(ctx, args...)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// HasRemote reports whether the named remote is configured.
func (c *Client) HasRemote(ctx context.Context, name string) bool {
	out, err := c.Run(ctx, "remote")
	if err != nil {
		return false
	}
	for _, r := range strings.Fields(out) {
		if r == name {
			return true
		}
	}
	return false
}

// CurrentBranch returns the checked-out branch name.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	return c.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// Push pushes branch to remote.
func (c *Client) Push(ctx context.Context, remote, branch string) error {
	args := []string{"push", remote}
	if branch != "" {
		args = append(args, branch)
	}
	_, err := c.Run(ctx, args...)
	return err
}

// Pull fetches and rebases onto remote/branch.
func (c *Client) Pull(ctx context.Context, remote, branch string) error {
	args := []string{"pull", "--rebase", "--autostash", remote}
	if branch != "" {
		args = append(args, branch)
	}
	_, err := c.Run(ctx, args...)
	return err
}

// RebaseAbort abandons a rebase left behind by a failed pull.
func (c *Client) RebaseAbort(ctx context.Context) error {
	_, err := c.Run(ctx, "rebase", "--abort")
	return err
}

// IsRepo reports whether the working directory holds a git repository.
func (c *Client) IsRepo() bool {
	info, err := os.Stat(filepath.Join(c.WorkDir, ".git"))
	return err == nil && info.IsDir()
}

// IsInstalled reports whether the git binary is available.
func IsInstalled() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

var networkMarkers = []string{
	"could not resolve host",
	"connection timed out",
	"connection refused",
	"connection reset",
	"operation timed out",
	"unable to access",
	"could not read from remote repository",
	"the remote end hung up",
	"early eof",
	"rpc failed",
	"temporary failure",
	"network is unreachable",
}

// IsNetworkError reports whether a failed remote command looks like a
// connectivity problem that may go away on retry.
func IsNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	out := strings.ToLower(cmdErr.Output)
	for _, m := range networkMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}

// IsConflict reports whether a failed pull stopped on a merge conflict.
func IsConflict(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return strings.Contains(cmdErr.Output, "CONFLICT") || strings.Contains(cmdErr.Output, "could not apply")
}
