package fs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/frontmatter"
)

// Save merges meta into the stored header, replaces the body and commits.
// Saving the stored content again is a no-op that returns HEAD.
func (r *Repository) Save(ctx context.Context, path, body string, meta *frontmatter.Metadata) (core.Commit, error) {
	clean, err := core.ValidatePath(path)
	if err != nil {
		return core.Commit{}, err
	}
	if core.IsArchived(clean) {
		return core.Commit{}, core.E(core.KindInvalidPath, "save", clean,
			fmt.Errorf("%s/ is reserved for archived documents", core.ArchiveRoot))
	}

	rel := pageRel(clean)
	created := false
	commit, err := r.commit(ctx, "save", clean, changeReason(ctx, "Update "+clean), func(tx *txn) error {
		stored := frontmatter.NewMetadata()
		storedBody := ""
		exists := false

		data, err := os.ReadFile(r.abs(rel))
		switch {
		case err == nil:
			exists = true
			stored, storedBody = frontmatter.Decode(string(data))
		case !os.IsNotExist(err):
			return err
		}

		next := stored.Clone()
		next.Merge(meta.Without(core.LastUpdatedKey))
		if exists && storedBody == body && next.Without(core.LastUpdatedKey).Equal(stored.Without(core.LastUpdatedKey)) {
			return errNoChange
		}
		next.Set(core.LastUpdatedKey, frontmatter.DateTime(r.stamp(stored)))

		out, err := frontmatter.Encode(next, body)
		if err != nil {
			return err
		}
		created = !exists
		return tx.write(rel, []byte(out))
	})
	if err != nil {
		return core.Commit{}, err
	}
	commit.Created = created && !commit.NoOp
	return commit, nil
}

// stamp returns the last_updated value for a new revision. It never moves
// backwards, even when the clock does.
func (r *Repository) stamp(stored *frontmatter.Metadata) time.Time {
	now := r.config.Now().UTC().Truncate(time.Second)
	if v, ok := stored.Get(core.LastUpdatedKey); ok {
		if prev, ok := v.Time(); ok && prev.After(now) {
			return prev
		}
	}
	return now
}

// Move renames a document together with its attachment directory.
func (r *Repository) Move(ctx context.Context, from, to string) (core.Commit, error) {
	src, err := core.ValidatePath(from)
	if err != nil {
		return core.Commit{}, err
	}
	dst, err := core.ValidatePath(to)
	if err != nil {
		return core.Commit{}, err
	}
	if core.IsArchived(dst) {
		return core.Commit{}, core.E(core.KindInvalidPath, "move", dst,
			errors.New("use archive to move a document into the archive"))
	}
	return r.move(ctx, "move", src, dst, changeReason(ctx, fmt.Sprintf("Move %s to %s", src, dst)))
}

// Archive moves a document under archive/.
func (r *Repository) Archive(ctx context.Context, path string) (core.Commit, error) {
	clean, err := core.ValidatePath(path)
	if err != nil {
		return core.Commit{}, err
	}
	if core.IsArchived(clean) {
		return core.Commit{}, core.E(core.KindAlreadyArchived, "archive", clean, nil)
	}
	return r.move(ctx, "archive", clean, core.ArchivePath(clean), changeReason(ctx, "Archive "+clean))
}

// Restore moves an archived document back to its original path.
func (r *Repository) Restore(ctx context.Context, path string) (core.Commit, error) {
	clean, err := core.ValidatePath(path)
	if err != nil {
		return core.Commit{}, err
	}
	if !core.IsArchived(clean) {
		return core.Commit{}, core.E(core.KindInvalidPath, "restore", clean, errors.New("document is not archived"))
	}
	dst := core.UnarchivePath(clean)
	return r.move(ctx, "restore", clean, dst, changeReason(ctx, "Restore "+dst))
}

func (r *Repository) move(ctx context.Context, op, src, dst, message string) (core.Commit, error) {
	if src == dst {
		return core.Commit{}, core.E(core.KindConflict, op, dst, errors.New("source and destination are the same"))
	}

	srcAtt, dstAtt := attachmentRel(src), attachmentRel(dst)
	commit, err := r.commit(ctx, op, src, message, func(tx *txn) error {
		if !fileExists(r.abs(pageRel(src))) {
			return core.NotFound(op, src)
		}
		if fileExists(r.abs(pageRel(dst))) {
			return core.E(core.KindConflict, op, dst, errors.New("destination already exists"))
		}

		hasAttachments := dirExists(r.abs(srcAtt))
		if hasAttachments {
			if fileExists(r.abs(dstAtt)) {
				return core.E(core.KindConflict, op, dst, errors.New("destination attachments already exist"))
			}
			if strings.HasPrefix(dst, src+"/") {
				return core.E(core.KindInvalidPath, op, dst, errors.New("cannot move a page with attachments beneath itself"))
			}
		}

		if err := tx.rename(pageRel(src), pageRel(dst)); err != nil {
			return err
		}
		tx.onCommit(func() {
			removeEmptyParents(filepath.Dir(r.abs(pageRel(src))), r.abs(PagesDir))
			removeEmptyParents(filepath.Dir(r.abs(srcAtt)), r.abs(AttachmentsDir))
		})
		if hasAttachments {
			return tx.rename(srcAtt, dstAtt)
		}
		return nil
	})
	if err != nil {
		return core.Commit{}, err
	}
	return commit, nil
}

// Delete removes a document. Its attachments stay in history and on disk.
func (r *Repository) Delete(ctx context.Context, path string) (core.Commit, error) {
	clean, err := core.ValidatePath(path)
	if err != nil {
		return core.Commit{}, err
	}
	rel := pageRel(clean)
	commit, err := r.commit(ctx, "delete", clean, changeReason(ctx, "Delete "+clean), func(tx *txn) error {
		if !fileExists(r.abs(rel)) {
			return core.NotFound("delete", clean)
		}
		tx.onCommit(func() {
			removeEmptyParents(filepath.Dir(r.abs(rel)), r.abs(PagesDir))
		})
		return tx.remove(rel)
	})
	if err != nil {
		return core.Commit{}, err
	}
	return commit, nil
}

// readHeader parses only the frontmatter block of a page file.
func readHeader(path string) (*frontmatter.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var sb strings.Builder
	for i := 0; ; i++ {
		line, err := br.ReadString('\n')
		sb.WriteString(line)
		marker := strings.TrimRight(line, "\r\n") == "---"
		if i == 0 && !marker {
			return frontmatter.NewMetadata(), nil
		}
		if i > 0 && marker {
			break
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
	}
	return frontmatter.ReadHeader(sb.String()), nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
