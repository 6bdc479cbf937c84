package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aretw0/folio/pkg/core"
)

// SaveAttachment stores a file next to an existing page and commits it.
// Uploading identical bytes again is a no-op.
func (r *Repository) SaveAttachment(ctx context.Context, page, filename string, data io.Reader) (core.Commit, error) {
	clean, err := core.ValidatePath(page)
	if err != nil {
		return core.Commit{}, err
	}
	if err := core.ValidateAttachmentName(filename); err != nil {
		return core.Commit{}, err
	}

	rel := attachmentRel(clean) + "/" + filename
	msg := changeReason(ctx, fmt.Sprintf("Attach %s to %s", filename, clean))
	return r.commit(ctx, "attach", clean, msg, func(tx *txn) error {
		if !fileExists(r.abs(pageRel(clean))) {
			return core.NotFound("attach", clean)
		}
		return tx.writeFrom(rel, data)
	})
}

// OpenAttachment opens a stored attachment for reading.
func (r *Repository) OpenAttachment(ctx context.Context, page, filename string) (io.ReadCloser, error) {
	clean, err := core.ValidatePath(page)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateAttachmentName(filename); err != nil {
		return nil, err
	}
	f, err := os.Open(r.abs(attachmentRel(clean) + "/" + filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NotFound("attachment", clean+"/"+filename)
		}
		return nil, core.Storage("attachment", clean, err)
	}
	return f, nil
}

// ListAttachments returns the files stored for page, sorted by name.
func (r *Repository) ListAttachments(ctx context.Context, page string) ([]core.Attachment, error) {
	clean, err := core.ValidatePath(page)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.abs(attachmentRel(clean)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.Storage("attachments", clean, err)
	}

	var out []core.Attachment
	for _, e := range entries {
		if e.IsDir() || core.ValidateAttachmentName(e.Name()) != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, core.Attachment{
			PagePath: clean,
			Filename: e.Name(),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}
