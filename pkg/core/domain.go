// Package core holds the domain of the documentation store: documents,
// the error taxonomy, path rules and the Service that keeps the derived
// surfaces (search, navigation, remote mirror) in step with every commit.
package core

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/aretw0/folio/pkg/frontmatter"
)

// LastUpdatedKey is the only system-managed metadata key.
const LastUpdatedKey = "last_updated"

// TitleKey is displayed as the page heading.
const TitleKey = "title"

// IsSystemManaged reports whether key may only be written by the store.
func IsSystemManaged(key string) bool {
	return key == LastUpdatedKey
}

// Document is one markdown page addressed by its path.
type Document struct {
	Path         string
	Content      string
	Metadata     *frontmatter.Metadata
	LastModified time.Time
}

// Title returns the title metadata, falling back to the humanized basename.
func (d Document) Title() string {
	return TitleFor(d.Path, d.Metadata)
}

// Property is a displayable metadata entry.
type Property struct {
	Key   string
	Value frontmatter.Value
}

// Properties returns the metadata entries shown in a generic properties
// view: everything except the title.
func (d Document) Properties() []Property {
	var out []Property
	for _, k := range d.Metadata.Keys() {
		if k == TitleKey {
			continue
		}
		v, _ := d.Metadata.Get(k)
		out = append(out, Property{Key: k, Value: v})
	}
	return out
}

// UserMetadata returns a copy of the metadata without system-managed keys.
func (d Document) UserMetadata() *frontmatter.Metadata {
	return d.Metadata.Without(LastUpdatedKey)
}

// dateKeys name the metadata entries that date a page's content, in
// priority order, lower-cased and without underscores.
var dateKeys = []string{"lastupdated", "updated", "date", "modified", "lastmodified"}

// ContentDate returns the first Date or DateTime entry among last_updated,
// updated, date, modified and last_modified. Keys match ignoring case and
// underscores, so Last_Modified counts.
func ContentDate(meta *frontmatter.Metadata) (time.Time, bool) {
	byKey := make(map[string]frontmatter.Value)
	for _, k := range meta.Keys() {
		norm := strings.ReplaceAll(strings.ToLower(k), "_", "")
		if _, seen := byKey[norm]; !seen {
			byKey[norm], _ = meta.Get(k)
		}
	}
	for _, k := range dateKeys {
		if v, ok := byKey[k]; ok {
			if t, ok := v.Time(); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// TitleFor derives a display title for path.
func TitleFor(p string, meta *frontmatter.Metadata) string {
	if t := meta.Title(); t != "" {
		return t
	}
	return HumanizeSlug(path.Base(p))
}

// Commit is the outcome of a mutating store operation.
type Commit struct {
	ID string `json:"id"`
	// Created is set when Save wrote a path that did not exist.
	Created bool `json:"created,omitempty"`
	// NoOp is set when nothing changed and no commit was made. ID is the
	// current HEAD in that case.
	NoOp bool `json:"noop,omitempty"`
}

// Attachment is a binary file owned by a page.
type Attachment struct {
	PagePath string    `json:"page_path"`
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// Change is one entry of the repository history.
type Change struct {
	Commit  string    `json:"commit"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
	Paths   []string  `json:"paths"`
}

// EventKind classifies a document mutation for notifications.
type EventKind string

const (
	EventCreate  EventKind = "create"
	EventEdit    EventKind = "edit"
	EventMove    EventKind = "move"
	EventArchive EventKind = "archive"
	EventDelete  EventKind = "delete"
)

// Notification is what the notification sink receives.
type Notification struct {
	Kind  EventKind `json:"kind"`
	Title string    `json:"title"`
	Link  string    `json:"link,omitempty"`
}

// Task types known to the store.
const (
	TaskSync      = "sync"
	TaskPull      = "pull"
	TaskCacheWarm = "cache-warm"
	TaskNotify    = "notify"
	TaskReindex   = "reindex"
)

// SyncPayload pushes local commits and then notifies about them.
type SyncPayload struct {
	Message string        `json:"message"`
	Event   *Notification `json:"event,omitempty"`
}

// ReindexPayload reindexes one path, or everything when Path is empty.
type ReindexPayload struct {
	Path string `json:"path,omitempty"`
}

// NotifyPayload sends a single notification.
type NotifyPayload struct {
	Event Notification `json:"event"`
}

type contextKey string

// ChangeReasonKey is the context key for passing the commit message of a mutation.
const ChangeReasonKey contextKey = "change_reason"

type lockObserverKey struct{}

// WithLockObserver attaches fn to ctx. Stores call it with the time spent
// waiting for the writer lock when that wait was noticeable.
func WithLockObserver(ctx context.Context, fn func(waited time.Duration)) context.Context {
	return context.WithValue(ctx, lockObserverKey{}, fn)
}

// ObserveLockWait reports a lock wait to the observer attached to ctx.
func ObserveLockWait(ctx context.Context, waited time.Duration) {
	if fn, ok := ctx.Value(lockObserverKey{}).(func(time.Duration)); ok && fn != nil {
		fn(waited)
	}
}
