package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the store, index, cache or sink
// matches exactly one of these through errors.Is.
var (
	ErrInvalidPath      = errors.New("invalid path")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrAlreadyArchived  = errors.New("already archived")
	ErrLockTimeout      = errors.New("lock timeout")
	ErrStorage          = errors.New("storage error")
	ErrTransientNetwork = errors.New("transient network error")
	ErrNotification     = errors.New("notification error")
)

// Kind names an error class of the taxonomy.
type Kind string

const (
	KindInvalidPath      Kind = "invalid_path"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindAlreadyArchived  Kind = "already_archived"
	KindLockTimeout      Kind = "lock_timeout"
	KindStorage          Kind = "storage"
	KindTransientNetwork Kind = "transient_network"
	KindNotification     Kind = "notification"
)

var sentinels = map[Kind]error{
	KindInvalidPath:      ErrInvalidPath,
	KindNotFound:         ErrNotFound,
	KindConflict:         ErrConflict,
	KindAlreadyArchived:  ErrAlreadyArchived,
	KindLockTimeout:      ErrLockTimeout,
	KindStorage:          ErrStorage,
	KindTransientNetwork: ErrTransientNetwork,
	KindNotification:     ErrNotification,
}

// Error is a structured error carrying its taxonomy kind, the failed
// operation and the path it concerned.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// E builds an *Error.
func E(kind Kind, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + sentinels[e.Kind].Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s, ok := sentinels[e.Kind]; ok {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf returns the taxonomy kind of err, or "" when err is unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return ""
}

// IsTransient reports whether err may succeed when retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}

// Transient marks err as a transient network failure.
func Transient(op string, err error) error {
	return E(KindTransientNetwork, op, "", err)
}

// Storage wraps a fatal I/O or version-control failure.
func Storage(op, path string, err error) error {
	return E(KindStorage, op, path, err)
}

// NotFound reports that path does not exist.
func NotFound(op, path string) error {
	return E(KindNotFound, op, path, nil)
}

func invalidPath(path string, format string, args ...any) error {
	return E(KindInvalidPath, "validate", path, fmt.Errorf(format, args...))
}
