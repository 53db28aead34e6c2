// Package xerrors defines the uniform error type and sentinel error kinds
// used across the daemon, mirroring spec §7's error-kind taxonomy.
package xerrors

import (
	"errors"
	"strings"
)

// Sentinel error kinds. Check with [errors.Is]; callers needing the kind
// name for an RPC payload can call [Kind] or switch on these.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyRunning  = errors.New("already running")
	ErrLockContention  = errors.New("lock contention")
	ErrStale           = errors.New("stale")
	ErrUnavailable     = errors.New("unavailable")
	ErrInvalidInput    = errors.New("invalid input")
	ErrExternalFailure = errors.New("external failure")
	ErrCancelled       = errors.New("cancelled")
	ErrFatal           = errors.New("fatal")
)

// Kind returns the short string name of err's sentinel kind, or "" if err
// does not wrap one of the kinds above. Used to populate the optional
// `kind` field of an RPC error payload (spec §7).
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrAlreadyRunning):
		return "AlreadyRunning"
	case errors.Is(err, ErrLockContention):
		return "LockContention"
	case errors.Is(err, ErrStale):
		return "Stale"
	case errors.Is(err, ErrUnavailable):
		return "Unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrExternalFailure):
		return "ExternalFailure"
	case errors.Is(err, ErrCancelled):
		return "Cancelled"
	case errors.Is(err, ErrFatal):
		return "Fatal"
	default:
		return ""
	}
}

// Error is the structured error type returned by daemon-internal APIs. It
// attaches project/collection/point context to an underlying cause the way
// the teacher's mddb.Error attaches document context.
//
//	read hnsw_index.bin: permission denied (project=/repo collection=default)
//
// Use [errors.As] to extract structured fields, [errors.Is] for sentinels.
type Error struct {
	Project    string
	Collection string
	Point      string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	suffix := e.suffix()
	switch {
	case suffix == "":
		return cause
	case cause == "":
		return suffix
	default:
		return cause + " " + suffix
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func (e *Error) suffix() string {
	var parts []string

	if e.Project != "" {
		parts = append(parts, "project="+e.Project)
	}

	if e.Collection != "" {
		parts = append(parts, "collection="+e.Collection)
	}

	if e.Point != "" {
		parts = append(parts, "point="+e.Point)
	}

	if len(parts) == 0 {
		return ""
	}

	return "(" + strings.Join(parts, " ") + ")"
}

type opt func(*Error)

// WithProject attaches the project path to a wrapped error.
func WithProject(path string) opt { return func(e *Error) { e.Project = path } }

// WithCollection attaches a collection name to a wrapped error.
func WithCollection(name string) opt { return func(e *Error) { e.Collection = name } }

// WithPoint attaches a point id to a wrapped error.
func WithPoint(id string) opt { return func(e *Error) { e.Point = id } }

// Wrap builds an [*Error] around err, inheriting and then overriding any
// context already present if err is itself an [*Error]. Returns nil for a
// nil err, and returns err unchanged if it is already an [*Error] with no
// new options supplied.
func Wrap(err error, opts ...func(*Error)) error {
	if err == nil {
		return nil
	}

	existing, isDirect := err.(*Error) //nolint:errorlint // intentional direct check, see mddb.wrap
	if isDirect && len(opts) == 0 {
		return existing
	}

	e := &Error{Err: err}

	if isDirect {
		e.Project = existing.Project
		e.Collection = existing.Collection
		e.Point = existing.Point
		e.Err = existing.Err
	}

	for _, o := range opts {
		o(e)
	}

	return e
}
