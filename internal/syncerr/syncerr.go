// Package syncerr defines the error kinds a sync run can fail with.
//
// Callers match kinds with errors.Is against the exported sentinels:
//
//	if errors.Is(err, syncerr.ErrMissingPayload) { ... }
package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure
type Kind string

const (
	KindIO                Kind = "io"
	KindNetwork           Kind = "network"
	KindMissingPayload    Kind = "missing_payload"
	KindMalformedManifest Kind = "malformed_manifest"
)

// Error is a classified failure with the operation and path or URL it concerns
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrIO                = &Error{Kind: KindIO}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrMissingPayload    = &Error{Kind: KindMissingPayload}
	ErrMalformedManifest = &Error{Kind: KindMalformedManifest}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// IO wraps a local read, write or hash failure
func IO(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Network wraps a fetch failure
func Network(op, url string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Path: url, Err: err}
}

// MissingPayload reports a bundle without an installable payload
func MissingPayload(format string, args ...any) error {
	return &Error{Kind: KindMissingPayload, Err: fmt.Errorf(format, args...)}
}

// MalformedManifest reports a manifest document that could not be parsed at all
func MalformedManifest(op string, err error) error {
	return &Error{Kind: KindMalformedManifest, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FileFailure records a per-file failure that did not abort the run
type FileFailure struct {
	Path string
	Err  error
}

func (f FileFailure) String() string {
	return f.Path + ": " + f.Err.Error()
}
