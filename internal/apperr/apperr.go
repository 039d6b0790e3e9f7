// Package apperr defines the error taxonomy shared by the annotation,
// document and dataset packages.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can
// use errors.Is without caring about the concrete type.
var (
	// ErrNotFound indicates a missing file, tag, document key or snapshot.
	ErrNotFound = errors.New("not found")
	// ErrStructural indicates malformed annotation content or a corrupt snapshot.
	ErrStructural = errors.New("structural error")
	// ErrDuplicateKey indicates a document key already present in a dataset.
	ErrDuplicateKey = errors.New("duplicate key")
)

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string // "file", "tag", "document", "snapshot"
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// Is lets errors.Is match ErrNotFound even when Err carries an underlying
// cause such as fs.ErrNotExist.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StructuralError reports malformed input. Line is 1-based and zero when the
// problem is not tied to a line (e.g. an unresolved relation argument).
type StructuralError struct {
	Line int
	Tag  string
	Msg  string
}

func (e *StructuralError) Error() string {
	switch {
	case e.Line > 0 && e.Tag != "":
		return fmt.Sprintf("line %d (%s): %s", e.Line, e.Tag, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	case e.Tag != "":
		return fmt.Sprintf("%s: %s", e.Tag, e.Msg)
	}
	return e.Msg
}

func (e *StructuralError) Unwrap() error { return ErrStructural }

// DuplicateKeyError reports a dataset key collision.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("document key already exists: %s", e.Key)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// NotFound is shorthand for &NotFoundError{Resource: resource, ID: id}.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Structural builds a StructuralError with a formatted message.
func Structural(line int, tag, format string, args ...any) error {
	return &StructuralError{Line: line, Tag: tag, Msg: fmt.Sprintf(format, args...)}
}
