package storage

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Every error returned by the store is an *Error carrying one
// of these as its Kind and no other kind in its chain.
var (
	ErrDirCreation     = errors.New("directory could not be created")
	ErrUnspecified     = errors.New("unknown error")
	ErrCompression     = errors.New("compression failed")
	ErrDeserialization = errors.New("deserialization failed")
	ErrSerialization   = errors.New("serialization failed")
	ErrRead            = errors.New("data was not read correctly")
	ErrWrite           = errors.New("data was not written")
	ErrNotFound        = errors.New("record not found")
	ErrClosed          = errors.New("store closed")
)

// Error carries the failed operation, its kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func newError(op string, kind error, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// wrapKind keeps the kind of an already classified error and classifies
// anything else as kind.
func wrapKind(op string, kind error, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return newError(op, kind, err)
}
