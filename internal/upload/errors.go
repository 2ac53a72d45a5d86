package upload

import (
	"errors"
	"fmt"
)

// ErrorKind classifies upload failures.
type ErrorKind string

const (
	InvalidType    ErrorKind = "invalid-type"
	Oversize       ErrorKind = "oversize"
	BackendFailure ErrorKind = "backend-failure"
)

// Error is returned by every upload operation.
type Error struct {
	Kind        ErrorKind
	ContentType string
	Size        int64
	Max         int64
	Err         error
}

func (e *Error) Error() string {
	switch e.Kind {
	case InvalidType:
		return fmt.Sprintf("upload: unsupported content type %q", e.ContentType)
	case Oversize:
		return fmt.Sprintf("upload: file is %d bytes, limit is %d", e.Size, e.Max)
	default:
		if e.Err != nil {
			return fmt.Sprintf("upload: %s: %v", e.Kind, e.Err)
		}
		return "upload: " + string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// IsKind reports whether err is an upload error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
