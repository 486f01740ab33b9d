package objectstore

import (
	"errors"
	"fmt"
)

// ErrObjectNotFound marks a Stat/Delete against a key that does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Error is the typed failure returned by every gateway operation. The gateway
// performs no retries itself, so callers can assume a returned Error describes
// a single attempt.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("objectstore: %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("objectstore: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Key: key, Err: err}
}
