package service

import (
	"errors"
	"fmt"
)

// Errors returned by services fall into four groups. The API layer maps
// them to status codes:
//
//	*ValidationError   400
//	*policy.Denial     403 (as are ErrChatExists and ErrDiplomaManaged)
//	*NotFoundError     404
//	*StorageError      500
var (
	ErrChatExists     = errors.New("this chat already exists")
	ErrDiplomaManaged = errors.New("diploma chats are created together with their group")

	// ErrUnauthenticated means the token is valid but its user no longer exists.
	ErrUnauthenticated = errors.New("unauthenticated")
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

func notFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// StorageError wraps a failure of the persistence layer, including
// repository.ErrSequenceConflict.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func storage(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
