package repository

import "errors"

var (
	// ErrNotFound is returned by writes that reference a missing row.
	// Plain lookups return nil, nil instead.
	ErrNotFound = errors.New("not found")

	// ErrSequenceConflict means another writer stored the same number in
	// the chat. The message is not stored and must not be retried with a
	// guessed number.
	ErrSequenceConflict = errors.New("message number already taken")

	ErrChatExists     = errors.New("chat already exists")
	ErrEmailTaken     = errors.New("email already registered")
	ErrGroupCodeTaken = errors.New("group code already in use")
)
