// Package sequence hands out per-chat message numbers.
//
// Numbers start at 0 and grow by one for every message in a chat. Two
// writers in the same chat never get the same number and never leave a gap.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/cohortchat/internal/repository"
)

// Querier is the part of pgx.Tx that Next needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Next returns the number for a new message in chatID.
//
// It has to run inside the transaction that inserts the message. The chat
// row stays locked FOR UPDATE until that transaction ends, so writers to the
// same chat queue behind each other while other chats are unaffected.
//
// Why lock the chat row and not the messages? MAX(number) over messages
// locks nothing when the chat has no messages yet, and two transactions
// that both read the same MAX would both try to insert the same number.
// The chat row always exists, so locking it serializes even the very first
// send. The UNIQUE (chat_id, number) index stays as the backstop.
func Next(ctx context.Context, q Querier, chatID uuid.UUID) (int64, error) {
	var locked uuid.UUID
	err := q.QueryRow(ctx, `SELECT id FROM chats WHERE id = $1 FOR UPDATE`, chatID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock chat: %w", err)
	}

	var next int64
	err = q.QueryRow(ctx,
		`SELECT COALESCE(MAX(number) + 1, 0) FROM messages WHERE chat_id = $1`,
		chatID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("read max number: %w", err)
	}
	return next, nil
}
