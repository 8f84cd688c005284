package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// addMembers inserts memberships, skipping ones that already exist.
func addMembers(ctx context.Context, db execer, chatID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := db.Exec(ctx, `
		INSERT INTO chat_members (chat_id, user_id, joined_at)
		SELECT $1, u, now() FROM unnest($2::uuid[]) AS u
		ON CONFLICT (chat_id, user_id) DO NOTHING`,
		chatID, userIDs,
	)
	if err != nil {
		return fmt.Errorf("add members: %w", err)
	}
	return nil
}

func (s *ChatStore) AddMembers(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error {
	return addMembers(ctx, s.pool, chatID, userIDs)
}

// RemoveMembers deletes the given memberships. Ids that are not members are
// ignored.
func (s *ChatStore) RemoveMembers(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM chat_members
		WHERE chat_id = $1 AND user_id = ANY($2)`,
		chatID, userIDs,
	)
	if err != nil {
		return fmt.Errorf("remove members: %w", err)
	}
	return nil
}

func (s *ChatStore) IsMember(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM chat_members
			WHERE chat_id = $1 AND user_id = $2
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, chatID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// memberIDs loads the member sets of several chats in one query.
func (s *ChatStore) memberIDs(ctx context.Context, chatIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT chat_id, user_id
		FROM chat_members
		WHERE chat_id = ANY($1)
		ORDER BY joined_at`,
		chatIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var chatID, userID uuid.UUID
	_, err = pgx.ForEachRow(rows, []any{&chatID, &userID}, func() error {
		out[chatID] = append(out[chatID], userID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan members: %w", err)
	}
	return out, nil
}
