package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/repository"
	"github.com/lalith-99/cohortchat/internal/sequence"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `id, chat_id, sender_id, text, file, pinned, number, created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.Text,
		&msg.File,
		&msg.Pinned,
		&msg.Number,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Create allocates the number and inserts the message in one transaction.
// The chat row lock taken by sequence.Next is held until commit.
func (s *MessageStore) Create(ctx context.Context, nm repository.NewMessage) (*models.Message, error) {
	var msg *models.Message
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		number, err := sequence.Next(ctx, tx, nm.ChatID)
		if err != nil {
			return err
		}

		msg, err = scanMessage(tx.QueryRow(ctx, `
			INSERT INTO messages (chat_id, sender_id, text, file, pinned, number, created_at)
			VALUES ($1, $2, $3, $4, false, $5, now())
			RETURNING `+messageColumns,
			nm.ChatID, nm.SenderID, nm.Text, nm.File, number,
		))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		if uniqueViolationOn(err, "messages_chat_number_key") {
			return nil, fmt.Errorf("%w: %v", repository.ErrSequenceConflict, err)
		}
		return nil, err
	}
	return msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// List pages backwards through a chat. StartingNumber is inclusive, so a
// client passes the number it wants to see first.
func (s *MessageStore) List(ctx context.Context, f repository.MessageFilter) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = $1
		  AND ($2::boolean IS FALSE OR pinned)
		  AND ($3::bigint IS NULL OR number <= $3)
		ORDER BY number DESC
		LIMIT $4::integer`

	var limit *int
	if f.Limit > 0 {
		limit = &f.Limit
	}

	rows, err := s.pool.Query(ctx, query, f.ChatID, f.PinnedOnly, f.StartingNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (s *MessageStore) SetPinned(ctx context.Context, messageID int64, pinned bool) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		UPDATE messages SET pinned = $2 WHERE id = $1
		RETURNING `+messageColumns,
		messageID, pinned,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("set pinned: %w", err)
	}
	return msg, nil
}
