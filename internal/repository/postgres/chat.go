package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/repository"
)

type ChatStore struct {
	pool *pgxpool.Pool
}

func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

const chatColumns = `c.id, c.name, c.photo, c.type, c.creator_id, c.group_id, c.created_at`

func scanChat(row pgx.Row) (*models.Chat, error) {
	var c models.Chat
	err := row.Scan(&c.ID, &c.Name, &c.Photo, &c.Type, &c.CreatorID, &c.GroupID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// PairKey is the value stored in chats.pair_key for a private chat between
// a and b. It does not depend on argument order.
func PairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}

func (s *ChatStore) Create(ctx context.Context, nc repository.NewChat) (*models.Chat, error) {
	var pairKey *string
	if nc.Type == models.ChatPrivate {
		if len(nc.MemberIDs) != 2 {
			return nil, fmt.Errorf("private chat needs 2 members, got %d", len(nc.MemberIDs))
		}
		k := PairKey(nc.MemberIDs[0], nc.MemberIDs[1])
		pairKey = &k
	}

	chat := &models.Chat{
		ID:        uuid.New(),
		Name:      nc.Name,
		Photo:     nc.Photo,
		Type:      nc.Type,
		CreatorID: nc.CreatorID,
		GroupID:   nc.GroupID,
		MemberIDs: dedupe(nc.MemberIDs),
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO chats (id, name, photo, type, creator_id, group_id, pair_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			RETURNING created_at`,
			chat.ID, chat.Name, chat.Photo, chat.Type, chat.CreatorID, chat.GroupID, pairKey,
		).Scan(&chat.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		return addMembers(ctx, tx, chat.ID, chat.MemberIDs)
	})
	if err != nil {
		if uniqueViolationOn(err, "chats_pair_key_key") || uniqueViolationOn(err, "chats_group_id_key") {
			return nil, repository.ErrChatExists
		}
		return nil, err
	}
	return chat, nil
}

func (s *ChatStore) GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	return s.getOne(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.id = $1`, chatID)
}

func (s *ChatStore) FindPrivate(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	return s.getOne(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.pair_key = $1`, PairKey(a, b))
}

func (s *ChatStore) GetByGroup(ctx context.Context, groupID uuid.UUID) (*models.Chat, error) {
	return s.getOne(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.group_id = $1`, groupID)
}

func (s *ChatStore) getOne(ctx context.Context, query string, arg any) (*models.Chat, error) {
	c, err := scanChat(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	members, err := s.memberIDs(ctx, []uuid.UUID{c.ID})
	if err != nil {
		return nil, err
	}
	c.MemberIDs = members[c.ID]
	if c.MemberIDs == nil {
		c.MemberIDs = make([]uuid.UUID, 0)
	}
	return c, nil
}

// ListForMember joins each chat with its highest-numbered message.
func (s *ChatStore) ListForMember(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	query := `
		SELECT ` + chatColumns + `,
		       m.id, m.sender_id, m.text, m.file, m.pinned, m.number, m.created_at
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id AND cm.user_id = $1
		LEFT JOIN LATERAL (
			SELECT id, sender_id, text, file, pinned, number, created_at
			FROM messages
			WHERE chat_id = c.id
			ORDER BY number DESC
			LIMIT 1
		) m ON true
		ORDER BY COALESCE(m.created_at, c.created_at) DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.ChatSummary, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var (
			cs        models.ChatSummary
			msgID     *int64
			senderID  *uuid.UUID
			text      *string
			file      *string
			pinned    *bool
			number    *int64
			createdAt *time.Time
		)
		if err := rows.Scan(
			&cs.ID, &cs.Name, &cs.Photo, &cs.Type, &cs.CreatorID, &cs.GroupID, &cs.CreatedAt,
			&msgID, &senderID, &text, &file, &pinned, &number, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if msgID != nil {
			cs.LastMessage = &models.Message{
				ID:        *msgID,
				ChatID:    cs.ID,
				SenderID:  *senderID,
				Text:      *text,
				File:      *file,
				Pinned:    *pinned,
				Number:    *number,
				CreatedAt: *createdAt,
			}
		}
		chats = append(chats, cs)
		ids = append(ids, cs.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	members, err := s.memberIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		chats[i].MemberIDs = members[chats[i].ID]
	}
	return chats, nil
}

func (s *ChatStore) Update(ctx context.Context, chatID uuid.UUID, upd repository.ChatUpdate) (*models.Chat, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chats
		SET name  = COALESCE($2, name),
		    photo = COALESCE($3, photo)
		WHERE id = $1`,
		chatID, upd.Name, upd.Photo,
	)
	if err != nil {
		return nil, fmt.Errorf("update chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, repository.ErrNotFound
	}
	return s.GetByID(ctx, chatID)
}

func (s *ChatStore) SetCreator(ctx context.Context, chatID uuid.UUID, creatorID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chats SET creator_id = $2 WHERE id = $1 AND type = 'diploma'`, chatID, creatorID)
	if err != nil {
		return fmt.Errorf("set chat creator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete relies on ON DELETE CASCADE for messages and memberships.
func (s *ChatStore) Delete(ctx context.Context, chatID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
