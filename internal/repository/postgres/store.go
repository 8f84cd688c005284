package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/cohortchat/internal/repository"
)

// NewStore wires every Postgres repository to the same pool.
func NewStore(pool *pgxpool.Pool) repository.Store {
	return repository.Store{
		Users:    NewUserStore(pool),
		Groups:   NewGroupStore(pool),
		Chats:    NewChatStore(pool),
		Messages: NewMessageStore(pool),
	}
}

var (
	_ repository.UserRepository    = (*UserStore)(nil)
	_ repository.GroupRepository   = (*GroupStore)(nil)
	_ repository.ChatRepository    = (*ChatStore)(nil)
	_ repository.MessageRepository = (*MessageStore)(nil)
)
