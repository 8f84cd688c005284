package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/models"
)

// Every method takes ctx first so a cancelled request also cancels its
// queries. Lookups by id return nil, nil when nothing matches.

// NewUser is the input for creating a User and its Profile in one step.
type NewUser struct {
	Email        string
	Username     string
	FirstName    string
	LastName     string
	PasswordHash string
	Photo        string
	IsTeacher    bool
}

// ProfileUpdate changes only the fields that are non-nil.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Bio       *string
	Photo     *string
}

type UserRepository interface {
	// Create inserts the user and its profile in one transaction.
	// Returns ErrEmailTaken if the email is already registered.
	Create(ctx context.Context, u NewUser) (*models.User, error)

	// UpsertByEmail returns the user with u.Email, creating it (and its
	// profile) when missing. Used by external login.
	UpsertByEmail(ctx context.Context, u NewUser) (*models.User, error)

	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ListByIDs returns the users that exist among ids, in no particular order.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)

	// Search matches query against first and last name, case-insensitively.
	Search(ctx context.Context, query string, limit int) ([]models.User, error)

	UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (*models.User, error)
	SetGroup(ctx context.Context, userID uuid.UUID, groupID uuid.UUID) error
}

type GroupRepository interface {
	// Create returns ErrGroupCodeTaken if the join code is in use.
	Create(ctx context.Context, g models.Group) (*models.Group, error)
	GetByID(ctx context.Context, groupID uuid.UUID) (*models.Group, error)
	GetByCode(ctx context.Context, code string) (*models.Group, error)
	Update(ctx context.Context, g models.Group) (*models.Group, error)

	// MemberIDs returns the users whose profile is tagged with the group.
	MemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
}

// NewChat is the input for ChatRepository.Create. MemberIDs must already
// contain the creator.
type NewChat struct {
	Name      string
	Photo     string
	Type      models.ChatType
	CreatorID *uuid.UUID
	GroupID   *uuid.UUID
	MemberIDs []uuid.UUID
}

// ChatUpdate changes only the fields that are non-nil.
type ChatUpdate struct {
	Name  *string
	Photo *string
}

type ChatRepository interface {
	// Create inserts the chat with its members. Returns ErrChatExists when a
	// private chat for the same pair, or a diploma chat for the same group,
	// already exists.
	Create(ctx context.Context, c NewChat) (*models.Chat, error)

	GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)

	// ListForMember returns the chats userID belongs to, each with its most
	// recent message. Chats with newer activity come first.
	ListForMember(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error)

	Update(ctx context.Context, chatID uuid.UUID, upd ChatUpdate) (*models.Chat, error)

	// Delete removes the chat together with its messages and memberships.
	Delete(ctx context.Context, chatID uuid.UUID) error

	// AddMembers and RemoveMembers are idempotent.
	AddMembers(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error
	RemoveMembers(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error

	// IsMember is on the hot path of every send and every realtime join.
	IsMember(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (bool, error)

	FindPrivate(ctx context.Context, a, b uuid.UUID) (*models.Chat, error)
	GetByGroup(ctx context.Context, groupID uuid.UUID) (*models.Chat, error)

	// SetCreator records the curator of a diploma chat's group as its creator.
	SetCreator(ctx context.Context, chatID uuid.UUID, creatorID uuid.UUID) error
}

// NewMessage carries Text or File. The number is assigned by the store.
type NewMessage struct {
	ChatID   uuid.UUID
	SenderID uuid.UUID
	Text     string
	File     string
}

// MessageFilter selects messages of one chat. StartingNumber, when set, keeps
// messages with number <= *StartingNumber.
type MessageFilter struct {
	ChatID         uuid.UUID
	PinnedOnly     bool
	StartingNumber *int64
	Limit          int
}

type MessageRepository interface {
	// Create allocates the next number in the chat and stores the message in
	// the same critical section. Returns ErrNotFound for an unknown chat and
	// ErrSequenceConflict if the number was taken concurrently.
	Create(ctx context.Context, m NewMessage) (*models.Message, error)

	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// List returns matching messages ordered by number, highest first.
	List(ctx context.Context, f MessageFilter) ([]models.Message, error)

	SetPinned(ctx context.Context, messageID int64, pinned bool) (*models.Message, error)
}

// Store bundles the repositories of one storage backend.
type Store struct {
	Users    UserRepository
	Groups   GroupRepository
	Chats    ChatRepository
	Messages MessageRepository
}
