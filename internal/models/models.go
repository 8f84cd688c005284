package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatType is fixed when a chat is created and never changes afterwards.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatDiploma ChatType = "diploma"
)

func (t ChatType) Valid() bool {
	switch t {
	case ChatPrivate, ChatGroup, ChatDiploma:
		return true
	}
	return false
}

// User is an account. Email is the login key and is unique; username may be
// empty. PasswordHash stays empty for accounts created through Google login.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	Profile      Profile   `json:"profile"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is created in the same transaction as its User and lives as long
// as the User does.
type Profile struct {
	Bio            string     `json:"bio"`
	Photo          string     `json:"photo"`
	IsTeacher      bool       `json:"is_teacher"`
	GroupID        *uuid.UUID `json:"group_id"`
	EmailConfirmed bool       `json:"email_confirmed"`
}

// Group is an academic cohort. Students join it with Code; each Group owns
// exactly one diploma chat.
type Group struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Code       string     `json:"code"`
	Institute  string     `json:"institute"`
	Faculty    string     `json:"faculty"`
	StudyYear  int        `json:"study_year"`
	Speciality string     `json:"speciality"`
	Degree     string     `json:"degree"`
	CuratorID  *uuid.UUID `json:"curator_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Chat is a conversation with a fixed type and a member set.
//
// CreatorID is set for group chats, and for diploma chats once the Group has
// a curator. GroupID is set only for diploma chats.
type Chat struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Photo     string      `json:"photo"`
	Type      ChatType    `json:"type"`
	CreatorID *uuid.UUID  `json:"creator_id"`
	GroupID   *uuid.UUID  `json:"group_id"`
	MemberIDs []uuid.UUID `json:"users"`
	CreatedAt time.Time   `json:"created_at"`
}

func (c *Chat) IsCreator(userID uuid.UUID) bool {
	return c.CreatorID != nil && *c.CreatorID == userID
}

func (c *Chat) HasMember(userID uuid.UUID) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ChatSummary is a chat as shown in a member's chat list.
type ChatSummary struct {
	Chat
	LastMessage *Message `json:"last_message"`
}

// Message carries either Text or File, never both.
//
// Number is the position of the message inside its chat, starting at 0.
// It is assigned once on insert and is unique per chat.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Text      string    `json:"text"`
	File      string    `json:"file"`
	Pinned    bool      `json:"pinned"`
	Number    int64     `json:"number"`
	CreatedAt time.Time `json:"created_at"`
}

// EventKind tags frames pushed to realtime clients.
type EventKind string

const (
	EventChatMessage     EventKind = "chat_message"
	EventMessagePinned   EventKind = "message_pinned"
	EventMessageUnpinned EventKind = "message_unpinned"
)
