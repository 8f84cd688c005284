// Package memory keeps every repository in process memory. It backs tests
// and STORE_DRIVER=memory, and follows the same contracts as the Postgres
// stores, including per-chat serialized message numbering.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/repository"
	"github.com/lalith-99/cohortchat/internal/sequence"
)

type state struct {
	mu sync.RWMutex

	users    map[uuid.UUID]*models.User
	byEmail  map[string]uuid.UUID
	groups   map[uuid.UUID]*models.Group
	chats    map[uuid.UUID]*models.Chat
	pairs    map[string]uuid.UUID
	diplomas map[uuid.UUID]uuid.UUID
	messages map[int64]*models.Message
	byChat   map[uuid.UUID][]int64
	lastID   int64

	seq *sequence.KeyedMutex
}

// New returns a Store whose repositories share one in-memory state.
func New() repository.Store {
	st := &state{
		users:    make(map[uuid.UUID]*models.User),
		byEmail:  make(map[string]uuid.UUID),
		groups:   make(map[uuid.UUID]*models.Group),
		chats:    make(map[uuid.UUID]*models.Chat),
		pairs:    make(map[string]uuid.UUID),
		diplomas: make(map[uuid.UUID]uuid.UUID),
		messages: make(map[int64]*models.Message),
		byChat:   make(map[uuid.UUID][]int64),
		seq:      sequence.NewKeyedMutex(),
	}
	return repository.Store{
		Users:    &UserStore{st},
		Groups:   &GroupStore{st},
		Chats:    &ChatStore{st},
		Messages: &MessageStore{st},
	}
}

func pairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}

func copyChat(c *models.Chat) *models.Chat {
	out := *c
	out.MemberIDs = append(make([]uuid.UUID, 0, len(c.MemberIDs)), c.MemberIDs...)
	return &out
}

func copyUser(u *models.User) *models.User {
	out := *u
	return &out
}

// ---------------------------------------------------------------
// Users
// ---------------------------------------------------------------

type UserStore struct{ st *state }

func (s *UserStore) Create(ctx context.Context, nu repository.NewUser) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.insertUser(nu)
}

func (st *state) insertUser(nu repository.NewUser) (*models.User, error) {
	if _, taken := st.byEmail[nu.Email]; taken {
		return nil, repository.ErrEmailTaken
	}
	u := &models.User{
		ID:           uuid.New(),
		Email:        nu.Email,
		Username:     nu.Username,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		PasswordHash: nu.PasswordHash,
		Profile:      models.Profile{Photo: nu.Photo, IsTeacher: nu.IsTeacher},
		CreatedAt:    time.Now(),
	}
	st.users[u.ID] = u
	st.byEmail[u.Email] = u.ID
	return copyUser(u), nil
}

func (s *UserStore) UpsertByEmail(ctx context.Context, nu repository.NewUser) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if id, ok := s.st.byEmail[nu.Email]; ok {
		return copyUser(s.st.users[id]), nil
	}
	return s.st.insertUser(nu)
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	u, ok := s.st.users[userID]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	id, ok := s.st.byEmail[email]
	if !ok {
		return nil, nil
	}
	return copyUser(s.st.users[id]), nil
}

func (s *UserStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	users := make([]models.User, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if u, ok := s.st.users[id]; ok && !seen[id] {
			seen[id] = true
			users = append(users, *u)
		}
	}
	sortUsers(users)
	return users, nil
}

func (s *UserStore) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	q := strings.ToLower(query)
	users := make([]models.User, 0)
	for _, u := range s.st.users {
		if strings.Contains(strings.ToLower(u.FirstName), q) || strings.Contains(strings.ToLower(u.LastName), q) {
			users = append(users, *u)
		}
	}
	sortUsers(users)
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func sortUsers(users []models.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].FirstName != users[j].FirstName {
			return users[i].FirstName < users[j].FirstName
		}
		return users[i].LastName < users[j].LastName
	})
}

func (s *UserStore) UpdateProfile(ctx context.Context, userID uuid.UUID, upd repository.ProfileUpdate) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	u, ok := s.st.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Bio != nil {
		u.Profile.Bio = *upd.Bio
	}
	if upd.Photo != nil {
		u.Profile.Photo = *upd.Photo
	}
	return copyUser(u), nil
}

func (s *UserStore) SetGroup(ctx context.Context, userID uuid.UUID, groupID uuid.UUID) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	u, ok := s.st.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	g := groupID
	u.Profile.GroupID = &g
	return nil
}

// ---------------------------------------------------------------
// Groups
// ---------------------------------------------------------------

type GroupStore struct{ st *state }

func (s *GroupStore) codeTaken(code string, except uuid.UUID) bool {
	for _, g := range s.st.groups {
		if g.Code == code && g.ID != except {
			return true
		}
	}
	return false
}

func (s *GroupStore) Create(ctx context.Context, g models.Group) (*models.Group, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if s.codeTaken(g.Code, uuid.Nil) {
		return nil, repository.ErrGroupCodeTaken
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.CreatedAt = time.Now()
	s.st.groups[g.ID] = &g
	out := g
	return &out, nil
}

func (s *GroupStore) GetByID(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	g, ok := s.st.groups[groupID]
	if !ok {
		return nil, nil
	}
	out := *g
	return &out, nil
}

func (s *GroupStore) GetByCode(ctx context.Context, code string) (*models.Group, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	for _, g := range s.st.groups {
		if g.Code == code {
			out := *g
			return &out, nil
		}
	}
	return nil, nil
}

func (s *GroupStore) Update(ctx context.Context, g models.Group) (*models.Group, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.groups[g.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.codeTaken(g.Code, g.ID) {
		return nil, repository.ErrGroupCodeTaken
	}
	g.CreatedAt = cur.CreatedAt
	s.st.groups[g.ID] = &g
	out := g
	return &out, nil
}

func (s *GroupStore) MemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	ids := make([]uuid.UUID, 0)
	for _, u := range s.st.users {
		if u.Profile.GroupID != nil && *u.Profile.GroupID == groupID {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// ---------------------------------------------------------------
// Chats
// ---------------------------------------------------------------

type ChatStore struct{ st *state }

func (s *ChatStore) Create(ctx context.Context, nc repository.NewChat) (*models.Chat, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	var key string
	if nc.Type == models.ChatPrivate {
		if len(nc.MemberIDs) != 2 {
			return nil, fmt.Errorf("private chat needs 2 members, got %d", len(nc.MemberIDs))
		}
		key = pairKey(nc.MemberIDs[0], nc.MemberIDs[1])
		if _, ok := s.st.pairs[key]; ok {
			return nil, repository.ErrChatExists
		}
	}
	if nc.GroupID != nil {
		if _, ok := s.st.diplomas[*nc.GroupID]; ok {
			return nil, repository.ErrChatExists
		}
	}

	c := &models.Chat{
		ID:        uuid.New(),
		Name:      nc.Name,
		Photo:     nc.Photo,
		Type:      nc.Type,
		CreatorID: nc.CreatorID,
		GroupID:   nc.GroupID,
		MemberIDs: make([]uuid.UUID, 0, len(nc.MemberIDs)),
		CreatedAt: time.Now(),
	}
	for _, id := range nc.MemberIDs {
		if !c.HasMember(id) {
			c.MemberIDs = append(c.MemberIDs, id)
		}
	}

	s.st.chats[c.ID] = c
	if key != "" {
		s.st.pairs[key] = c.ID
	}
	if nc.GroupID != nil {
		s.st.diplomas[*nc.GroupID] = c.ID
	}
	return copyChat(c), nil
}

func (s *ChatStore) GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	c, ok := s.st.chats[chatID]
	if !ok {
		return nil, nil
	}
	return copyChat(c), nil
}

func (s *ChatStore) ListForMember(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()

	chats := make([]models.ChatSummary, 0)
	for _, c := range s.st.chats {
		if !c.HasMember(userID) {
			continue
		}
		cs := models.ChatSummary{Chat: *copyChat(c)}
		if ids := s.st.byChat[c.ID]; len(ids) > 0 {
			last := *s.st.messages[ids[len(ids)-1]]
			cs.LastMessage = &last
		}
		chats = append(chats, cs)
	}
	sort.Slice(chats, func(i, j int) bool {
		return activity(chats[i]).After(activity(chats[j]))
	})
	return chats, nil
}

func activity(cs models.ChatSummary) time.Time {
	if cs.LastMessage != nil {
		return cs.LastMessage.CreatedAt
	}
	return cs.CreatedAt
}

func (s *ChatStore) Update(ctx context.Context, chatID uuid.UUID, upd repository.ChatUpdate) (*models.Chat, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	c, ok := s.st.chats[chatID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Photo != nil {
		c.Photo = *upd.Photo
	}
	return copyChat(c), nil
}

func (s *ChatStore) Delete(ctx context.Context, chatID uuid.UUID) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	c, ok := s.st.chats[chatID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, id := range s.st.byChat[chatID] {
		delete(s.st.messages, id)
	}
	delete(s.st.byChat, chatID)
	for k, v := range s.st.pairs {
		if v == chatID {
			delete(s.st.pairs, k)
		}
	}
	if c.GroupID != nil {
		delete(s.st.diplomas, *c.GroupID)
	}
	delete(s.st.chats, chatID)
	return nil
}

func (s *ChatStore) AddMembers(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	c, ok := s.st.chats[chatID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, id := range userIDs {
		if !c.HasMember(id) {
			c.MemberIDs = append(c.MemberIDs, id)
		}
	}
	return nil
}

func (s *ChatStore) RemoveMembers(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	c, ok := s.st.chats[chatID]
	if !ok {
		return repository.ErrNotFound
	}
	drop := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		drop[id] = true
	}
	kept := c.MemberIDs[:0]
	for _, id := range c.MemberIDs {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	c.MemberIDs = kept
	return nil
}

func (s *ChatStore) IsMember(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (bool, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	c, ok := s.st.chats[chatID]
	return ok && c.HasMember(userID), nil
}

func (s *ChatStore) FindPrivate(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	id, ok := s.st.pairs[pairKey(a, b)]
	if !ok {
		return nil, nil
	}
	return copyChat(s.st.chats[id]), nil
}

func (s *ChatStore) GetByGroup(ctx context.Context, groupID uuid.UUID) (*models.Chat, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	id, ok := s.st.diplomas[groupID]
	if !ok {
		return nil, nil
	}
	return copyChat(s.st.chats[id]), nil
}

func (s *ChatStore) SetCreator(ctx context.Context, chatID uuid.UUID, creatorID uuid.UUID) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	c, ok := s.st.chats[chatID]
	if !ok || c.Type != models.ChatDiploma {
		return repository.ErrNotFound
	}
	id := creatorID
	c.CreatorID = &id
	return nil
}

// ---------------------------------------------------------------
// Messages
// ---------------------------------------------------------------

type MessageStore struct{ st *state }

// Create holds the chat's keyed lock across reading the highest number and
// storing the new message, the same window the Postgres store covers with a
// row lock.
func (s *MessageStore) Create(ctx context.Context, nm repository.NewMessage) (*models.Message, error) {
	unlock := s.st.seq.Lock(nm.ChatID)
	defer unlock()

	next, err := s.next(nm.ChatID)
	if err != nil {
		return nil, err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if _, ok := s.st.chats[nm.ChatID]; !ok {
		return nil, repository.ErrNotFound
	}
	ids := s.st.byChat[nm.ChatID]
	if len(ids) > 0 && s.st.messages[ids[len(ids)-1]].Number >= next {
		return nil, repository.ErrSequenceConflict
	}

	s.st.lastID++
	m := &models.Message{
		ID:        s.st.lastID,
		ChatID:    nm.ChatID,
		SenderID:  nm.SenderID,
		Text:      nm.Text,
		File:      nm.File,
		Number:    next,
		CreatedAt: time.Now(),
	}
	s.st.messages[m.ID] = m
	s.st.byChat[nm.ChatID] = append(ids, m.ID)

	out := *m
	return &out, nil
}

func (s *MessageStore) next(chatID uuid.UUID) (int64, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if _, ok := s.st.chats[chatID]; !ok {
		return 0, repository.ErrNotFound
	}
	ids := s.st.byChat[chatID]
	if len(ids) == 0 {
		return 0, nil
	}
	return s.st.messages[ids[len(ids)-1]].Number + 1, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	m, ok := s.st.messages[messageID]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}

func (s *MessageStore) List(ctx context.Context, f repository.MessageFilter) ([]models.Message, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()

	ids := s.st.byChat[f.ChatID]
	messages := make([]models.Message, 0)
	for i := len(ids) - 1; i >= 0; i-- {
		m := s.st.messages[ids[i]]
		if f.PinnedOnly && !m.Pinned {
			continue
		}
		if f.StartingNumber != nil && m.Number > *f.StartingNumber {
			continue
		}
		messages = append(messages, *m)
		if f.Limit > 0 && len(messages) == f.Limit {
			break
		}
	}
	return messages, nil
}

func (s *MessageStore) SetPinned(ctx context.Context, messageID int64, pinned bool) (*models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	m, ok := s.st.messages[messageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.Pinned = pinned
	out := *m
	return &out, nil
}

var (
	_ repository.UserRepository    = (*UserStore)(nil)
	_ repository.GroupRepository   = (*GroupStore)(nil)
	_ repository.ChatRepository    = (*ChatStore)(nil)
	_ repository.MessageRepository = (*MessageStore)(nil)
)
