package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/repository"
	"go.uber.org/zap"
)

const searchLimit = 20

type UserService struct {
	users         repository.UserRepository
	teacherDomain string
	logger        *zap.Logger
}

// NewUserService marks users whose email is on teacherDomain as teachers.
// An empty domain disables the check.
func NewUserService(store repository.Store, teacherDomain string, logger *zap.Logger) *UserService {
	return &UserService{
		users:         store.Users,
		teacherDomain: strings.ToLower(strings.TrimPrefix(teacherDomain, "@")),
		logger:        logger,
	}
}

func (s *UserService) isTeacherEmail(email string) bool {
	if s.teacherDomain == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(email), "@"+s.teacherDomain)
}

// Register creates a password account. The caller hashes the password.
func (s *UserService) Register(ctx context.Context, nu repository.NewUser) (*models.User, error) {
	nu.Email = strings.TrimSpace(nu.Email)
	if nu.Email == "" {
		return nil, invalid("email is required")
	}
	nu.IsTeacher = s.isTeacherEmail(nu.Email)

	u, err := s.users.Create(ctx, nu)
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil, invalid("email already registered")
	}
	if err != nil {
		return nil, storage("create user", err)
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID.String()), zap.Bool("teacher", u.Profile.IsTeacher))
	return u, nil
}

// ExternalProfile is what an identity provider tells us about a user.
type ExternalProfile struct {
	Email      string
	GivenName  string
	FamilyName string
	Picture    string
}

// LoginExternal returns the user for p.Email, creating it on first login.
// The username defaults to the local part of the email.
func (s *UserService) LoginExternal(ctx context.Context, p ExternalProfile) (*models.User, error) {
	if p.Email == "" {
		return nil, invalid("identity provider returned no email")
	}
	username, _, _ := strings.Cut(p.Email, "@")
	u, err := s.users.UpsertByEmail(ctx, repository.NewUser{
		Email:     p.Email,
		Username:  username,
		FirstName: p.GivenName,
		LastName:  p.FamilyName,
		Photo:     p.Picture,
		IsTeacher: s.isTeacherEmail(p.Email),
	})
	if err != nil {
		return nil, storage("upsert user", err)
	}
	return u, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, storage("get user", err)
	}
	return u, nil
}

func (s *UserService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return loadActor(ctx, s.users, userID)
}

func (s *UserService) UpdateMe(ctx context.Context, userID uuid.UUID, upd repository.ProfileUpdate) (*models.User, error) {
	u, err := s.users.UpdateProfile(ctx, userID, upd)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, storage("update profile", err)
	}
	return u, nil
}

// Search matches first and last names. An empty query returns no users.
func (s *UserService) Search(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}
	users, err := s.users.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, storage("search users", err)
	}
	return users, nil
}
