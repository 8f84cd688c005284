package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/repository"
)

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `
	u.id, u.email, u.username, u.first_name, u.last_name, u.password_hash, u.created_at,
	p.bio, p.photo, p.is_teacher, p.group_id, p.email_confirmed`

const userFrom = `FROM users u JOIN profiles p ON p.user_id = u.id`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.Profile.Bio,
		&u.Profile.Photo,
		&u.Profile.IsTeacher,
		&u.Profile.GroupID,
		&u.Profile.EmailConfirmed,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create writes the user row and its profile row in one transaction, so a
// user never exists without a profile.
func (s *UserStore) Create(ctx context.Context, nu repository.NewUser) (*models.User, error) {
	var created *models.User
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		u, err := insertUser(ctx, tx, nu)
		created = u
		return err
	})
	if err != nil {
		if uniqueViolationOn(err, "users_email_key") {
			return nil, repository.ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

// UpsertByEmail returns the existing user for nu.Email or creates it.
// Concurrent first logins for the same email both end up with the same row.
func (s *UserStore) UpsertByEmail(ctx context.Context, nu repository.NewUser) (*models.User, error) {
	u, err := s.GetByEmail(ctx, nu.Email)
	if err != nil || u != nil {
		return u, err
	}
	u, err = s.Create(ctx, nu)
	if errors.Is(err, repository.ErrEmailTaken) {
		return s.GetByEmail(ctx, nu.Email)
	}
	return u, err
}

func insertUser(ctx context.Context, tx pgx.Tx, nu repository.NewUser) (*models.User, error) {
	u := &models.User{
		ID:           uuid.New(),
		Email:        nu.Email,
		Username:     nu.Username,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		PasswordHash: nu.PasswordHash,
		Profile: models.Profile{
			Photo:     nu.Photo,
			IsTeacher: nu.IsTeacher,
		},
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO users (id, email, username, first_name, last_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at`,
		u.ID, u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash,
	).Scan(&u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (user_id, photo, is_teacher)
		VALUES ($1, $2, $3)`,
		u.ID, u.Profile.Photo, u.Profile.IsTeacher,
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` `+userFrom+` WHERE u.id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` `+userFrom+` WHERE u.email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	return s.list(ctx, `SELECT `+userColumns+` `+userFrom+` WHERE u.id = ANY($1) ORDER BY u.first_name, u.last_name`, ids)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes % and _ in user input match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Search matches query as a plain substring of first or last name.
func (s *UserStore) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	return s.list(ctx, `
		SELECT `+userColumns+` `+userFrom+`
		WHERE u.first_name ILIKE '%' || $1 || '%' ESCAPE '\'
		   OR u.last_name ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY u.first_name, u.last_name
		LIMIT $2`, escapeLike(query), limit)
}

func (s *UserStore) list(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, userID uuid.UUID, upd repository.ProfileUpdate) (*models.User, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET first_name = COALESCE($2, first_name),
			    last_name  = COALESCE($3, last_name)
			WHERE id = $1`,
			userID, upd.FirstName, upd.LastName,
		)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		_, err = tx.Exec(ctx, `
			UPDATE profiles
			SET bio   = COALESCE($2, bio),
			    photo = COALESCE($3, photo)
			WHERE user_id = $1`,
			userID, upd.Bio, upd.Photo,
		)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, userID)
}

func (s *UserStore) SetGroup(ctx context.Context, userID uuid.UUID, groupID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE profiles SET group_id = $2 WHERE user_id = $1`, userID, groupID)
	if err != nil {
		return fmt.Errorf("set profile group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
