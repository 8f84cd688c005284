package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/repository"
)

type GroupStore struct {
	pool *pgxpool.Pool
}

func NewGroupStore(pool *pgxpool.Pool) *GroupStore {
	return &GroupStore{pool: pool}
}

const groupColumns = `id, name, code, institute, faculty, study_year, speciality, degree, curator_id, created_at`

func scanGroup(row pgx.Row) (*models.Group, error) {
	var g models.Group
	err := row.Scan(
		&g.ID,
		&g.Name,
		&g.Code,
		&g.Institute,
		&g.Faculty,
		&g.StudyYear,
		&g.Speciality,
		&g.Degree,
		&g.CuratorID,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *GroupStore) Create(ctx context.Context, g models.Group) (*models.Group, error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	created, err := scanGroup(s.pool.QueryRow(ctx, `
		INSERT INTO groups (id, name, code, institute, faculty, study_year, speciality, degree, curator_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING `+groupColumns,
		g.ID, g.Name, g.Code, g.Institute, g.Faculty, g.StudyYear, g.Speciality, g.Degree, g.CuratorID,
	))
	if err != nil {
		if uniqueViolationOn(err, "groups_code_key") {
			return nil, repository.ErrGroupCodeTaken
		}
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return created, nil
}

func (s *GroupStore) GetByID(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	return s.get(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, groupID)
}

func (s *GroupStore) GetByCode(ctx context.Context, code string) (*models.Group, error) {
	return s.get(ctx, `SELECT `+groupColumns+` FROM groups WHERE code = $1`, code)
}

func (s *GroupStore) get(ctx context.Context, query string, arg any) (*models.Group, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *GroupStore) Update(ctx context.Context, g models.Group) (*models.Group, error) {
	updated, err := scanGroup(s.pool.QueryRow(ctx, `
		UPDATE groups
		SET name = $2, code = $3, institute = $4, faculty = $5, study_year = $6,
		    speciality = $7, degree = $8, curator_id = $9
		WHERE id = $1
		RETURNING `+groupColumns,
		g.ID, g.Name, g.Code, g.Institute, g.Faculty, g.StudyYear, g.Speciality, g.Degree, g.CuratorID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		if uniqueViolationOn(err, "groups_code_key") {
			return nil, repository.ErrGroupCodeTaken
		}
		return nil, fmt.Errorf("update group: %w", err)
	}
	return updated, nil
}

func (s *GroupStore) MemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM profiles WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan group members: %w", err)
	}
	return ids, nil
}
