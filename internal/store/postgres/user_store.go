package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	q Querier
}

const userCols = `id, email, display_name, points, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Points, &u.CreatedAt)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Create inserts a new user row.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (id, email, display_name, points, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.Exec(ctx, query, u.ID, u.Email, u.DisplayName, u.Points, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create user %s: %w", u.ID, err)
	}
	return nil
}

// GetByID retrieves a user by primary key.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := s.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// UpdatePoints sets a user's balance to the given value.
func (s *UserStore) UpdatePoints(ctx context.Context, id string, points int64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE users SET points = $2 WHERE id = $1`, id, points)
	if err != nil {
		return fmt.Errorf("postgres: update points for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListTop returns users ordered by balance, highest first.
func (s *UserStore) ListTop(ctx context.Context, limit int) ([]domain.User, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY points DESC, created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list top users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list top users rows: %w", err)
	}
	return users, nil
}
