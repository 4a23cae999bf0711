package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/database"
)

// UserRepository reads the local mirror of identity provider profiles.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID fetches a user by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	const query = `SELECT id, email, display_name, banned_at, created_at FROM users WHERE id = $1`
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// IsBanned reports whether id is banned. Unknown users are not banned.
func (r *UserRepository) IsBanned(ctx context.Context, id string) (bool, error) {
	var banned bool
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &banned, `SELECT banned_at IS NOT NULL FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check user ban: %w", err)
	}
	return banned, nil
}

// Upsert creates or refreshes the mirrored profile. The ban flag is left alone.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO users (id, email, display_name, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, display_name = EXCLUDED.display_name`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, user.ID, user.Email, user.DisplayName, user.CreatedAt); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
