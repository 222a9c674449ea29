package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/unclebandit/payout-settlement/internal/model"
)

// UserRepositoryInterface is the read side of the identity collaborator.
type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type UserRepository struct {
	DB *sql.DB
}

// GetByID returns nil without error when the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, role, is_verified FROM users WHERE id=$1`, id,
	).Scan(&u.ID, &u.Name, &u.Role, &u.IsVerified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
