package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goblog/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, password_hash, is_active, activation_code, created_at`

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.IsActive,
		&user.ActivationCode,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	user.CreatedAt = time.Now()

	const query = `
		INSERT INTO users (email, name, password_hash, is_active, activation_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.IsActive,
		user.ActivationCode,
		user.CreatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapPQError(err)
	}
	return user, nil
}

// Activate redeems an activation code: it clears the code and marks the
// account active in one statement, so a code can only ever be used once.
// A cleared or unknown code both come back as ErrNotFound.
func (r *UserRepository) Activate(ctx context.Context, code string) (types.User, error) {
	if code == "" {
		return types.User{}, ErrNotFound
	}

	const query = `
		UPDATE users
		SET activation_code = '', is_active = TRUE
		WHERE activation_code = $1
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, code))
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
