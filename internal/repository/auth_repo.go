package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"container_telemetry/internal/models"
)

// ErrUsernameTaken is returned by Create when the unique index rejects the name.
var ErrUsernameTaken = errors.New("username already taken")

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ Authorization = (*UserRepository)(nil)

const (
	insertUserSQL           = `INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`
	selectUserByUsernameSQL = `SELECT id, username, password_hash, role FROM users WHERE username = ?`
	selectUsernameTakenSQL  = `SELECT 1 FROM users WHERE username = ?`
)

// Create stores an account with its role and returns the new ID. A missing
// role is stored as viewer.
func (r *UserRepository) Create(ctx context.Context, u models.User) (int, error) {
	if u.Role == "" {
		u.Role = models.RoleViewer
	}

	var taken int
	err := r.db.QueryRowContext(ctx, selectUsernameTakenSQL, u.Username).Scan(&taken)
	switch {
	case err == nil:
		return 0, fmt.Errorf("create user %q: %w", u.Username, ErrUsernameTaken)
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("check user %q: %w", u.Username, err)
	}

	res, err := r.db.ExecContext(ctx, insertUserSQL, u.Username, u.PasswordHash, string(u.Role))
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", u.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for user %q: %w", u.Username, err)
	}
	return int(id), nil
}

// GetByUsername returns (nil, nil) when there is no such account. A stored
// role this build does not know is downgraded to viewer.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := r.db.QueryRowContext(ctx, selectUserByUsernameSQL, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user %q: %w", username, err)
	}
	if parsed, ok := models.ParseRole(role); ok {
		u.Role = parsed
	} else {
		u.Role = models.RoleViewer
	}
	return &u, nil
}
