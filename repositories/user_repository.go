package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bracketops/tournament-core/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserEmailConflict = errors.New("user email conflict")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id int) error
}

type sqliteUserRepository struct {
	db *sql.DB
}

func NewSqliteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{db: db}
}

func (r *sqliteUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO tcc_users (email, display_name, role, password_hash)
		VALUES (?, ?, ?, ?)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.Email,
		user.DisplayName,
		user.Role,
		user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt)

	return mapSqliteError(err, ErrUserEmailConflict, nil)
}

func (r *sqliteUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `
		SELECT id, email, display_name, role, password_hash, created_at
		FROM tcc_users
		WHERE id = ?`
	return r.scanUser(ctx, query, id)
}

func (r *sqliteUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, display_name, role, password_hash, created_at
		FROM tcc_users
		WHERE email = ? COLLATE NOCASE`
	return r.scanUser(ctx, query, email)
}

func (r *sqliteUserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE tcc_users SET
			email = ?,
			display_name = ?,
			role = ?,
			password_hash = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.DisplayName,
		user.Role,
		user.PasswordHash,
		user.ID,
	)
	if err != nil {
		return mapSqliteError(err, ErrUserEmailConflict, nil)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *sqliteUserRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tcc_users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *sqliteUserRepository) scanUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
