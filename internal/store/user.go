package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/learngate/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, name, phone, role, admin_type, is_super_admin,
		is_verified, verification_status, permissions, is_active, password_hash,
		created_at, updated_at`

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	var permissionsJSON []byte
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Name,
		&user.Phone,
		&user.Role,
		&user.AdminType,
		&user.IsSuperAdmin,
		&user.IsVerified,
		&user.VerificationStatus,
		&permissionsJSON,
		&user.IsActive,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	_ = json.Unmarshal(permissionsJSON, &user.Permissions)
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	permissionsJSON, err := json.Marshal(user.Permissions)
	if err != nil {
		return types.User{}, err
	}
	if user.Permissions == nil {
		permissionsJSON = []byte("[]")
	}

	const query = `
		INSERT INTO users (username, email, name, phone, role, admin_type, is_super_admin,
			is_verified, verification_status, permissions, is_active, password_hash,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Name,
		user.Phone,
		user.Role,
		user.AdminType,
		user.IsSuperAdmin,
		user.IsVerified,
		user.VerificationStatus,
		permissionsJSON,
		user.IsActive,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	permissionsJSON, err := json.Marshal(user.Permissions)
	if err != nil {
		return types.User{}, err
	}
	if user.Permissions == nil {
		permissionsJSON = []byte("[]")
	}

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			name = $3,
			phone = $4,
			role = $5,
			admin_type = $6,
			is_super_admin = $7,
			is_verified = $8,
			verification_status = $9,
			permissions = $10,
			is_active = $11,
			password_hash = $12,
			updated_at = $13
		WHERE id = $14`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Name,
		user.Phone,
		user.Role,
		user.AdminType,
		user.IsSuperAdmin,
		user.IsVerified,
		user.VerificationStatus,
		permissionsJSON,
		user.IsActive,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}
