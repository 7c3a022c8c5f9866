package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

const userColumns = `id, name, email, password_hash, role, is_active, failed_attempts,
	last_failed_at, locked_until, COALESCE(password_reset_token_hash, ''),
	password_reset_expires_at, last_password_change, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.FailedAttempts,
		&u.LastFailedAt, &u.LockedUntil, &u.PasswordResetTokenHash,
		&u.PasswordResetExpiresAt, &u.LastPasswordChange, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, apierror.NotFound("user", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByResetTokenHash(ctx context.Context, tokenHash string) (model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE password_reset_token_hash = $1`, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by reset token: %w", err)
	}
	return u, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`,
		strings.TrimSpace(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) Create(ctx context.Context, u model.User) (model.User, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, role, is_active, last_password_change, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6, $6)
		 RETURNING id, created_at, updated_at`,
		u.Name, u.Email, u.PasswordHash, u.Role, u.IsActive, now).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, translatePgError(err, "create user")
	}
	u.LastPasswordChange = &now
	return u, nil
}

func (r *UserRepository) Update(ctx context.Context, u model.User) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET name = $2, role = $3, is_active = $4, updated_at = $5 WHERE id = $1`,
		u.ID, u.Name, u.Role, u.IsActive, time.Now().UTC())
	if err != nil {
		return translatePgError(err, "update user")
	}
	if tag.RowsAffected() == 0 {
		return apierror.NotFound("user", strconv.FormatInt(u.ID, 10))
	}
	return nil
}

// UpdatePassword also consumes any outstanding reset token.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET password_hash = $2, last_password_change = $3, updated_at = $3,
		     password_reset_token_hash = NULL, password_reset_expires_at = NULL
		 WHERE id = $1`,
		userID, passwordHash, now)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierror.NotFound("user", strconv.FormatInt(userID, 10))
	}
	return nil
}

func (r *UserRepository) SetPasswordResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET password_reset_token_hash = $2, password_reset_expires_at = $3, updated_at = $4 WHERE id = $1`,
		userID, tokenHash, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set password reset token: %w", err)
	}
	return nil
}

// MirrorFailedAttempts copies the tracker's counters onto the user row so
// admins can see them next to the account.
func (r *UserRepository) MirrorFailedAttempts(ctx context.Context, email string, count int, lastFailedAt time.Time, lockedUntil *time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET failed_attempts = $2, last_failed_at = $3, locked_until = $4
		 WHERE lower(email) = lower($1)`,
		email, count, lastFailedAt, lockedUntil)
	if err != nil {
		return fmt.Errorf("mirror failed attempts: %w", err)
	}
	return nil
}

func (r *UserRepository) ResetFailedAttempts(ctx context.Context, email string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET failed_attempts = 0, locked_until = NULL WHERE lower(email) = lower($1)`,
		email)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, filter model.UserFilter, page model.Pagination) ([]model.User, int, error) {
	page = page.Normalize()

	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if role := strings.TrimSpace(filter.Role); role != "" {
		where = append(where, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, strings.ToLower(role))
		argIdx++
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = append(where, fmt.Sprintf("(lower(name) LIKE lower($%d) OR lower(email) LIKE lower($%d))", argIdx, argIdx))
		args = append(args, "%"+search+"%")
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM users %s ORDER BY id LIMIT $%d OFFSET $%d`,
		userColumns, whereClause, argIdx, argIdx+1)
	args = append(args, page.Limit, page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
