package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, username, password_hash, role, email, image, status, otp, otp_expires_at, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	var email, otp sql.NullString
	var otpExpiry sql.NullTime
	err := row.Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Role,
		&email, &user.Image, &user.Status, &otp, &otpExpiry,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}

	user.Email = email.String
	user.OTP = otp.String
	if otpExpiry.Valid {
		value := otpExpiry.Time.UTC()
		user.OTPExpiresAt = &value
	}

	return user, nil
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = $1
	`, username)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by username: %w", err)
	}

	return user, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}

	return user, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}

	return user, nil
}

func (r *Repository) Create(ctx context.Context, user User) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, user.Username).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing username: %w", err)
	}
	if exists {
		return ErrDuplicateUsername
	}

	var email any
	if user.Email != "" {
		email = user.Email
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, email, image, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, user.ID, user.Username, user.PasswordHash, user.Role, email, user.Image, user.Status, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *Repository) Update(ctx context.Context, user User) (User, error) {
	var email any
	if user.Email != "" {
		email = user.Email
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET username = $2, password_hash = $3, role = $4, email = $5, image = $6, status = $7, updated_at = $8
		WHERE id = $1
		RETURNING `+userColumns+`
	`, user.ID, user.Username, user.PasswordHash, user.Role, email, user.Image, user.Status, time.Now().UTC())

	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}

	return updated, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("user status rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		var email, otp sql.NullString
		var otpExpiry sql.NullTime
		if err := rows.Scan(
			&user.ID, &user.Username, &user.PasswordHash, &user.Role,
			&email, &user.Image, &user.Status, &otp, &otpExpiry,
			&user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.Email = email.String
		user.OTP = otp.String
		if otpExpiry.Valid {
			value := otpExpiry.Time.UTC()
			user.OTPExpiresAt = &value
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// AdminEmails returns the email address of every admin user that has one.
func (r *Repository) AdminEmails(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email
		FROM users
		WHERE role = $1 AND email IS NOT NULL
	`, RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("query admin emails: %w", err)
	}
	defer rows.Close()

	emails := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan admin email: %w", err)
		}
		if email != "" {
			emails = append(emails, email)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admin emails: %w", err)
	}

	return emails, nil
}

// SetOTP stores a new code on the user row, superseding any previous one.
func (r *Repository) SetOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET otp = $2, otp_expires_at = $3, updated_at = $4
		WHERE email = $1
	`, email, code, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set otp: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set otp rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ConsumeOTP swaps the password hash and clears the OTP columns in a single
// statement, so no window exists where the old code stays valid after the
// password change.
func (r *Repository) ConsumeOTP(ctx context.Context, email, code, newPasswordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $3, otp = NULL, otp_expires_at = NULL, updated_at = $4
		WHERE email = $1
		  AND otp = $2
		  AND otp_expires_at IS NOT NULL
		  AND otp_expires_at > NOW()
	`, email, code, newPasswordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume otp rows affected: %w", err)
	}
	if affected == 0 {
		return ErrInvalidOTP
	}

	return nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (r *Repository) CreateRefreshToken(ctx context.Context, username, rawToken string, expiresAt time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (id, username, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, id.String(), username, hashToken(rawToken), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// RotateRefreshToken revokes the presented token and records its
// replacement, returning the owning username.
func (r *Repository) RotateRefreshToken(ctx context.Context, rawOldToken, rawNewToken string, newExpiresAt time.Time) (string, error) {
	newID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate new refresh token id: %w", err)
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin refresh rotation tx: %w", err)
	}
	defer tx.Rollback()

	var oldID, username string
	var expiresAt time.Time
	var revokedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, username, expires_at, revoked_at
		FROM auth_refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, hashToken(rawOldToken)).Scan(&oldID, &username, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("read refresh token: %w", err)
	}

	if revokedAt.Valid || now.After(expiresAt.UTC()) {
		return "", ErrInvalidRefreshToken
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (id, username, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, newID.String(), username, hashToken(rawNewToken), newExpiresAt.UTC())
	if err != nil {
		return "", fmt.Errorf("insert rotated refresh token: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = $2, replaced_by = $3
		WHERE id = $1
	`, oldID, now, newID.String())
	if err != nil {
		return "", fmt.Errorf("revoke old refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit refresh rotation tx: %w", err)
	}

	return username, nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, rawToken string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE token_hash = $1
	`, hashToken(rawToken), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

type CleanupResult struct {
	DeletedRefreshTokens int64 `json:"deleted_refresh_tokens"`
	ClearedOTPCodes      int64 `json:"cleared_otp_codes"`
}

// CleanupStaleAuthData purges expired or long-revoked refresh tokens and
// clears OTP codes whose expiry has passed.
func (r *Repository) CleanupStaleAuthData(ctx context.Context, refreshRetention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if refreshRetention <= 0 {
		refreshRetention = 14 * 24 * time.Hour
	}

	cutoff := time.Now().UTC().Add(-refreshRetention)

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM auth_refresh_tokens
			WHERE expires_at < NOW() OR (revoked_at IS NOT NULL AND revoked_at < $1)
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM auth_refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("delete stale refresh tokens: %w", err)
	}

	deletedTokens, err := res.RowsAffected()
	if err != nil {
		return CleanupResult{}, fmt.Errorf("stale refresh tokens rows affected: %w", err)
	}

	res, err = r.db.ExecContext(ctx, `
		UPDATE users
		SET otp = NULL, otp_expires_at = NULL
		WHERE otp IS NOT NULL AND otp_expires_at < NOW()
	`)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("clear expired otp codes: %w", err)
	}

	clearedOTPs, err := res.RowsAffected()
	if err != nil {
		return CleanupResult{}, fmt.Errorf("expired otp rows affected: %w", err)
	}

	return CleanupResult{
		DeletedRefreshTokens: deletedTokens,
		ClearedOTPCodes:      clearedOTPs,
	}, nil
}
