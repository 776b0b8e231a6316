package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RogueElectron/Cypher/internal/domain"
	"github.com/RogueElectron/Cypher/pkg/xerrors"
)

// CredentialRepository is the durable credential store. Create must behave as
// an atomic insert-if-absent so concurrent registrations for the same username
// resolve at the store, not in application code. DeleteUnverified must be
// conditional on the row for the same reason: the verification deadline can
// fire concurrently with the user completing TOTP setup, and the row decides
// who won.
type CredentialRepository interface {
	Create(ctx context.Context, cred *domain.Credential) error
	GetByUsername(ctx context.Context, username string) (*domain.Credential, error)
	EnableTOTP(ctx context.Context, username string, encryptedSecret []byte) error
	IncrementFailedLogins(ctx context.Context, username string) error
	ResetFailedLogins(ctx context.Context, username string) error
	DeleteUnverified(ctx context.Context, username string) (bool, error)
}

type PostgresCredentialRepository struct {
	db *pgxpool.Pool
}

func NewPostgresCredentialRepository(db *pgxpool.Pool) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{db: db}
}

func (r *PostgresCredentialRepository) Create(ctx context.Context, cred *domain.Credential) error {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		INSERT INTO user_credentials
			(username, opaque_envelope, is_active, totp_secret, totp_enabled,
			 failed_login_attempts, created_at, updated_at, password_changed_at)
		VALUES ($1,$2,$3,NULL,FALSE,0,$4,$4,$4)
		ON CONFLICT (username) DO NOTHING
	`, cred.Username, cred.OpaqueEnvelope, cred.IsActive, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrUserAlreadyExists
	}
	return nil
}

func (r *PostgresCredentialRepository) GetByUsername(ctx context.Context, username string) (*domain.Credential, error) {
	var c domain.Credential
	err := r.db.QueryRow(ctx, `
		SELECT username, opaque_envelope, is_active, totp_secret, totp_enabled,
		       failed_login_attempts, created_at, updated_at, password_changed_at
		FROM user_credentials
		WHERE username=$1
	`, username).Scan(&c.Username, &c.OpaqueEnvelope, &c.IsActive, &c.TOTPSecret,
		&c.TOTPEnabled, &c.FailedLoginAttempts, &c.CreatedAt, &c.UpdatedAt, &c.PasswordChangedAt)
	if err == pgx.ErrNoRows {
		return nil, xerrors.ErrUserNotRegistered
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// EnableTOTP commits a verified secret. Set-once: a row with totp_enabled
// already true is left untouched.
func (r *PostgresCredentialRepository) EnableTOTP(ctx context.Context, username string, encryptedSecret []byte) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_credentials
		SET totp_secret=$2, totp_enabled=TRUE, updated_at=NOW()
		WHERE username=$1 AND totp_enabled=FALSE
	`, username, encryptedSecret)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrUserNotRegistered
	}
	return nil
}

func (r *PostgresCredentialRepository) IncrementFailedLogins(ctx context.Context, username string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE user_credentials
		SET failed_login_attempts=failed_login_attempts+1, updated_at=NOW()
		WHERE username=$1
	`, username)
	return err
}

func (r *PostgresCredentialRepository) ResetFailedLogins(ctx context.Context, username string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE user_credentials
		SET failed_login_attempts=0, updated_at=NOW()
		WHERE username=$1
	`, username)
	return err
}

// DeleteUnverified removes the row only while TOTP setup is still incomplete.
// A row that turned totp_enabled=TRUE in the meantime is left alone, so the
// verification-deadline callback is safe to run after the user finished setup.
func (r *PostgresCredentialRepository) DeleteUnverified(ctx context.Context, username string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM user_credentials
		WHERE username=$1 AND totp_enabled=FALSE
	`, username)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
