package repository

import (
	"context"
	"sync"
	"time"

	"github.com/RogueElectron/Cypher/internal/domain"
	"github.com/RogueElectron/Cypher/pkg/xerrors"
)

// MemoryCredentialRepository backs tests and local development with the same
// insert-if-absent semantics as the postgres implementation.
type MemoryCredentialRepository struct {
	mu    sync.Mutex
	creds map[string]*domain.Credential
}

func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{creds: make(map[string]*domain.Credential)}
}

func (r *MemoryCredentialRepository) Create(_ context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.creds[cred.Username]; exists {
		return xerrors.ErrUserAlreadyExists
	}
	now := time.Now().UTC()
	stored := *cred
	stored.TOTPSecret = nil
	stored.TOTPEnabled = false
	stored.FailedLoginAttempts = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.PasswordChangedAt = now
	r.creds[cred.Username] = &stored
	return nil
}

func (r *MemoryCredentialRepository) GetByUsername(_ context.Context, username string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[username]
	if !ok {
		return nil, xerrors.ErrUserNotRegistered
	}
	cp := *cred
	return &cp, nil
}

func (r *MemoryCredentialRepository) EnableTOTP(_ context.Context, username string, encryptedSecret []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[username]
	if !ok || cred.TOTPEnabled {
		return xerrors.ErrUserNotRegistered
	}
	cred.TOTPSecret = encryptedSecret
	cred.TOTPEnabled = true
	cred.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryCredentialRepository) IncrementFailedLogins(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cred, ok := r.creds[username]; ok {
		cred.FailedLoginAttempts++
		cred.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *MemoryCredentialRepository) ResetFailedLogins(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cred, ok := r.creds[username]; ok {
		cred.FailedLoginAttempts = 0
		cred.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *MemoryCredentialRepository) DeleteUnverified(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[username]
	if !ok || cred.TOTPEnabled {
		return false, nil
	}
	delete(r.creds, username)
	return true, nil
}
