package domain

import "time"

// Credential is the durable per-user row backing OPAQUE login. The envelope is
// the client-sealed registration record and is immutable once written; a
// re-registration for an existing username is rejected, never overwritten.
type Credential struct {
	Username            string
	OpaqueEnvelope      []byte
	IsActive            bool
	TOTPSecret          []byte // encrypted at rest, nil until TOTP setup is verified
	TOTPEnabled         bool
	FailedLoginAttempts int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	PasswordChangedAt   time.Time
}
