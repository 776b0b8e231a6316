package xerrors

import "errors"

// Registration / Login
var (
	ErrUserAlreadyExists = errors.New("username already exists")
	ErrUserNotRegistered = errors.New("client not registered in database")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrNoActiveSession   = errors.New("no active session found")
	ErrAccountInactive   = errors.New("account is not active")
)

// TOTP
var (
	ErrInvalidTOTPCode = errors.New("invalid totp code")
	ErrNoTOTPSecret    = errors.New("no totp secret found for user")
	ErrTOTPNotEnabled  = errors.New("totp not enabled for this user")
)

// Rate limiting / upstream
var (
	ErrRateLimited         = errors.New("too many requests")
	ErrUpstreamUnavailable = errors.New("token service unavailable")
)
