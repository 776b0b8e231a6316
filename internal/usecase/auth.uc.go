package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/RogueElectron/Cypher/internal/domain"
	"github.com/RogueElectron/Cypher/internal/opaque"
	"github.com/RogueElectron/Cypher/internal/repository"
	"github.com/RogueElectron/Cypher/internal/session"
	tokenclient "github.com/RogueElectron/Cypher/internal/service/token"
	totpservice "github.com/RogueElectron/Cypher/internal/service/totp"
	"github.com/RogueElectron/Cypher/pkg/xerrors"
)

// AuthUsecase drives the two-factor authentication state machine: the OPAQUE
// registration and login flows, the pending-to-committed TOTP transition, and
// the unverified-registration deadline that makes registration all-or-nothing.
type AuthUsecase struct {
	engine          *opaque.Server
	creds           repository.CredentialRepository
	sessions        session.Table
	totp            *totpservice.Verifier
	tokens          *tokenclient.Client
	verificationTTL time.Duration
}

func NewAuthUsecase(
	engine *opaque.Server,
	creds repository.CredentialRepository,
	sessions session.Table,
	totp *totpservice.Verifier,
	tokens *tokenclient.Client,
	verificationTTL time.Duration,
) *AuthUsecase {
	if verificationTTL <= 0 {
		verificationTTL = 5 * time.Minute
	}
	return &AuthUsecase{
		engine:          engine,
		creds:           creds,
		sessions:        sessions,
		totp:            totp,
		tokens:          tokens,
		verificationTTL: verificationTTL,
	}
}

// RegisterInit evaluates the OPRF for a new username. Stateless; safe to
// retry. Fails early for usernames that already have a credential.
func (uc *AuthUsecase) RegisterInit(ctx context.Context, username string, request []byte) ([]byte, error) {
	if _, err := uc.creds.GetByUsername(ctx, username); err == nil {
		return nil, xerrors.ErrUserAlreadyExists
	} else if !errors.Is(err, xerrors.ErrUserNotRegistered) {
		return nil, err
	}

	req, err := opaque.DeserializeRegistrationRequest(request)
	if err != nil {
		return nil, err
	}
	resp, err := uc.engine.RegisterInit(req, username)
	if err != nil {
		return nil, err
	}
	return resp.Serialize(), nil
}

// RegisterFinish stores the credential record and arms the verification
// deadline: the user now has verificationTTL to finish TOTP setup or the
// whole registration is rolled back.
func (uc *AuthUsecase) RegisterFinish(ctx context.Context, username string, record []byte) error {
	rec, err := opaque.DeserializeRegistrationRecord(record)
	if err != nil {
		return err
	}
	if err := uc.engine.RegisterFinish(rec); err != nil {
		return err
	}

	cred := &domain.Credential{
		Username:       username,
		OpaqueEnvelope: rec.Serialize(),
		IsActive:       true,
	}
	// The insert is the race arbiter: whichever concurrent registration lands
	// first wins, everyone else gets ErrUserAlreadyExists.
	if err := uc.creds.Create(ctx, cred); err != nil {
		return err
	}

	// The delete is conditional on totp_enabled staying FALSE, so a deadline
	// that fires concurrently with a successful verify-setup is a no-op.
	uc.sessions.ScheduleCleanup(username, uc.verificationTTL, func() {
		removed, err := uc.creds.DeleteUnverified(context.Background(), username)
		if err != nil {
			log.Printf("cleanup of unverified account %s failed: %v", username, err)
			return
		}
		if removed {
			log.Printf("removed unverified account %s after %s deadline", username, uc.verificationTTL)
		}
	})

	log.Printf("user %s registered, awaiting totp verification", username)
	return nil
}

// TotpSetup generates a pending secret for the username. Nothing durable
// changes until the user proves possession of a valid code.
func (uc *AuthUsecase) TotpSetup(ctx context.Context, username string) (*totpservice.Enrollment, error) {
	if _, err := uc.creds.GetByUsername(ctx, username); err != nil {
		return nil, err
	}
	enrollment, err := uc.totp.GenerateEnrollment(username)
	if err != nil {
		return nil, err
	}
	uc.sessions.SetPendingTOTPSecret(username, enrollment.Secret)
	return enrollment, nil
}

// TotpVerifySetup commits the pending secret once the user presents a valid
// code, cancels the verification deadline, and completes registration.
func (uc *AuthUsecase) TotpVerifySetup(ctx context.Context, username, code string) error {
	secret, ok := uc.sessions.PendingTOTPSecret(username)
	if !ok {
		return xerrors.ErrNoTOTPSecret
	}
	if err := uc.totp.VerifyCode(code, secret); err != nil {
		return err
	}

	sealed, err := uc.totp.EncryptSecret(secret)
	if err != nil {
		return err
	}
	if err := uc.creds.EnableTOTP(ctx, username, sealed); err != nil {
		return err
	}
	uc.sessions.MarkVerified(username)
	uc.sessions.DeletePendingTOTPSecret(username)
	log.Printf("user %s completed totp setup", username)
	return nil
}

// LoginInit runs the server side of the AKE and parks the verifier state in
// the session table. One in-flight login per user: a repeat init overwrites
// the previous pending state.
func (uc *AuthUsecase) LoginInit(ctx context.Context, username string, ke1Bytes []byte) ([]byte, error) {
	cred, err := uc.creds.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !cred.IsActive {
		return nil, xerrors.ErrAccountInactive
	}

	ke1, err := opaque.DeserializeKE1(ke1Bytes)
	if err != nil {
		return nil, err
	}
	record, err := opaque.DeserializeRegistrationRecord(cred.OpaqueEnvelope)
	if err != nil {
		return nil, fmt.Errorf("stored credential for %s is corrupt: %w", username, err)
	}

	ke2, expected, err := uc.engine.LoginInit(ke1, record, username)
	if err != nil {
		return nil, err
	}
	uc.sessions.SetPendingLogin(username, expected.Marshal())
	return ke2.Serialize(), nil
}

// LoginFinish consumes the pending verifier state exactly once, validates the
// client's MAC, and on success trades the proof for an intermediate token from
// the session issuer. MAC mismatch yields the same ErrAuthFailed whatever the
// underlying cause.
func (uc *AuthUsecase) LoginFinish(ctx context.Context, username string, ke3Bytes []byte) (string, error) {
	expectedBytes, ok := uc.sessions.TakePendingLogin(username)
	if !ok {
		return "", xerrors.ErrNoActiveSession
	}
	expected, err := opaque.UnmarshalExpectedAuth(expectedBytes)
	if err != nil {
		return "", err
	}
	ke3, err := opaque.DeserializeKE3(ke3Bytes)
	if err != nil {
		return "", err
	}

	attemptID := uuid.NewString()
	if _, err := uc.engine.LoginFinish(ke3, expected); err != nil {
		if incErr := uc.creds.IncrementFailedLogins(ctx, username); incErr != nil {
			log.Printf("failed-login counter update for %s: %v", username, incErr)
		}
		log.Printf("login attempt %s for %s rejected", attemptID, username)
		return "", xerrors.ErrAuthFailed
	}
	// The session key is only an authentication signal here; the second
	// factor gates the real session.
	if err := uc.creds.ResetFailedLogins(ctx, username); err != nil {
		log.Printf("failed-login counter reset for %s: %v", username, err)
	}

	intermediate, err := uc.tokens.CreateToken(ctx, username)
	if err != nil {
		return "", err
	}
	log.Printf("login attempt %s for %s passed password factor", attemptID, username)
	return intermediate, nil
}

// TotpVerifyLogin gates session issuance on the second factor: the
// intermediate token must verify and the code must match the committed secret.
func (uc *AuthUsecase) TotpVerifyLogin(ctx context.Context, username, code, intermediateToken string) (*tokenclient.Session, error) {
	if err := uc.tokens.VerifyToken(ctx, intermediateToken, username); err != nil {
		return nil, err
	}

	cred, err := uc.creds.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !cred.TOTPEnabled || len(cred.TOTPSecret) == 0 {
		return nil, xerrors.ErrTOTPNotEnabled
	}
	secret, err := uc.totp.DecryptSecret(cred.TOTPSecret)
	if err != nil {
		return nil, err
	}
	if err := uc.totp.VerifyCode(code, secret); err != nil {
		return nil, err
	}

	sess, err := uc.tokens.CreateSession(ctx, username)
	if err != nil {
		return nil, err
	}
	log.Printf("user %s completed two-factor login", username)
	return sess, nil
}
