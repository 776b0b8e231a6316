// Package totp generates and verifies time-based one-time passwords for the
// second authentication factor, and encrypts committed secrets before they
// reach durable storage.
package totp

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/RogueElectron/Cypher/pkg/xerrors"
)

const (
	period     = 30
	secretSize = 32
	qrSize     = 256
)

// Enrollment is what the setup endpoint hands back to the client: the shared
// secret for manual entry, the provisioning URI, and a QR code the
// authenticator app can scan, as a PNG data URL.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
	QRCodeDataURL   string
}

type Verifier struct {
	issuer        string
	encryptionKey []byte
}

// NewVerifier builds the TOTP verifier. The encryption key protects committed
// secrets at rest and must be 32 bytes.
func NewVerifier(issuer string, encryptionKey []byte) (*Verifier, error) {
	if len(encryptionKey) != chacha20poly1305.KeySize {
		return nil, errors.New("totp: encryption key must be 32 bytes")
	}
	return &Verifier{issuer: issuer, encryptionKey: encryptionKey}, nil
}

// GenerateEnrollment creates a fresh secret bound to the username. The secret
// is pending until VerifyCode proves the user's authenticator has it.
func (v *Verifier) GenerateEnrollment(username string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: username,
		Period:      period,
		SecretSize:  secretSize,
		Algorithm:   otp.AlgorithmSHA1, // what authenticator apps implement
	})
	if err != nil {
		return nil, err
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodeDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// VerifyCode checks a 6-digit code against the secret at the current time with
// a one-step tolerance window either side, absorbing clock drift. The
// underlying comparison is constant time.
func (v *Verifier) VerifyCode(code, secret string) error {
	return v.VerifyCodeAt(code, secret, time.Now())
}

// VerifyCodeAt is VerifyCode against an explicit clock.
func (v *Verifier) VerifyCodeAt(code, secret string, at time.Time) error {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    period,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return xerrors.ErrInvalidTOTPCode
	}
	return nil
}

// EncryptSecret seals a verified secret for durable storage.
func (v *Verifier) EncryptSecret(secret string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.encryptionKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, []byte(secret), nil), nil
}

// DecryptSecret opens a stored secret.
func (v *Verifier) DecryptSecret(sealed []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(v.encryptionKey)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", xerrors.ErrNoTOTPSecret
	}
	plain, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], nil)
	if err != nil {
		return "", xerrors.ErrNoTOTPSecret
	}
	return string(plain), nil
}
