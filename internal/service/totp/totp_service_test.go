package totp

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RogueElectron/Cypher/pkg/xerrors"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("Cypher", bytes.Repeat([]byte{0x11}, 32))
	require.NoError(t, err)
	return v
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestNewVerifierRejectsBadKey(t *testing.T) {
	_, err := NewVerifier("Cypher", []byte("short"))
	assert.Error(t, err)
}

func TestEnrollmentShape(t *testing.T) {
	v := newTestVerifier(t)
	enr, err := v.GenerateEnrollment("alice")
	require.NoError(t, err)

	assert.NotEmpty(t, enr.Secret)
	assert.Contains(t, enr.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, enr.ProvisioningURI, "issuer=Cypher")
	assert.Contains(t, enr.ProvisioningURI, "alice")
	assert.True(t, strings.HasPrefix(enr.QRCodeDataURL, "data:image/png;base64,"))
}

func TestVerifyWindowTolerance(t *testing.T) {
	v := newTestVerifier(t)
	enr, err := v.GenerateEnrollment("bob")
	require.NoError(t, err)

	now := time.Now()
	code := codeAt(t, enr.Secret, now)

	// Accepted at T and one step either side.
	assert.NoError(t, v.VerifyCodeAt(code, enr.Secret, now))
	assert.NoError(t, v.VerifyCodeAt(code, enr.Secret, now.Add(30*time.Second)))
	assert.NoError(t, v.VerifyCodeAt(code, enr.Secret, now.Add(-30*time.Second)))

	// Rejected three steps away.
	assert.ErrorIs(t, v.VerifyCodeAt(code, enr.Secret, now.Add(90*time.Second)), xerrors.ErrInvalidTOTPCode)
	assert.ErrorIs(t, v.VerifyCodeAt(code, enr.Secret, now.Add(-90*time.Second)), xerrors.ErrInvalidTOTPCode)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := newTestVerifier(t)
	enr, err := v.GenerateEnrollment("carol")
	require.NoError(t, err)

	assert.ErrorIs(t, v.VerifyCode("000000", enr.Secret), xerrors.ErrInvalidTOTPCode)
	assert.ErrorIs(t, v.VerifyCode("not-a-code", enr.Secret), xerrors.ErrInvalidTOTPCode)
}

func TestSecretEncryptionRoundTrip(t *testing.T) {
	v := newTestVerifier(t)

	sealed, err := v.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "JBSWY3DP", "sealed blob must not embed the plaintext")

	secret, err := v.DecryptSecret(sealed)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", secret)

	// Tampering or truncation must not yield a secret.
	sealed[len(sealed)-1] ^= 0x01
	_, err = v.DecryptSecret(sealed)
	assert.ErrorIs(t, err, xerrors.ErrNoTOTPSecret)
	_, err = v.DecryptSecret([]byte("tiny"))
	assert.ErrorIs(t, err, xerrors.ErrNoTOTPSecret)
}
