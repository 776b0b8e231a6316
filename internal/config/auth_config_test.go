package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	hex := strings.Repeat("ab", 32)
	t.Setenv("OPRF_SEED", hex)
	t.Setenv("AKE_KEYPAIR_SEED", hex)
	t.Setenv("TOTP_ENC_KEY", hex)
}

func TestLoadUsesDefaults(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("VERIFICATION_TIMEOUT", "")
	t.Setenv("TOKEN_SVC_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Minute, cfg.VerificationTimeout)
	assert.Equal(t, 5*time.Second, cfg.TokenSvcTimeout)
	assert.Len(t, cfg.OprfSeed, 32)
}

func TestLoadParsesDurationOverrides(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("VERIFICATION_TIMEOUT", "90s")
	t.Setenv("TOKEN_SVC_TIMEOUT", "2s")

	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.VerificationTimeout)
	assert.Equal(t, 2*time.Second, cfg.TokenSvcTimeout)
}

func TestLoadSplitsAllowedOrigins(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg := Load()
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
