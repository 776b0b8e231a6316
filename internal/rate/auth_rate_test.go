package rate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RogueElectron/Cypher/pkg/xerrors"
)

func TestSixthAttemptRejectedWithRetryAfter(t *testing.T) {
	lim := NewLimiter(NewMemoryCounter())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := lim.Allow(ctx, "ip:1.2.3.4", "login", Strict)
		require.NoError(t, err, "attempt %d should pass", i+1)
	}

	retryAfter, err := lim.Allow(ctx, "ip:1.2.3.4", "login", Strict)
	assert.ErrorIs(t, err, xerrors.ErrRateLimited)
	assert.Greater(t, retryAfter, time.Duration(0), "retry-after must be positive")
}

func TestSeparateClientsDoNotShareWindows(t *testing.T) {
	lim := NewLimiter(NewMemoryCounter())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := lim.Allow(ctx, "ip:1.2.3.4", "login", Strict)
		require.NoError(t, err)
	}
	_, err := lim.Allow(ctx, "ip:5.6.7.8", "login", Strict)
	assert.NoError(t, err)

	// Same client on a different route also gets a fresh window.
	_, err = lim.Allow(ctx, "ip:1.2.3.4", "totp", Moderate)
	assert.NoError(t, err)
}

func TestWindowExpiryResetsCounter(t *testing.T) {
	lim := NewLimiter(NewMemoryCounter())
	ctx := context.Background()
	tier := Tier{Limit: 1, Window: 20 * time.Millisecond}

	_, err := lim.Allow(ctx, "c", "r", tier)
	require.NoError(t, err)
	_, err = lim.Allow(ctx, "c", "r", tier)
	require.ErrorIs(t, err, xerrors.ErrRateLimited)

	time.Sleep(30 * time.Millisecond)
	_, err = lim.Allow(ctx, "c", "r", tier)
	assert.NoError(t, err)
}

type brokenCounter struct{}

func (brokenCounter) IncrWithExpire(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func (brokenCounter) TTL(context.Context, string) (time.Duration, error) {
	return 0, errors.New("connection refused")
}

func TestFailsOpenWhenBackingStoreIsDown(t *testing.T) {
	lim := NewLimiter(brokenCounter{})
	for i := 0; i < 20; i++ {
		_, err := lim.Allow(context.Background(), "c", "r", Strict)
		assert.NoError(t, err, "limiter must fail open when the store is unreachable")
	}
}

func TestMiddlewareSetsRetryAfterHeader(t *testing.T) {
	lim := NewLimiter(NewMemoryCounter())
	handler := lim.Middleware("login", Tier{Limit: 1, Window: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/login/init", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
