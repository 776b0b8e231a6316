// Package token talks to the external session issuer over its HTTP contract:
// an intermediate token after the password factor, verification of that token
// before the TOTP factor counts, and the final access/refresh session pair.
// Every failure is fail-closed; the factors may have succeeded, but no token
// means no session.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/RogueElectron/Cypher/pkg/xerrors"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Session is the final token pair minted after both factors succeed.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: token service responded with status %d", xerrors.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %v", xerrors.ErrUpstreamUnavailable, err)
		}
	}
	return nil
}

// CreateToken mints the intermediate token proving the password factor.
func (c *Client) CreateToken(ctx context.Context, username string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.post(ctx, "/api/create-token", map[string]string{"username": username}, &out)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: token service returned an empty payload", xerrors.ErrUpstreamUnavailable)
	}
	return out.Token, nil
}

// VerifyToken checks an intermediate token. A reachable issuer that says "no"
// is an auth failure, not an upstream failure.
func (c *Client) VerifyToken(ctx context.Context, token, username string) error {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := c.post(ctx, "/api/verify-token", map[string]string{"token": token, "username": username}, &out)
	if err != nil {
		return err
	}
	if !out.Valid {
		return xerrors.ErrAuthFailed
	}
	return nil
}

// CreateSession mints the access/refresh pair once both factors are done.
func (c *Client) CreateSession(ctx context.Context, username string) (*Session, error) {
	var out Session
	if err := c.post(ctx, "/api/create-session", map[string]string{"username": username}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token service returned an incomplete session", xerrors.ErrUpstreamUnavailable)
	}
	return &out, nil
}
