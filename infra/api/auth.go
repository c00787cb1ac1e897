package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yatrik/scheduler/core/scheduler"
)

// refreshMargin is how long before expiry a token is renewed.
const refreshMargin = 30 * time.Second

// Session holds the admin bearer token.
type Session struct {
	c      *Client
	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

// GetToken returns a valid token, logging in when none is cached or the
// cached one expires within refreshMargin.
func (s *Session) GetToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && (s.expiry.IsZero() || s.now().Add(refreshMargin).Before(s.expiry)) {
		return s.token, nil
	}
	return s.login(ctx)
}

// ForceRefresh discards the cached token and logs in again.
func (s *Session) ForceRefresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.login(ctx)
}

// SetAuthHeader sets the bearer token on r.
func (s *Session) SetAuthHeader(ctx context.Context, r *http.Request) error {
	tok, err := s.GetToken(ctx)
	if err != nil {
		return err
	}
	r.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

func (s *Session) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(loginRequest{Email: s.c.cfg.Email, Password: s.c.cfg.Password})
	if err != nil {
		return "", &scheduler.AuthError{Msg: "encode login request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.c.url("/api/auth/login", nil), bytes.NewReader(body))
	if err != nil {
		return "", &scheduler.AuthError{Msg: "build login request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.c.http.Do(req)
	if err != nil {
		return "", &scheduler.AuthError{Msg: "login request failed", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &scheduler.AuthError{Status: resp.StatusCode, Msg: "read login response", Err: err}
	}
	var lr loginResponse
	_ = json.Unmarshal(raw, &lr)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := lr.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", &scheduler.AuthError{Status: resp.StatusCode, Msg: msg}
	}
	tok := lr.token()
	if tok == "" {
		return "", &scheduler.AuthError{Msg: "login response carries no token"}
	}
	if role := strings.ToLower(lr.role()); role != "admin" {
		return "", &scheduler.AuthError{Msg: fmt.Sprintf("user role %q is not admin", lr.role())}
	}
	s.token = tok
	s.expiry = tokenExpiry(tok)
	s.c.log.Debugf("admin login succeeded, token expires %v", s.expiry)
	return tok, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend remains the authority on validity. Opaque tokens never expire
// locally and are renewed on a 401.
func tokenExpiry(tok string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
