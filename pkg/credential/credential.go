// Package credential supplies the OAuth2 bearer tokens sent with every FCM
// request.
package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes needed to send messages and manage topic subscriptions.
var Scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/firebase.messaging",
}

// Token is an access token and the time it stops being valid.
type Token struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
}

// Valid reports whether the token is usable for at least skew more.
func (t *Token) Valid(now time.Time, skew time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || t.Expiry.After(now.Add(skew))
}

// Source produces access tokens.
type Source interface {
	Token(ctx context.Context) (*Token, error)
}

// Invalidator is implemented by sources that hold tokens somewhere a
// rejected token must be evicted from.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ErrEmptyToken is returned when a source yields a token with no value.
var ErrEmptyToken = errors.New("credential produced an empty access token")

// OAuth2Source adapts an oauth2.TokenSource.
type OAuth2Source struct {
	ts        oauth2.TokenSource
	projectID string
}

// FromTokenSource wraps ts with oauth2.ReuseTokenSource so a valid token is
// reused until it expires.
func FromTokenSource(ts oauth2.TokenSource, projectID string) *OAuth2Source {
	return &OAuth2Source{ts: oauth2.ReuseTokenSource(nil, ts), projectID: projectID}
}

// FromJSON builds a source from a service account or authorized user key.
func FromJSON(ctx context.Context, data []byte) (*OAuth2Source, error) {
	creds, err := google.CredentialsFromJSON(ctx, data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return FromTokenSource(creds.TokenSource, creds.ProjectID), nil
}

// FromFile reads a key file and calls FromJSON.
func FromFile(ctx context.Context, path string) (*OAuth2Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return FromJSON(ctx, data)
}

// Default uses Application Default Credentials.
func Default(ctx context.Context) (*OAuth2Source, error) {
	creds, err := google.FindDefaultCredentials(ctx, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to find default credentials: %w", err)
	}
	return FromTokenSource(creds.TokenSource, creds.ProjectID), nil
}

// ProjectID is the project named by the credential, if any.
func (s *OAuth2Source) ProjectID() string { return s.projectID }

// Token fetches a token. The oauth2 sources do not take a context, so ctx is
// only checked before the call.
func (s *OAuth2Source) Token(ctx context.Context) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := s.ts.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, ErrEmptyToken
	}
	return &Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}

// Static returns a source that always yields the same non-expiring token.
// It is meant for emulators and tests.
func Static(accessToken string) Source {
	return FromTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}), "")
}
