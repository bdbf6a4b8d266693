package credential_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fcm-relay/pkg/credential"
	"golang.org/x/oauth2"
)

type countingSource struct {
	calls int
	tok   *oauth2.Token
	err   error
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	s.calls++
	return s.tok, s.err
}

func TestOAuth2Source_ReusesValidToken(t *testing.T) {
	src := &countingSource{tok: &oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(time.Hour)}}
	s := credential.FromTokenSource(src, "proj")

	for i := 0; i < 3; i++ {
		tok, err := s.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc", tok.AccessToken)
	}
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, "proj", s.ProjectID())
}

func TestOAuth2Source_Errors(t *testing.T) {
	s := credential.FromTokenSource(&countingSource{err: errors.New("revoked")}, "")
	_, err := s.Token(context.Background())
	assert.ErrorContains(t, err, "revoked")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = credential.Static("x").Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := credential.FromJSON(context.Background(), []byte(`{"type":"nonsense"}`))
	assert.Error(t, err)
}

func TestToken_Valid(t *testing.T) {
	now := time.Now()
	assert.True(t, (&credential.Token{AccessToken: "a"}).Valid(now, time.Minute))
	assert.True(t, (&credential.Token{AccessToken: "a", Expiry: now.Add(time.Hour)}).Valid(now, time.Minute))
	assert.False(t, (&credential.Token{AccessToken: "a", Expiry: now.Add(30 * time.Second)}).Valid(now, time.Minute))
	assert.False(t, (&credential.Token{}).Valid(now, 0))

	var nilTok *credential.Token
	assert.False(t, nilTok.Valid(now, 0))
}
