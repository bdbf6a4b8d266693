package iid_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fcm-relay/internal/platform/iid"
	"github.com/tinywideclouds/go-fcm-relay/internal/transport"
	"github.com/tinywideclouds/go-fcm-relay/pkg/credential"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, h http.HandlerFunc) *iid.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := iid.NewClient(srv.URL, "1.0.0", transport.NewHTTPDoer(srv.Client()), credential.Static("tok"), newTestLogger())
	require.NoError(t, err)
	return c
}

func TestSubscribeToTopic(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/iid/v1:batchAdd", r.URL.Path)
		assert.Equal(t, "true", r.Header.Get("access_token_auth"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body struct {
			To     string   `json:"to"`
			Tokens []string `json:"registration_tokens"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			assert.Equal(t, "/topics/news", body.To)
			assert.Equal(t, []string{"a", "b", "c"}, body.Tokens)
		}
		_, _ = w.Write([]byte(`{"results":[{},{"error":"NOT_FOUND"},{"error":"TOO_MANY_TOPICS"}]}`))
	})

	resp, err := c.SubscribeToTopic(context.Background(), []string{"a", "b", "c"}, "news")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SuccessCount)
	assert.Equal(t, 2, resp.FailureCount)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, 1, resp.Errors[0].Index)
	assert.Equal(t, messaging.CodeRegistrationTokenNotRegistered, resp.Errors[0].Reason.Code)
	assert.Equal(t, 2, resp.Errors[1].Index)
	assert.Equal(t, messaging.CodeTooManyTopics, resp.Errors[1].Reason.Code)
}

func TestUnsubscribeFromTopic_RemovePath(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/iid/v1:batchRemove", r.URL.Path)
		_, _ = w.Write([]byte(`{"results":[{}]}`))
	})

	resp, err := c.UnsubscribeFromTopic(context.Background(), []string{"a"}, "/topics/private/team")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SuccessCount)
	assert.Empty(t, resp.Errors)
}

func TestTopicManagement_ValidationBeforeRequest(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	ctx := context.Background()

	testCases := []struct {
		name    string
		tokens  []string
		topic   string
		message string
	}{
		{"no tokens", nil, "news", "Registration token(s) provided to SubscribeToTopic() must be a non-empty string or a non-empty array."},
		{"too many", make([]string, 1001), "news", "Too many registration tokens provided in a single request to SubscribeToTopic(). Batch your requests to contain no more than 1,000 registration tokens per request."},
		{"empty token", []string{"a", ""}, "news", "Registration token provided to SubscribeToTopic() at index 1 must be a non-empty string."},
		{"bad topic", []string{"a"}, "/topics/a b", `Topic provided to SubscribeToTopic() must be a string which matches the format "/topics/[a-zA-Z0-9-_.~%]+".`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.SubscribeToTopic(ctx, tc.tokens, tc.topic)
			require.True(t, messaging.IsInvalidArgument(err))
			assert.Equal(t, tc.message, err.(*messaging.Error).Message)
		})
	}
	assert.Zero(t, calls.Load())
}

func TestTopicManagement_HTTPErrorFailsCall(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"PERMISSION_DENIED"}`))
	})

	_, err := c.SubscribeToTopic(context.Background(), []string{"a"}, "news")
	require.Error(t, err)
	assert.Equal(t, messaging.CodeMismatchedCredential, messaging.CodeOf(err))

	c = newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Repeat("x", 3)))
	})
	_, err = c.UnsubscribeFromTopic(context.Background(), []string{"a"}, "news")
	assert.True(t, messaging.IsUnavailable(err))
}

func TestSubscribeToTopic_MaxTokens(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tokens []string `json:"registration_tokens"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		results := make([]string, len(body.Tokens))
		for i := range results {
			results[i] = "{}"
		}
		_, _ = w.Write([]byte(`{"results":[` + strings.Join(results, ",") + `]}`))
	})

	tokens := make([]string, messaging.MaxTopicTokens)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("token-%d", i)
	}
	resp, err := c.SubscribeToTopic(context.Background(), tokens, "news")
	require.NoError(t, err)
	assert.Equal(t, 1000, resp.SuccessCount)
	assert.Zero(t, resp.FailureCount)
	assert.Empty(t, resp.Errors)
}

func TestSubscribeToTopic_ShortResults(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{},{"error":"INVALID_ARGUMENT"}]}`))
	})

	resp, err := c.SubscribeToTopic(context.Background(), []string{"a", "b", "c", "d"}, "news")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SuccessCount)
	assert.Equal(t, 3, resp.FailureCount)
	require.Len(t, resp.Errors, 3)
	assert.Equal(t, 1, resp.Errors[0].Index)
	assert.Equal(t, 2, resp.Errors[1].Index)
	assert.Equal(t, messaging.CodeUnknownError, resp.Errors[1].Reason.Code)
	assert.Equal(t, 3, resp.Errors[2].Index)
	assert.Equal(t, messaging.CodeUnknownError, resp.Errors[2].Reason.Code)
}

func TestTopicManagement_CanceledContextIsNetworkError(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SubscribeToTopic(ctx, []string{"a"}, "news")
	require.Error(t, err)
	assert.True(t, messaging.IsNetworkError(err))
	assert.False(t, messaging.HasCode(err, messaging.CodeInvalidCredential))
	assert.Zero(t, calls.Load())
}
