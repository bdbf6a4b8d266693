package fcmclient_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fcm-relay/fcmclient"
	"github.com/tinywideclouds/go-fcm-relay/pkg/credential"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_Validate(t *testing.T) {
	cfg := fcmclient.DefaultConfig("proj")
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.ProjectID = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Mode = "telepathy"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SendEndpoint = "not a url"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MaxConcurrency = 501
	assert.Error(t, bad.Validate())
}

func TestClient_EndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/proj/messages:send", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"projects/proj/messages/1"}`))
	})
	mux.HandleFunc("/iid/v1:batchAdd", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := fcmclient.DefaultConfig("proj")
	cfg.SendEndpoint = srv.URL
	cfg.IIDEndpoint = srv.URL

	client, err := fcmclient.New(context.Background(), cfg, newTestLogger(),
		fcmclient.WithHTTPClient(srv.Client()),
		fcmclient.WithTokenSource(credential.Static("t")))
	require.NoError(t, err)

	id, err := client.Send(context.Background(), &messaging.Message{Token: "a"})
	require.NoError(t, err)
	assert.Equal(t, "projects/proj/messages/1", id)

	br, err := client.SendEachDryRun(context.Background(), []*messaging.Message{{Token: "a"}, {Token: "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, br.SuccessCount)

	tr, err := client.SubscribeToTopic(context.Background(), []string{"a"}, "news")
	require.NoError(t, err)
	assert.Equal(t, 1, tr.SuccessCount)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := fcmclient.DefaultConfig("")
	_, err := fcmclient.New(context.Background(), cfg, newTestLogger(), fcmclient.WithTokenSource(credential.Static("t")))
	assert.Error(t, err)
}

// fixedTokens is a caller-supplied token source built only from exported
// types.
type fixedTokens struct{ calls int }

func (f *fixedTokens) Token(ctx context.Context) (*fcmclient.Token, error) {
	f.calls++
	return &fcmclient.Token{AccessToken: "caller-token", Expiry: time.Now().Add(time.Hour)}, nil
}

func TestWithTokenSource_CallerImplementation(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"name":"projects/proj/messages/1"}`))
	}))
	defer srv.Close()

	cfg := fcmclient.DefaultConfig("proj")
	cfg.SendEndpoint = srv.URL
	cfg.IIDEndpoint = srv.URL

	tokens := &fixedTokens{}
	client, err := fcmclient.New(context.Background(), cfg, newTestLogger(),
		fcmclient.WithHTTPClient(srv.Client()),
		fcmclient.WithTokenSource(tokens))
	require.NoError(t, err)

	_, err = client.Send(context.Background(), &messaging.Message{Token: "a"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer caller-token", gotAuth)
	assert.Equal(t, 1, tokens.calls)
}

const authorizedUserKey = `{"type":"authorized_user","client_id":"id","client_secret":"secret","refresh_token":"refresh"}`

func TestWithCredentials(t *testing.T) {
	cfg := fcmclient.DefaultConfig("proj")

	t.Run("JSON key", func(t *testing.T) {
		_, err := fcmclient.New(context.Background(), cfg, newTestLogger(),
			fcmclient.WithCredentialsJSON([]byte(authorizedUserKey)))
		assert.NoError(t, err)
	})

	t.Run("Invalid JSON key", func(t *testing.T) {
		_, err := fcmclient.New(context.Background(), cfg, newTestLogger(),
			fcmclient.WithCredentialsJSON([]byte(`{"type":"nonsense"}`)))
		assert.ErrorContains(t, err, "failed to parse credentials")
	})

	t.Run("Key file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key.json")
		require.NoError(t, os.WriteFile(path, []byte(authorizedUserKey), 0o600))

		_, err := fcmclient.New(context.Background(), cfg, newTestLogger(),
			fcmclient.WithCredentialsFile(path))
		assert.NoError(t, err)
	})

	t.Run("Missing key file", func(t *testing.T) {
		_, err := fcmclient.New(context.Background(), cfg, newTestLogger(),
			fcmclient.WithCredentialsFile(filepath.Join(t.TempDir(), "absent.json")))
		assert.ErrorContains(t, err, "failed to read credentials file")
	})

	t.Run("Token source wins", func(t *testing.T) {
		_, err := fcmclient.New(context.Background(), cfg, newTestLogger(),
			fcmclient.WithCredentialsFile("/nonexistent/key.json"),
			fcmclient.WithTokenSource(credential.Static("t")))
		assert.NoError(t, err)
	})
}
