package fcm_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fcm-relay/internal/platform/fcm"
	"github.com/tinywideclouds/go-fcm-relay/internal/transport"
	"github.com/tinywideclouds/go-fcm-relay/pkg/credential"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentMessage struct {
	Message struct {
		Token string `json:"token"`
		Topic string `json:"topic"`
	} `json:"message"`
	ValidateOnly bool `json:"validate_only"`
}

// fcmHandler fakes messages:send. Tokens prefixed "bad-" are rejected as
// unregistered.
func fcmHandler(t *testing.T, seen func(r *http.Request, m sentMessage)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/proj-1/messages:send", r.URL.Path)
		var m sentMessage
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&m)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if seen != nil {
			seen(r, m)
		}
		if strings.HasPrefix(m.Message.Token, "bad-") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"status":"NOT_FOUND","message":"gone","details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"name":"projects/proj-1/messages/%s"}`, m.Message.Token+m.Message.Topic)
	}
}

func newDiscreteClient(t *testing.T, srv *httptest.Server, tokens credential.Source) *fcm.Client {
	t.Helper()
	c, err := fcm.NewClient(fcm.Options{ProjectID: "proj-1", Endpoint: srv.URL, Version: "1.2.3"},
		transport.NewHTTPDoer(srv.Client()), nil, tokens, newTestLogger())
	require.NoError(t, err)
	return c
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("Success with headers and dry run", func(t *testing.T) {
		srv := httptest.NewServer(fcmHandler(t, func(r *http.Request, m sentMessage) {
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			assert.Equal(t, "fire-admin-go-relay/1.2.3", r.Header.Get("X-Firebase-Client"))
			assert.Contains(t, r.Header.Get("X-Goog-Api-Client"), "fire-admin/1.2.3")
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "/topics/news", m.Message.Topic)
			assert.True(t, m.ValidateOnly)
		}))
		defer srv.Close()

		c := newDiscreteClient(t, srv, credential.Static("test-token"))
		id, err := c.Send(ctx, &messaging.Message{Topic: "news"}, true)
		require.NoError(t, err)
		assert.Equal(t, "projects/proj-1/messages//topics/news", id)
	})

	t.Run("Validation error sends nothing", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
		defer srv.Close()

		c := newDiscreteClient(t, srv, credential.Static("t"))
		_, err := c.Send(ctx, &messaging.Message{Token: "a", Topic: "b"}, false)
		assert.True(t, messaging.IsInvalidPayload(err))
		assert.Zero(t, calls.Load())
	})

	t.Run("Backend error is mapped", func(t *testing.T) {
		srv := httptest.NewServer(fcmHandler(t, nil))
		defer srv.Close()

		c := newDiscreteClient(t, srv, credential.Static("t"))
		_, err := c.Send(ctx, &messaging.Message{Token: "bad-1"}, false)
		assert.True(t, messaging.IsRegistrationTokenNotRegistered(err))
		assert.Equal(t, "gone", err.(*messaging.Error).Message)
	})

	t.Run("Transport error is a network error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		c := newDiscreteClient(t, srv, credential.Static("t"))
		_, err := c.Send(ctx, &messaging.Message{Token: "a"}, false)
		assert.True(t, messaging.IsNetworkError(err))
	})

	t.Run("Unauthorized evicts the token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		tokens := &invalidatingSource{}
		c := newDiscreteClient(t, srv, tokens)
		_, err := c.Send(ctx, &messaging.Message{Token: "a"}, false)
		assert.Equal(t, messaging.CodeAuthenticationError, messaging.CodeOf(err))
		assert.Equal(t, int32(1), tokens.invalidated.Load())
	})
}

type invalidatingSource struct {
	invalidated atomic.Int32
}

func (s *invalidatingSource) Token(context.Context) (*credential.Token, error) {
	return &credential.Token{AccessToken: "t"}, nil
}

func (s *invalidatingSource) Invalidate(context.Context) error {
	s.invalidated.Add(1)
	return nil
}

type failingSource struct{}

func (failingSource) Token(context.Context) (*credential.Token, error) {
	return nil, errors.New("key revoked")
}

func TestSendEach_Limits(t *testing.T) {
	c, err := fcm.NewClient(fcm.Options{ProjectID: "p"}, transport.NewHTTPDoer(nil), nil, credential.Static("t"), newTestLogger())
	require.NoError(t, err)

	_, err = c.SendEach(context.Background(), nil, false)
	require.True(t, messaging.IsInvalidArgument(err))
	assert.Equal(t, "messages must be a non-empty array", err.(*messaging.Error).Message)

	_, err = c.SendEach(context.Background(), make([]*messaging.Message, 501), false)
	require.True(t, messaging.IsInvalidArgument(err))
	assert.Equal(t, "messages list must not contain more than 500 items", err.(*messaging.Error).Message)

	_, err = c.SendEachForMulticast(context.Background(), &messaging.MulticastMessage{}, false)
	assert.Equal(t, "tokens must be a non-empty array", err.(*messaging.Error).Message)

	_, err = c.SendEachForMulticast(context.Background(), &messaging.MulticastMessage{Tokens: make([]string, 501)}, false)
	assert.Equal(t, "tokens list must not contain more than 500 items", err.(*messaging.Error).Message)
}

func TestSendEach_Discrete(t *testing.T) {
	srv := httptest.NewServer(fcmHandler(t, nil))
	defer srv.Close()
	c := newDiscreteClient(t, srv, credential.Static("t"))

	msgs := []*messaging.Message{
		{Token: "a"},
		{Token: "bad-1"},
		{Token: "b", Condition: "'x' in topics"},
		nil,
		{Token: "c"},
	}
	br, err := c.SendEach(context.Background(), msgs, false)
	require.NoError(t, err)

	require.Len(t, br.Responses, 5)
	assert.Equal(t, 2, br.SuccessCount)
	assert.Equal(t, 3, br.FailureCount)
	assert.Equal(t, "projects/proj-1/messages/a", br.Responses[0].MessageID)
	assert.Equal(t, messaging.CodeRegistrationTokenNotRegistered, br.Responses[1].Error.Code)
	assert.Equal(t, messaging.CodeInvalidPayload, br.Responses[2].Error.Code)
	assert.Equal(t, messaging.CodeInvalidPayload, br.Responses[3].Error.Code)
	assert.Equal(t, "projects/proj-1/messages/c", br.Responses[4].MessageID)
}

func TestSendEach_CredentialFailureIsPerMessage(t *testing.T) {
	srv := httptest.NewServer(fcmHandler(t, nil))
	defer srv.Close()
	c := newDiscreteClient(t, srv, failingSource{})

	br, err := c.SendEachForMulticast(context.Background(), &messaging.MulticastMessage{Tokens: []string{"a", "b"}}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, br.SuccessCount)
	for _, r := range br.Responses {
		assert.Equal(t, messaging.CodeInvalidCredential, r.Error.Code)
	}
}

func TestSendEach_MaxConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(fcmHandler(t, func(r *http.Request, m sentMessage) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := fcm.NewClient(fcm.Options{ProjectID: "proj-1", Endpoint: srv.URL, MaxConcurrency: 2},
		transport.NewHTTPDoer(srv.Client()), nil, credential.Static("t"), newTestLogger())
	require.NoError(t, err)

	tokens := make([]string, 10)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}
	br, err := c.SendEachForMulticast(context.Background(), &messaging.MulticastMessage{Tokens: tokens}, false)
	require.NoError(t, err)
	assert.Equal(t, 10, br.SuccessCount)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for i, r := range br.Responses {
		assert.Equal(t, "projects/proj-1/messages/"+tokens[i], r.MessageID)
	}
}

func TestSendEach_MultiplexedOverRealHTTP2(t *testing.T) {
	var mu sync.Mutex
	remotes := map[string]bool{}
	srv := httptest.NewUnstartedServer(fcmHandler(t, func(r *http.Request, m sentMessage) {
		assert.Equal(t, 2, r.ProtoMajor)
		mu.Lock()
		remotes[r.RemoteAddr] = true
		mu.Unlock()
	}))
	srv.EnableHTTP2 = true
	srv.StartTLS()
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	dialer, err := transport.NewH2Dialer(srv.URL, &tls.Config{RootCAs: pool}, newTestLogger())
	require.NoError(t, err)

	c, err := fcm.NewClient(fcm.Options{ProjectID: "proj-1", Endpoint: srv.URL, Mode: transport.ModeMultiplexed},
		transport.NewHTTPDoer(srv.Client()), dialer, credential.Static("t"), newTestLogger())
	require.NoError(t, err)

	tokens := []string{"a", "b", "bad-c", "d", "e", "f"}
	br, err := c.SendEachForMulticast(context.Background(), &messaging.MulticastMessage{Tokens: tokens}, false)
	require.NoError(t, err)

	assert.Equal(t, 5, br.SuccessCount)
	assert.Equal(t, 1, br.FailureCount)
	assert.True(t, messaging.IsRegistrationTokenNotRegistered(br.Responses[2].Error))
	assert.Len(t, remotes, 1)
}

func TestSendEach_StreamResetFailsOnlyItsMessage(t *testing.T) {
	inner := fcmHandler(t, nil)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"token":"reset"`) {
			panic(http.ErrAbortHandler)
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		inner(w, r)
	}))
	srv.EnableHTTP2 = true
	srv.StartTLS()
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	dialer, err := transport.NewH2Dialer(srv.URL, &tls.Config{RootCAs: pool}, newTestLogger())
	require.NoError(t, err)

	c, err := fcm.NewClient(fcm.Options{ProjectID: "proj-1", Endpoint: srv.URL, Mode: transport.ModeMultiplexed},
		transport.NewHTTPDoer(srv.Client()), dialer, credential.Static("t"), newTestLogger())
	require.NoError(t, err)

	br, err := c.SendEachForMulticast(context.Background(),
		&messaging.MulticastMessage{Tokens: []string{"a", "reset", "b", "c"}}, false)
	require.NoError(t, err)

	assert.Equal(t, 3, br.SuccessCount)
	assert.Equal(t, 1, br.FailureCount)
	assert.True(t, br.Responses[0].Success)
	assert.True(t, messaging.IsNetworkError(br.Responses[1].Error))
	assert.True(t, br.Responses[2].Success)
	assert.True(t, br.Responses[3].Success)
}

// faultySession answers "ok-" tokens, holds "slow-" tokens until the batch
// context ends and fails the session for "boom" once every "ok-" request
// has been answered.
type faultySession struct {
	okWanted    int
	okDone      atomic.Int32
	allOK       chan struct{}
	slowStarted chan struct{}
	release     chan struct{}
	closed      atomic.Bool
	once        sync.Once
}

func newFaultySession(okWanted int) *faultySession {
	return &faultySession{
		okWanted:    okWanted,
		allOK:       make(chan struct{}),
		slowStarted: make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *faultySession) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	var m sentMessage
	if err := json.Unmarshal(req.Body, &m); err != nil {
		return nil, err
	}
	switch {
	case strings.HasPrefix(m.Message.Token, "ok-"):
		if int(s.okDone.Add(1)) == s.okWanted {
			close(s.allOK)
		}
		return &transport.Response{Status: 200, Body: []byte(`{"name":"id-` + m.Message.Token + `"}`)}, nil
	case strings.HasPrefix(m.Message.Token, "slow-"):
		close(s.slowStarted)
		<-ctx.Done()
		<-s.release
		return nil, ctx.Err()
	default:
		<-s.allOK
		<-s.slowStarted
		return nil, &transport.SessionFault{Err: errors.New("GOAWAY received")}
	}
}

func (s *faultySession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeDialer struct {
	session transport.Session
	err     error
}

func (d *fakeDialer) Dial(context.Context) (transport.Session, error) {
	return d.session, d.err
}

func TestSendEach_SessionFault(t *testing.T) {
	session := newFaultySession(2)
	c, err := fcm.NewClient(fcm.Options{ProjectID: "p", Mode: transport.ModeMultiplexed},
		transport.NewHTTPDoer(nil), &fakeDialer{session: session}, credential.Static("t"), newTestLogger())
	require.NoError(t, err)

	msgs := []*messaging.Message{
		{Token: "ok-1"},
		{Token: "slow-1"},
		{Token: "boom"},
		{Topic: "bad topic"},
		{Token: "ok-2"},
	}
	br, err := c.SendEach(context.Background(), msgs, false)
	require.Nil(t, br)

	var serr *messaging.SessionError
	require.ErrorAs(t, err, &serr)
	assert.True(t, messaging.IsNetworkError(err))

	select {
	case <-serr.PendingBatchResponse().Done():
		t.Fatal("pending response resolved before the slow request settled")
	default:
	}
	close(session.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	partial, err := serr.PendingBatchResponse().Wait(ctx)
	require.NoError(t, err)

	require.Len(t, partial.Responses, 5)
	assert.Equal(t, 2, partial.SuccessCount)
	assert.Equal(t, 3, partial.FailureCount)
	assert.Equal(t, "id-ok-1", partial.Responses[0].MessageID)
	assert.Equal(t, messaging.CodeNetworkError, partial.Responses[1].Error.Code)
	assert.Equal(t, messaging.CodeNetworkError, partial.Responses[2].Error.Code)
	assert.Equal(t, messaging.CodeInvalidPayload, partial.Responses[3].Error.Code)
	assert.Equal(t, "id-ok-2", partial.Responses[4].MessageID)
	assert.True(t, session.closed.Load())
}

func TestSendEach_DialFailure(t *testing.T) {
	c, err := fcm.NewClient(fcm.Options{ProjectID: "p", Mode: transport.ModeMultiplexed},
		transport.NewHTTPDoer(nil), &fakeDialer{err: errors.New("connection refused")}, credential.Static("t"), newTestLogger())
	require.NoError(t, err)

	_, err = c.SendEach(context.Background(), []*messaging.Message{{Token: "a"}, {}}, false)
	var serr *messaging.SessionError
	require.ErrorAs(t, err, &serr)

	partial, err := serr.PendingBatchResponse().Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, messaging.CodeNetworkError, partial.Responses[0].Error.Code)
	assert.Equal(t, messaging.CodeInvalidPayload, partial.Responses[1].Error.Code)
}

func TestNewClient_RequiresDialerForMultiplexed(t *testing.T) {
	_, err := fcm.NewClient(fcm.Options{ProjectID: "p", Mode: transport.ModeMultiplexed},
		transport.NewHTTPDoer(nil), nil, credential.Static("t"), newTestLogger())
	assert.Error(t, err)
}
