// Package transport carries encoded requests to the FCM backends, either as
// independent HTTP/1.1 requests or multiplexed over one HTTP/2 session.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Mode selects how a batch reaches the backend. It is fixed when a client is
// built.
type Mode string

const (
	// ModeDiscrete sends every request on its own HTTP/1.1 exchange.
	ModeDiscrete Mode = "discrete"
	// ModeMultiplexed sends a whole batch over a single HTTP/2 session.
	ModeMultiplexed Mode = "multiplexed"
)

// ParseMode accepts the configured spelling of a mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDiscrete, ModeMultiplexed:
		return Mode(s), nil
	case "":
		return ModeDiscrete, nil
	}
	return "", fmt.Errorf("unknown transport mode %q", s)
}

// Request is a fully encoded backend call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a backend reply with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Doer performs one request.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Session is a Doer bound to one connection. Every request sent through a
// session shares it; Close releases it.
type Session interface {
	Doer
	Close() error
}

// SessionDialer opens a new Session per batch.
type SessionDialer interface {
	Dial(ctx context.Context) (Session, error)
}

// SessionFault reports that the shared session itself failed, as opposed to
// one request on it. Requests still in flight on the session are lost.
type SessionFault struct {
	Err error
}

func (f *SessionFault) Error() string {
	return fmt.Sprintf("http2 session fault: %v", f.Err)
}

func (f *SessionFault) Unwrap() error { return f.Err }

// IsSessionFault reports whether err is a SessionFault.
func IsSessionFault(err error) bool {
	var f *SessionFault
	return errors.As(err, &f)
}

// NewDiscreteHTTPClient returns an http.Client that never negotiates HTTP/2,
// so each request gets its own HTTP/1.1 exchange.
func NewDiscreteHTTPClient(tlsConfig *tls.Config) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ForceAttemptHTTP2 = false
	t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	if tlsConfig != nil {
		t.TLSClientConfig = tlsConfig.Clone()
	}
	return &http.Client{Transport: t}
}

// HTTPDoer performs requests with an http.Client.
type HTTPDoer struct {
	client *http.Client
}

// NewHTTPDoer wraps client. A nil client gets NewDiscreteHTTPClient(nil).
func NewHTTPDoer(client *http.Client) *HTTPDoer {
	if client == nil {
		client = NewDiscreteHTTPClient(nil)
	}
	return &HTTPDoer{client: client}
}

// Do sends req and reads the full response.
func (d *HTTPDoer) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	return readResponse(resp)
}

func newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return httpReq, nil
}

func readResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
