package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"

	"golang.org/x/net/http2"
)

// H2Dialer opens one TLS connection that negotiated "h2" and runs an HTTP/2
// client connection over it.
type H2Dialer struct {
	endpoint  *url.URL
	tlsConfig *tls.Config
	logger    *slog.Logger
}

// NewH2Dialer prepares a dialer for the host of endpoint. tlsConfig may be
// nil; NextProtos is always forced to "h2".
func NewH2Dialer(endpoint string, tlsConfig *tls.Config, logger *slog.Logger) (*H2Dialer, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("multiplexed transport needs an https endpoint, got %q", endpoint)
	}
	cfg := &tls.Config{}
	if tlsConfig != nil {
		cfg = tlsConfig.Clone()
	}
	cfg.NextProtos = []string{http2.NextProtoTLS}
	if cfg.ServerName == "" {
		cfg.ServerName = u.Hostname()
	}
	return &H2Dialer{
		endpoint:  u,
		tlsConfig: cfg,
		logger:    logger.With("component", "H2Dialer"),
	}, nil
}

// Dial connects and performs the HTTP/2 preface.
func (d *H2Dialer) Dial(ctx context.Context) (Session, error) {
	addr := d.endpoint.Host
	if d.endpoint.Port() == "" {
		addr = net.JoinHostPort(d.endpoint.Hostname(), "443")
	}

	dialer := &tls.Dialer{Config: d.tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	tlsConn := conn.(*tls.Conn)
	if proto := tlsConn.ConnectionState().NegotiatedProtocol; proto != http2.NextProtoTLS {
		_ = tlsConn.Close()
		return nil, fmt.Errorf("server at %s did not negotiate h2 (got %q)", addr, proto)
	}

	t := &http2.Transport{}
	cc, err := t.NewClientConn(tlsConn)
	if err != nil {
		_ = tlsConn.Close()
		return nil, fmt.Errorf("failed to start http2 session: %w", err)
	}
	d.logger.Debug("HTTP/2 session opened", "addr", addr)
	return &h2Session{cc: cc, logger: d.logger}, nil
}

type h2Session struct {
	cc     *http2.ClientConn
	logger *slog.Logger
}

// Do sends req on the shared connection. Only failures of the connection
// itself are reported as a SessionFault; a reset of this request's stream
// is returned as a plain error.
func (s *h2Session) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := s.cc.RoundTrip(httpReq)
	if err != nil {
		return nil, s.classify(ctx, err)
	}
	out, err := readResponse(resp)
	if err != nil {
		return nil, s.classify(ctx, err)
	}
	return out, nil
}

func (s *h2Session) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var streamErr http2.StreamError
	if errors.As(err, &streamErr) {
		return err
	}
	var goAway http2.GoAwayError
	if errors.As(err, &goAway) {
		return &SessionFault{Err: err}
	}
	if st := s.cc.State(); st.Closed || st.Closing || !s.cc.CanTakeNewRequest() {
		return &SessionFault{Err: err}
	}
	return err
}

func (s *h2Session) Close() error {
	s.logger.Debug("HTTP/2 session closed")
	return s.cc.Close()
}
