// Package fcm sends messages to the FCM HTTP v1 API, one at a time or as
// batches of up to 500 with per-message outcomes.
package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-fcm-relay/internal/errmap"
	"github.com/tinywideclouds/go-fcm-relay/internal/transport"
	"github.com/tinywideclouds/go-fcm-relay/internal/validate"
	"github.com/tinywideclouds/go-fcm-relay/internal/wire"
	"github.com/tinywideclouds/go-fcm-relay/pkg/credential"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

// Options configure a Client.
type Options struct {
	ProjectID string
	Endpoint  string
	Version   string
	Mode      transport.Mode
	// MaxConcurrency caps in-flight requests per batch. Zero means no cap.
	MaxConcurrency int
}

// Client is safe for concurrent use. It holds no per-call state.
type Client struct {
	sendURL        string
	headers        http.Header
	mode           transport.Mode
	doer           transport.Doer
	dialer         transport.SessionDialer
	tokens         credential.Source
	maxConcurrency int
	logger         *slog.Logger
}

// NewClient builds a Client. doer serves single sends and discrete batches;
// dialer is required in multiplexed mode.
func NewClient(opts Options, doer transport.Doer, dialer transport.SessionDialer, tokens credential.Source, logger *slog.Logger) (*Client, error) {
	if opts.ProjectID == "" {
		return nil, errors.New("project id is required")
	}
	if doer == nil {
		return nil, errors.New("a transport is required")
	}
	if tokens == nil {
		return nil, errors.New("a credential source is required")
	}
	if opts.Mode == transport.ModeMultiplexed && dialer == nil {
		return nil, errors.New("multiplexed mode requires a session dialer")
	}
	if opts.Mode == "" {
		opts.Mode = transport.ModeDiscrete
	}
	return &Client{
		sendURL:        fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimSuffix(opts.Endpoint, "/"), opts.ProjectID),
		headers:        transport.ClientHeaders(opts.Version),
		mode:           opts.Mode,
		doer:           doer,
		dialer:         dialer,
		tokens:         tokens,
		maxConcurrency: opts.MaxConcurrency,
		logger:         logger.With("component", "FCMClient", "mode", string(opts.Mode)),
	}, nil
}

// Send validates and sends one message and returns the message id the
// backend assigned. With dryRun the backend validates without delivering.
func (c *Client) Send(ctx context.Context, msg *messaging.Message, dryRun bool) (string, error) {
	body, err := c.prepare(msg, dryRun)
	if err != nil {
		return "", err
	}
	id, mErr := c.post(ctx, c.doer, body)
	if mErr != nil {
		c.logger.Debug("Send failed", "code", mErr.Code, "err", mErr.Message)
		return "", mErr
	}
	return id, nil
}

// prepare validates and encodes msg. Both failures are invalid-payload.
func (c *Client) prepare(msg *messaging.Message, dryRun bool) ([]byte, error) {
	if err := validate.Message(msg); err != nil {
		return nil, err
	}
	body, err := wire.Marshal(msg, dryRun)
	if err != nil {
		return nil, messaging.WrapError(messaging.CodeInvalidPayload, fmt.Sprintf("failed to encode message: %v", err), err)
	}
	return body, nil
}

type sendResult struct {
	Name string `json:"name"`
}

// post performs one messages:send call.
func (c *Client) post(ctx context.Context, d transport.Doer, body []byte) (string, *messaging.Error) {
	id, mErr, _ := c.postWithFault(ctx, d, body)
	return id, mErr
}

// postWithFault also returns the raw error when the session carrying the
// request failed, so a batch can be torn down.
func (c *Client) postWithFault(ctx context.Context, d transport.Doer, body []byte) (string, *messaging.Error, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", errmap.FromTransport(ctx.Err()), nil
		}
		return "", errmap.FromCredential(err), nil
	}

	req := &transport.Request{
		Method: http.MethodPost,
		URL:    c.sendURL,
		Header: c.headers.Clone(),
		Body:   body,
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := d.Do(ctx, req)
	if err != nil {
		mErr := errmap.FromTransport(err)
		if transport.IsSessionFault(err) {
			return "", mErr, err
		}
		return "", mErr, nil
	}

	if resp.Status == http.StatusOK {
		var res sendResult
		if err := json.Unmarshal(resp.Body, &res); err == nil && res.Name != "" {
			return res.Name, nil, nil
		}
	}

	mErr := errmap.FromResponse(resp.Status, resp.Body)
	if resp.Status == http.StatusUnauthorized {
		c.invalidateToken(ctx)
	}
	return "", mErr, nil
}

func (c *Client) invalidateToken(ctx context.Context) {
	inv, ok := c.tokens.(credential.Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx); err != nil {
		c.logger.Warn("Failed to invalidate rejected access token", "err", err)
	}
}
