// Package fcmclient is the entry point for sending FCM messages and managing
// topic subscriptions.
package fcmclient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-fcm-relay/internal/platform/fcm"
	"github.com/tinywideclouds/go-fcm-relay/internal/platform/iid"
	"github.com/tinywideclouds/go-fcm-relay/internal/transport"
	"github.com/tinywideclouds/go-fcm-relay/pkg/credential"
	"github.com/tinywideclouds/go-fcm-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

// Client sends messages and manages topics. It is safe for concurrent use.
type Client struct {
	sender *fcm.Client
	topics *iid.Client
}

// New validates cfg and wires the transports and credentials.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeDiscrete
	}
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	tokens, err := o.tokenSource(ctx)
	if err != nil {
		return nil, err
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = transport.NewDiscreteHTTPClient(o.tlsConfig)
	}
	doer := transport.NewHTTPDoer(httpClient)

	dialer := o.dialer
	if cfg.Mode == ModeMultiplexed && dialer == nil {
		h2, err := transport.NewH2Dialer(cfg.SendEndpoint, o.tlsConfig, logger)
		if err != nil {
			return nil, err
		}
		dialer = h2
	}

	sender, err := fcm.NewClient(fcm.Options{
		ProjectID:      cfg.ProjectID,
		Endpoint:       cfg.SendEndpoint,
		Version:        cfg.Version,
		Mode:           cfg.Mode,
		MaxConcurrency: cfg.MaxConcurrency,
	}, doer, dialer, tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create send client: %w", err)
	}
	topics, err := iid.NewClient(cfg.IIDEndpoint, cfg.Version, doer, tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create topic client: %w", err)
	}
	return &Client{sender: sender, topics: topics}, nil
}

// Send sends one message and returns its message id.
func (c *Client) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	return c.sender.Send(ctx, msg, false)
}

// SendDryRun validates msg with the backend without delivering it.
func (c *Client) SendDryRun(ctx context.Context, msg *messaging.Message) (string, error) {
	return c.sender.Send(ctx, msg, true)
}

// SendEach sends up to 500 messages with one outcome per message.
func (c *Client) SendEach(ctx context.Context, msgs []*messaging.Message) (*messaging.BatchResponse, error) {
	return c.sender.SendEach(ctx, msgs, false)
}

// SendEachDryRun is SendEach in validate-only mode.
func (c *Client) SendEachDryRun(ctx context.Context, msgs []*messaging.Message) (*messaging.BatchResponse, error) {
	return c.sender.SendEach(ctx, msgs, true)
}

// SendEachForMulticast sends mm to each of its tokens.
func (c *Client) SendEachForMulticast(ctx context.Context, mm *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	return c.sender.SendEachForMulticast(ctx, mm, false)
}

// SendEachForMulticastDryRun is SendEachForMulticast in validate-only mode.
func (c *Client) SendEachForMulticastDryRun(ctx context.Context, mm *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	return c.sender.SendEachForMulticast(ctx, mm, true)
}

// SubscribeToTopic subscribes up to 1000 tokens to topic.
func (c *Client) SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	return c.topics.SubscribeToTopic(ctx, tokens, topic)
}

// UnsubscribeFromTopic unsubscribes up to 1000 tokens from topic.
func (c *Client) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	return c.topics.UnsubscribeFromTopic(ctx, tokens, topic)
}

// Sender exposes the send operations with an explicit dryRun flag.
func (c *Client) Sender() dispatch.Sender { return c.sender }

// Topics exposes the topic membership operations.
func (c *Client) Topics() dispatch.TopicManager { return c.topics }

// tokenSource picks the credential in order of precedence: an explicit
// source, key JSON, a key file, then Application Default Credentials.
func (o *options) tokenSource(ctx context.Context) (TokenSource, error) {
	switch {
	case o.tokens != nil:
		return o.tokens, nil
	case o.credsJSON != nil:
		return credential.FromJSON(ctx, o.credsJSON)
	case o.credsFile != "":
		return credential.FromFile(ctx, o.credsFile)
	}
	return credential.Default(ctx)
}
