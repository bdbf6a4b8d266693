// Package iid manages topic subscriptions through the Instance ID batch API.
package iid

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
	"github.com/tinywideclouds/go-fcm-relay/pkg/credential"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

const (
	batchAddPath    = "/iid/v1:batchAdd"
	batchRemovePath = "/iid/v1:batchRemove"
)

// Client subscribes and unsubscribes registration tokens.
type Client struct {
	endpoint string
	headers  http.Header
	doer     transport.Doer
	tokens   credential.Source
	logger   *slog.Logger
}

// NewClient builds a Client for the IID service at endpoint.
func NewClient(endpoint, version string, doer transport.Doer, tokens credential.Source, logger *slog.Logger) (*Client, error) {
	if doer == nil || tokens == nil {
		return nil, errors.New("transport and credential source are required")
	}
	headers := transport.ClientHeaders(version)
	headers.Set("access_token_auth", "true")
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		headers:  headers,
		doer:     doer,
		tokens:   tokens,
		logger:   logger.With("component", "TopicClient"),
	}, nil
}

// SubscribeToTopic adds the tokens to topic.
func (c *Client) SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	return c.manage(ctx, "SubscribeToTopic", batchAddPath, tokens, topic)
}

// UnsubscribeFromTopic removes the tokens from topic.
func (c *Client) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	return c.manage(ctx, "UnsubscribeFromTopic", batchRemovePath, tokens, topic)
}

type batchRequest struct {
	To                 string   `json:"to"`
	RegistrationTokens []string `json:"registration_tokens"`
}

type batchResponse struct {
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

func checkTokens(method string, tokens []string) error {
	if len(tokens) == 0 {
		return messaging.NewError(messaging.CodeInvalidArgument, fmt.Sprintf(
			"Registration token(s) provided to %s() must be a non-empty string or a non-empty array.", method))
	}
	if len(tokens) > messaging.MaxTopicTokens {
		return messaging.NewError(messaging.CodeInvalidArgument, fmt.Sprintf(
			"Too many registration tokens provided in a single request to %s(). Batch your requests to contain no more than 1,000 registration tokens per request.", method))
	}
	for i, tok := range tokens {
		if tok == "" {
			return messaging.NewError(messaging.CodeInvalidArgument, fmt.Sprintf(
				"Registration token provided to %s() at index %d must be a non-empty string.", method, i))
		}
	}
	return nil
}

func (c *Client) manage(ctx context.Context, method, path string, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	if err := checkTokens(method, tokens); err != nil {
		return nil, err
	}
	to, ok := validate.TopicName(topic)
	if !ok {
		return nil, messaging.NewError(messaging.CodeInvalidArgument, fmt.Sprintf(
			`Topic provided to %s() must be a string which matches the format "/topics/[a-zA-Z0-9-_.~%%]+".`, method))
	}

	body, err := json.Marshal(batchRequest{To: to, RegistrationTokens: tokens})
	if err != nil {
		return nil, fmt.Errorf("failed to encode topic request: %w", err)
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errmap.FromTransport(ctx.Err())
		}
		return nil, errmap.FromCredential(err)
	}
	req := &transport.Request{
		Method: http.MethodPost,
		URL:    c.endpoint + path,
		Header: c.headers.Clone(),
		Body:   body,
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, errmap.FromTransport(err)
	}
	if resp.Status != http.StatusOK {
		mErr := errmap.FromResponse(resp.Status, resp.Body)
		c.logger.Warn("Topic request rejected", "method", method, "status", resp.Status, "code", mErr.Code)
		return nil, mErr
	}

	var br batchResponse
	if err := json.Unmarshal(resp.Body, &br); err != nil {
		return nil, messaging.WrapError(messaging.CodeUnknownError,
			fmt.Sprintf("failed to parse topic response: %v", err), err)
	}

	// One outcome per token. Results beyond len(tokens) are ignored and
	// tokens the backend left without a result count as failed.
	out := &messaging.TopicManagementResponse{Errors: []*messaging.ErrorInfo{}}
	for i := range tokens {
		var reason *messaging.Error
		switch {
		case i >= len(br.Results):
			reason = messaging.NewError(messaging.CodeUnknownError, "no result returned for registration token")
		case br.Results[i].Error != "":
			reason = errmap.FromTopicManagement(br.Results[i].Error)
		default:
			out.SuccessCount++
			continue
		}
		out.FailureCount++
		out.Errors = append(out.Errors, &messaging.ErrorInfo{Index: i, Reason: reason})
	}
	if len(br.Results) != len(tokens) {
		c.logger.Warn("Topic response result count mismatch", "method", method,
			"tokens", len(tokens), "results", len(br.Results))
	}
	c.logger.Debug("Topic request settled", "method", method, "topic", to,
		"success_count", out.SuccessCount, "failure_count", out.FailureCount)
	return out, nil
}
