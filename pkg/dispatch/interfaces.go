// Package dispatch defines what the relay needs from an FCM client and the
// request envelope it accepts over HTTP and Pub/Sub.
package dispatch

import (
	"context"

	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

// Sender sends messages. With dryRun the backend validates without
// delivering.
type Sender interface {
	Send(ctx context.Context, msg *messaging.Message, dryRun bool) (string, error)
	SendEach(ctx context.Context, msgs []*messaging.Message, dryRun bool) (*messaging.BatchResponse, error)
	SendEachForMulticast(ctx context.Context, mm *messaging.MulticastMessage, dryRun bool) (*messaging.BatchResponse, error)
}

// TopicManager manages topic subscriptions.
type TopicManager interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}
