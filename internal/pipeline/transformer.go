// Package pipeline contains the stages that relay Pub/Sub send requests to FCM.
package pipeline

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-fcm-relay/pkg/dispatch"
)

// RequestTransformer decodes a raw message payload into a dispatch.Request.
//
// Malformed envelopes are returned with skip=true so the StreamingService
// nacks them and the subscription's dead-letter policy takes over.
func RequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*dispatch.Request, bool, error) {
	req, err := dispatch.DecodeRequest(msg.Payload)
	if err != nil {
		return nil, true, fmt.Errorf("failed to decode send request from message %s: %w", msg.ID, err)
	}
	return req, false, nil
}
