package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fcm-relay/internal/pipeline"
	"github.com/tinywideclouds/go-fcm-relay/pkg/dispatch"
)

func TestRequestTransformer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	testCases := []struct {
		name                  string
		inputMessage          *messagepipeline.Message
		expectError           bool
		expectedKind          dispatch.Kind
		expectedErrorContains string
	}{
		{
			name: "Happy Path - Single message",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-1", Payload: []byte(`{"message":{"token":"t1"}}`)},
			},
			expectedKind: dispatch.KindSingle,
		},
		{
			name: "Happy Path - Multicast",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-2", Payload: []byte(`{"multicast":{"tokens":["a","b"]},"dryRun":true}`)},
			},
			expectedKind: dispatch.KindMulticast,
		},
		{
			name: "Failure - Malformed JSON",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-3", Payload: []byte("not-json")},
			},
			expectError:           true,
			expectedErrorContains: "failed to decode send request from message msg-3",
		},
		{
			name: "Failure - Wrong shape",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-4", Payload: []byte(`{"message":{"token":"t","apns":[]}}`)},
			},
			expectError:           true,
			expectedErrorContains: "apns must be a non-null object",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, skip, err := pipeline.RequestTransformer(ctx, tc.inputMessage)

			if tc.expectError {
				require.Error(t, err)
				assert.True(t, skip)
				assert.Contains(t, err.Error(), tc.expectedErrorContains)
				return
			}
			require.NoError(t, err)
			assert.False(t, skip)
			assert.Equal(t, tc.expectedKind, req.Kind())
		})
	}
}
