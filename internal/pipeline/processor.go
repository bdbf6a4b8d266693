package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-fcm-relay/internal/metrics"
	"github.com/tinywideclouds/go-fcm-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

// ErrRetryable is wrapped by every error the processor hands back to the
// pipeline. Returning it nacks the message so Pub/Sub redelivers it.
var ErrRetryable = errors.New("retryable delivery failure")

// NewProcessor forwards decoded requests to FCM.
//
// A request is redelivered only when nothing in it was delivered and every
// failure is retryable. Partial batch successes are acked so tokens that
// already received the message are not sent it twice.
func NewProcessor(
	sender dispatch.Sender,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[dispatch.Request] {

	return func(ctx context.Context, original messagepipeline.Message, req *dispatch.Request) error {
		procLogger := logger.With(
			"pubsub_msg_id", original.ID,
			"kind", string(req.Kind()),
			"dry_run", req.DryRun,
		)

		if req.Kind() == dispatch.KindSingle {
			id, err := sender.Send(ctx, req.Message, req.DryRun)
			recorder.ObserveSend(err)
			if err != nil {
				if messaging.IsRetryable(err) {
					procLogger.Warn("Send failed, requesting redelivery", "err", err)
					return fmt.Errorf("%w: %w", ErrRetryable, err)
				}
				procLogger.Warn("Send failed permanently, dropping message", "err", err)
				return nil
			}
			procLogger.Info("Message relayed", "message_id", id)
			return nil
		}

		var (
			br  *messaging.BatchResponse
			err error
		)
		if req.Kind() == dispatch.KindMulticast {
			br, err = sender.SendEachForMulticast(ctx, req.Multicast, req.DryRun)
		} else {
			br, err = req.SendBatch(ctx, sender)
		}

		var serr *messaging.SessionError
		if errors.As(err, &serr) {
			procLogger.Error("Session failed mid-batch, waiting for partial results", "err", err)
			partial, waitErr := serr.PendingBatchResponse().Wait(ctx)
			recorder.ObserveBatch(partial, err)
			if waitErr != nil || partial.SuccessCount == 0 {
				return fmt.Errorf("%w: %w", ErrRetryable, err)
			}
			procLogger.Warn("Batch partially relayed before session failure",
				"success_count", partial.SuccessCount,
				"failure_count", partial.FailureCount)
			return nil
		}
		if err != nil {
			recorder.ObserveSend(err)
			procLogger.Warn("Batch rejected, dropping message", "err", err)
			return nil
		}

		recorder.ObserveBatch(br, nil)
		if br.SuccessCount == 0 && allRetryable(br) {
			procLogger.Warn("Batch failed with retryable errors, requesting redelivery",
				"failure_count", br.FailureCount)
			return fmt.Errorf("%w: all %d messages failed", ErrRetryable, br.FailureCount)
		}
		if br.FailureCount > 0 {
			procLogger.Warn("Batch relayed with failures",
				"success_count", br.SuccessCount,
				"failure_count", br.FailureCount)
			return nil
		}
		procLogger.Info("Batch relayed", "success_count", br.SuccessCount)
		return nil
	}
}

func allRetryable(br *messaging.BatchResponse) bool {
	for _, r := range br.Responses {
		if !r.Success && !messaging.IsRetryable(r.Error) {
			return false
		}
	}
	return true
}
