package fcm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-fcm-relay/internal/errmap"
	"github.com/tinywideclouds/go-fcm-relay/internal/transport"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
	"golang.org/x/sync/errgroup"
)

var errSessionClosed = errors.New("session closed before the request was sent")

// SendEach sends every message independently and reports one outcome per
// message in input order. A message that fails validation does not stop the
// others.
//
// In multiplexed mode the batch shares one HTTP/2 session. If that session
// fails, SendEach returns a *messaging.SessionError straight away; its
// PendingBatchResponse resolves once the remaining requests have settled,
// with every unsettled message reported as a network error.
func (c *Client) SendEach(ctx context.Context, msgs []*messaging.Message, dryRun bool) (*messaging.BatchResponse, error) {
	if len(msgs) == 0 {
		return nil, messaging.NewError(messaging.CodeInvalidArgument, "messages must be a non-empty array")
	}
	if len(msgs) > messaging.MaxBatchSize {
		return nil, messaging.NewError(messaging.CodeInvalidArgument,
			fmt.Sprintf("messages list must not contain more than %d items", messaging.MaxBatchSize))
	}

	batchID := uuid.NewString()
	logger := c.logger.With("batch_id", batchID)
	start := time.Now()

	// One slot per input; each goroutine writes only its own index.
	responses := make([]*messaging.SendResponse, len(msgs))
	bodies := make([][]byte, len(msgs))
	for i, msg := range msgs {
		body, err := c.prepare(msg, dryRun)
		if err != nil {
			responses[i] = failed(err)
			continue
		}
		bodies[i] = body
	}

	doer := c.doer
	var session transport.Session
	if c.mode == transport.ModeMultiplexed {
		s, err := c.dialer.Dial(ctx)
		if err != nil {
			logger.Error("Failed to open HTTP/2 session", "err", err)
			fillPending(responses, errmap.FromTransport(err))
			pending := messaging.NewPendingBatchResponse(func() *messaging.BatchResponse {
				return messaging.NewBatchResponse(responses)
			})
			return nil, messaging.NewSessionError(err, pending)
		}
		session = s
		doer = s
	}

	faults := make(chan error, 1)
	pending := messaging.NewPendingBatchResponse(func() *messaging.BatchResponse {
		if session != nil {
			defer session.Close()
		}
		g, gctx := errgroup.WithContext(ctx)
		if c.maxConcurrency > 0 {
			g.SetLimit(c.maxConcurrency)
		}
		for i := range msgs {
			if responses[i] != nil {
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					responses[i] = failed(errmap.FromTransport(errSessionClosed))
					return nil
				}
				id, mErr, fault := c.postWithFault(gctx, doer, bodies[i])
				if mErr != nil {
					responses[i] = failed(mErr)
				} else {
					responses[i] = &messaging.SendResponse{Success: true, MessageID: id}
				}
				if fault != nil {
					select {
					case faults <- fault:
					default:
					}
					return fault
				}
				return nil
			})
		}
		_ = g.Wait()
		fillPending(responses, errmap.FromTransport(errSessionClosed))

		br := messaging.NewBatchResponse(responses)
		logger.Info("Batch settled",
			"success_count", br.SuccessCount,
			"failure_count", br.FailureCount,
			"duration", time.Since(start))
		for i, r := range responses {
			if !r.Success {
				logger.Debug("Message failed", "index", i, "code", r.Error.Code, "err", r.Error.Message)
			}
		}
		return br
	})

	select {
	case fault := <-faults:
		logger.Error("HTTP/2 session failed mid-batch", "err", fault)
		return nil, messaging.NewSessionError(fault, pending)
	case <-pending.Done():
	}

	select {
	case fault := <-faults:
		logger.Error("HTTP/2 session failed mid-batch", "err", fault)
		return nil, messaging.NewSessionError(fault, pending)
	default:
	}
	return pending.Wait(context.Background())
}

// SendEachForMulticast sends the template to every token.
func (c *Client) SendEachForMulticast(ctx context.Context, mm *messaging.MulticastMessage, dryRun bool) (*messaging.BatchResponse, error) {
	if mm == nil || len(mm.Tokens) == 0 {
		return nil, messaging.NewError(messaging.CodeInvalidArgument, "tokens must be a non-empty array")
	}
	if len(mm.Tokens) > messaging.MaxBatchSize {
		return nil, messaging.NewError(messaging.CodeInvalidArgument,
			fmt.Sprintf("tokens list must not contain more than %d items", messaging.MaxBatchSize))
	}
	return c.SendEach(ctx, mm.Messages(), dryRun)
}

func failed(err error) *messaging.SendResponse {
	var mErr *messaging.Error
	if !errors.As(err, &mErr) {
		mErr = messaging.WrapError(messaging.CodeUnknownError, err.Error(), err)
	}
	return &messaging.SendResponse{Error: mErr}
}

func fillPending(responses []*messaging.SendResponse, reason *messaging.Error) {
	for i, r := range responses {
		if r == nil {
			responses[i] = &messaging.SendResponse{Error: reason}
		}
	}
}
