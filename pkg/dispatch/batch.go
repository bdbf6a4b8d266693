package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

// MaxBatchSize is the most messages a batch request may carry.
const MaxBatchSize = 500

// SendBatch sends the messages of a batch request. Items that failed to
// decode are not sent; they take their place in the BatchResponse as
// failures carrying the decode error, so one bad item never sinks its
// neighbours.
func (r *Request) SendBatch(ctx context.Context, sender Sender) (*messaging.BatchResponse, error) {
	if !r.hasDecodeErrors() {
		return sender.SendEach(ctx, r.Messages, r.DryRun)
	}
	if len(r.Messages) > MaxBatchSize {
		return nil, messaging.NewError(messaging.CodeInvalidArgument,
			fmt.Sprintf("messages list must not contain more than %d items", MaxBatchSize))
	}

	valid := make([]*messaging.Message, 0, len(r.Messages))
	for i, msg := range r.Messages {
		if r.DecodeErrors[i] == nil {
			valid = append(valid, msg)
		}
	}
	if len(valid) == 0 {
		return r.splice(nil), nil
	}

	br, err := sender.SendEach(ctx, valid, r.DryRun)
	var serr *messaging.SessionError
	if errors.As(err, &serr) {
		inner := serr.PendingBatchResponse()
		pending := messaging.NewPendingBatchResponse(func() *messaging.BatchResponse {
			partial, _ := inner.Wait(context.Background())
			return r.splice(partial)
		})
		return nil, messaging.NewSessionError(errors.Unwrap(serr.Reason), pending)
	}
	if err != nil {
		return nil, err
	}
	return r.splice(br), nil
}

func (r *Request) hasDecodeErrors() bool {
	for _, e := range r.DecodeErrors {
		if e != nil {
			return true
		}
	}
	return false
}

// splice merges the responses for the sent subset back into input order.
func (r *Request) splice(sent *messaging.BatchResponse) *messaging.BatchResponse {
	responses := make([]*messaging.SendResponse, len(r.Messages))
	next := 0
	for i := range r.Messages {
		if e := r.DecodeErrors[i]; e != nil {
			responses[i] = &messaging.SendResponse{Error: e}
			continue
		}
		if sent != nil && next < len(sent.Responses) {
			responses[i] = sent.Responses[next]
		} else {
			responses[i] = &messaging.SendResponse{
				Error: messaging.NewError(messaging.CodeUnknownError, "no response for message"),
			}
		}
		next++
	}
	return messaging.NewBatchResponse(responses)
}
