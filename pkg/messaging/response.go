package messaging

import (
	"context"
	"fmt"
)

// SendResponse is the outcome of one message in a batch.
type SendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     *Error `json:"error,omitempty"`
}

// BatchResponse aggregates a batch. Responses has one entry per input
// message in input order.
type BatchResponse struct {
	SuccessCount int             `json:"successCount"`
	FailureCount int             `json:"failureCount"`
	Responses    []*SendResponse `json:"responses"`
}

// NewBatchResponse counts the outcomes in responses.
func NewBatchResponse(responses []*SendResponse) *BatchResponse {
	br := &BatchResponse{Responses: responses}
	for _, r := range responses {
		if r.Success {
			br.SuccessCount++
		}
	}
	br.FailureCount = len(responses) - br.SuccessCount
	return br
}

// ErrorInfo is a failure for one token of a topic management call. Index is
// the position of the token in the request.
type ErrorInfo struct {
	Index  int    `json:"index"`
	Reason *Error `json:"error"`
}

// TopicManagementResponse aggregates a topic subscribe or unsubscribe call.
type TopicManagementResponse struct {
	SuccessCount int          `json:"successCount"`
	FailureCount int          `json:"failureCount"`
	Errors       []*ErrorInfo `json:"errors"`
}

// PendingBatchResponse resolves to the partial BatchResponse of a batch
// whose session failed, once every in-flight request has settled.
type PendingBatchResponse struct {
	done chan struct{}
	resp *BatchResponse
}

// NewPendingBatchResponse runs resolve in its own goroutine and exposes its
// result through Wait.
func NewPendingBatchResponse(resolve func() *BatchResponse) *PendingBatchResponse {
	p := &PendingBatchResponse{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.resp = resolve()
	}()
	return p
}

// Done is closed when the response is available.
func (p *PendingBatchResponse) Done() <-chan struct{} { return p.done }

// Wait blocks until the response is available or ctx is done.
func (p *PendingBatchResponse) Wait(ctx context.Context) (*BatchResponse, error) {
	select {
	case <-p.done:
		return p.resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SessionError is returned by a multiplexed batch when the shared HTTP/2
// session fails. Messages that had already settled keep their outcome; the
// rest are reported as network errors in the pending response.
type SessionError struct {
	Reason  *Error
	pending *PendingBatchResponse
}

// NewSessionError wraps the session failure cause.
func NewSessionError(cause error, pending *PendingBatchResponse) *SessionError {
	return &SessionError{
		Reason:  WrapError(CodeNetworkError, fmt.Sprintf("session error while making requests: %v", cause), cause),
		pending: pending,
	}
}

func (e *SessionError) Error() string { return e.Reason.Error() }

func (e *SessionError) Unwrap() error { return e.Reason }

// PendingBatchResponse is the handle to the partial aggregate.
func (e *SessionError) PendingBatchResponse() *PendingBatchResponse { return e.pending }
