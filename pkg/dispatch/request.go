package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tinywideclouds/go-fcm-relay/internal/jsonobj"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

// Kind says which field of a Request is set.
type Kind string

const (
	KindSingle    Kind = "single"
	KindBatch     Kind = "batch"
	KindMulticast Kind = "multicast"
)

// Request is the relay envelope. Exactly one of Message, Messages or
// Multicast is set.
//
// DecodeErrors is index-aligned with Messages. An item that failed to decode
// has a nil Message and its error in the matching slot.
type Request struct {
	Message      *messaging.Message
	Messages     []*messaging.Message
	DecodeErrors []*messaging.Error
	Multicast    *messaging.MulticastMessage
	DryRun       bool
}

// Kind reports which form the request takes.
func (r *Request) Kind() Kind {
	switch {
	case r.Multicast != nil:
		return KindMulticast
	case r.Messages != nil:
		return KindBatch
	default:
		return KindSingle
	}
}

// Size is the number of messages the request fans out to.
func (r *Request) Size() int {
	switch r.Kind() {
	case KindMulticast:
		return len(r.Multicast.Tokens)
	case KindBatch:
		return len(r.Messages)
	default:
		return 1
	}
}

// DecodeRequest parses {"message"|"messages"|"multicast": ..., "dryRun"?}.
// Every message goes through messaging.DecodeMessage, so structural errors
// carry the same invalid-payload messages as the client.
func DecodeRequest(data []byte) (*Request, error) {
	members, err := jsonobj.Members(data)
	if err != nil {
		return nil, messaging.WrapError(messaging.CodeInvalidArgument,
			fmt.Sprintf("request must be a JSON object: %v", err), err)
	}

	req := &Request{}
	targets := 0
	for _, m := range members {
		switch m.Key {
		case "dryRun":
			if jsonobj.Kind(m.Value) != 'b' {
				return nil, messaging.NewError(messaging.CodeInvalidArgument, "dryRun must be a boolean")
			}
			_ = json.Unmarshal(m.Value, &req.DryRun)
		case "message":
			targets++
			if req.Message, err = messaging.DecodeMessage(m.Value); err != nil {
				return nil, err
			}
		case "messages":
			targets++
			if req.Messages, req.DecodeErrors, err = decodeMessages(m.Value); err != nil {
				return nil, err
			}
		case "multicast":
			targets++
			if req.Multicast, err = messaging.DecodeMulticastMessage(m.Value); err != nil {
				return nil, err
			}
		}
	}
	if targets != 1 {
		return nil, messaging.NewError(messaging.CodeInvalidArgument,
			"request must contain exactly one of message, messages or multicast")
	}
	return req, nil
}

// decodeMessages decodes every item of a messages array. Per-item failures
// are collected rather than returned; only a malformed array is an error.
func decodeMessages(raw json.RawMessage) ([]*messaging.Message, []*messaging.Error, error) {
	if jsonobj.Kind(raw) != 'a' {
		return nil, nil, messaging.NewError(messaging.CodeInvalidArgument, "messages must be a non-empty array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, messaging.WrapError(messaging.CodeInvalidArgument, err.Error(), err)
	}
	msgs := make([]*messaging.Message, len(items))
	errs := make([]*messaging.Error, len(items))
	for i, item := range items {
		msg, err := messaging.DecodeMessage(item)
		if err != nil {
			var me *messaging.Error
			if !errors.As(err, &me) {
				me = messaging.WrapError(messaging.CodeInvalidPayload, err.Error(), err)
			}
			errs[i] = me
			continue
		}
		msgs[i] = msg
	}
	return msgs, errs, nil
}
