package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/tinywideclouds/go-fcm-relay/internal/jsonobj"
)

// shape describes the structural rules for one JSON object. Typed decoding
// cannot tell a missing object from a scalar in its place, so untrusted input
// is checked against these rules first.
type shape struct {
	stringMap bool
	children  map[string]shape
}

var (
	object    = shape{}
	stringMap = shape{stringMap: true}
)

var configShapes = map[string]shape{
	"data":         stringMap,
	"notification": object,
	"fcmOptions":   object,
	"android": {children: map[string]shape{
		"data":         stringMap,
		"notification": object,
		"fcmOptions":   object,
	}},
	"apns": {children: map[string]shape{
		"headers":    stringMap,
		"payload":    {children: map[string]shape{"aps": object}},
		"fcmOptions": object,
	}},
	"webpush": {children: map[string]shape{
		"headers":      stringMap,
		"data":         stringMap,
		"notification": object,
		"fcmOptions":   object,
	}},
}

// DecodeMessage decodes the public JSON form of a Message. The target rule
// is checked before anything else; a target member holding a non-string
// value counts as absent. Structural problems are then reported as
// invalid-payload errors with the offending field path, e.g.
// "android.notification must be a non-null object".
func DecodeMessage(data []byte) (*Message, error) {
	if jsonobj.Kind(data) == 'o' {
		if err := checkTarget(data); err != nil {
			return nil, err
		}
	}
	if err := checkShape("message", data, shape{children: configShapes}); err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, WrapError(CodeInvalidPayload, fmt.Sprintf("message has an invalid field: %v", err), err)
	}
	return &msg, nil
}

// DecodeMulticastMessage decodes the public JSON form of a MulticastMessage.
func DecodeMulticastMessage(data []byte) (*MulticastMessage, error) {
	if err := checkShape("multicast message", data, shape{children: configShapes}); err != nil {
		return nil, err
	}
	members, _ := jsonobj.Members(data)
	for _, m := range members {
		if m.Key == "tokens" && jsonobj.Kind(m.Value) != 'a' {
			return nil, NewError(CodeInvalidArgument, "tokens must be a non-empty array")
		}
	}
	var mm MulticastMessage
	if err := json.Unmarshal(data, &mm); err != nil {
		return nil, WrapError(CodeInvalidPayload, fmt.Sprintf("multicast message has an invalid field: %v", err), err)
	}
	return &mm, nil
}

var targetKeys = map[string]bool{"token": true, "topic": true, "condition": true}

func checkTarget(data []byte) error {
	members, err := jsonobj.Members(data)
	if err != nil {
		return WrapError(CodeInvalidPayload, fmt.Sprintf("message is not valid JSON: %v", err), err)
	}
	targets := 0
	for _, m := range members {
		if !targetKeys[m.Key] || jsonobj.Kind(m.Value) != 's' {
			continue
		}
		var v string
		if json.Unmarshal(m.Value, &v) == nil && v != "" {
			targets++
		}
	}
	if targets != 1 {
		return NewError(CodeInvalidPayload, "Exactly one of topic, token or condition is required")
	}
	return nil
}

func checkShape(label string, raw json.RawMessage, s shape) error {
	if jsonobj.Kind(raw) != 'o' {
		return NewError(CodeInvalidPayload, label+" must be a non-null object")
	}
	members, err := jsonobj.Members(raw)
	if err != nil {
		return WrapError(CodeInvalidPayload, fmt.Sprintf("%s is not valid JSON: %v", label, err), err)
	}
	if s.stringMap {
		for _, m := range members {
			if jsonobj.Kind(m.Value) != 's' {
				return NewError(CodeInvalidPayload, label+" must only contain string values")
			}
		}
		return nil
	}
	for _, m := range members {
		child, ok := s.children[m.Key]
		if !ok {
			continue
		}
		childLabel := m.Key
		if label != "message" && label != "multicast message" {
			childLabel = label + "." + m.Key
		}
		if err := checkShape(childLabel, m.Value, child); err != nil {
			return err
		}
	}
	return nil
}
