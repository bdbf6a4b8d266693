// Package errmap turns backend responses and transport failures into
// messaging errors with stable codes.
package errmap

import (
	"encoding/json"
	"fmt"

	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

const fcmErrorType = "type.googleapis.com/google.firebase.fcm.v1.FcmError"

// fcmErrorCodes maps FcmError detail codes.
var fcmErrorCodes = map[string]messaging.Code{
	"APNS_AUTH_ERROR":        messaging.CodeThirdPartyAuthError,
	"INTERNAL":               messaging.CodeInternalError,
	"INVALID_ARGUMENT":       messaging.CodeInvalidArgument,
	"QUOTA_EXCEEDED":         messaging.CodeMessageRateExceeded,
	"SENDER_ID_MISMATCH":     messaging.CodeMismatchedCredential,
	"THIRD_PARTY_AUTH_ERROR": messaging.CodeThirdPartyAuthError,
	"UNAVAILABLE":            messaging.CodeServerUnavailable,
	"UNREGISTERED":           messaging.CodeRegistrationTokenNotRegistered,
	"UNSPECIFIED_ERROR":      messaging.CodeUnknownError,
}

// statusCodes maps canonical status names and legacy server error names.
var statusCodes = map[string]messaging.Code{
	"INTERNAL":           messaging.CodeInternalError,
	"INVALID_ARGUMENT":   messaging.CodeInvalidArgument,
	"NOT_FOUND":          messaging.CodeRegistrationTokenNotRegistered,
	"PERMISSION_DENIED":  messaging.CodeMismatchedCredential,
	"RESOURCE_EXHAUSTED": messaging.CodeMessageRateExceeded,
	"UNAUTHENTICATED":    messaging.CodeThirdPartyAuthError,
	"UNAVAILABLE":        messaging.CodeServerUnavailable,

	"DeviceMessageRateExceeded": messaging.CodeDeviceMessageRateExceeded,
	"InternalServerError":       messaging.CodeInternalError,
	"InvalidApnsCredential":     messaging.CodeThirdPartyAuthError,
	"InvalidDataKey":            messaging.CodeInvalidDataPayloadKey,
	"InvalidPackageName":        messaging.CodeInvalidPackageName,
	"InvalidParameters":         messaging.CodeInvalidArgument,
	"InvalidRegistration":       messaging.CodeInvalidRegistrationToken,
	"InvalidTtl":                messaging.CodeInvalidOptions,
	"MessageTooBig":             messaging.CodePayloadSizeLimitExceeded,
	"MismatchSenderId":          messaging.CodeMismatchedCredential,
	"NotRegistered":             messaging.CodeRegistrationTokenNotRegistered,
	"TopicsMessageRateExceeded": messaging.CodeTopicsMessageRateExceeded,
	"Unavailable":               messaging.CodeServerUnavailable,
}

// topicCodes maps the per-token error strings of the topic management API.
var topicCodes = map[string]messaging.Code{
	"DEADLINE_EXCEEDED":  messaging.CodeServerUnavailable,
	"INTERNAL":           messaging.CodeInternalError,
	"INVALID_ARGUMENT":   messaging.CodeInvalidRegistrationToken,
	"NOT_FOUND":          messaging.CodeRegistrationTokenNotRegistered,
	"PERMISSION_DENIED":  messaging.CodeAuthenticationError,
	"RESOURCE_EXHAUSTED": messaging.CodeTooManyTopics,
	"TOO_MANY_TOPICS":    messaging.CodeTooManyTopics,
	"UNKNOWN":            messaging.CodeUnknownError,
}

func httpCode(status int) messaging.Code {
	switch status {
	case 400:
		return messaging.CodeInvalidArgument
	case 401, 403:
		return messaging.CodeAuthenticationError
	case 500:
		return messaging.CodeInternalError
	case 503:
		return messaging.CodeServerUnavailable
	default:
		return messaging.CodeUnknownError
	}
}

type errorBody struct {
	Error json.RawMessage `json:"error"`
}

type serverError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details []struct {
		Type      string `json:"@type"`
		ErrorCode string `json:"errorCode"`
	} `json:"details"`
}

// FromResponse maps a non-success response. A detailed FcmError code wins
// over the status name, which wins over the HTTP status.
func FromResponse(status int, body []byte) *messaging.Error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == nil {
		return fromHTTP(status, body)
	}

	var se serverError
	var legacy string
	if err := json.Unmarshal(eb.Error, &se); err != nil {
		if json.Unmarshal(eb.Error, &legacy) != nil {
			return fromHTTP(status, body)
		}
		se.Status = legacy
	}

	for _, d := range se.Details {
		if d.Type != fcmErrorType {
			continue
		}
		if code, ok := fcmErrorCodes[d.ErrorCode]; ok {
			return messaging.NewError(code, se.Message)
		}
	}
	if code, ok := statusCodes[se.Status]; ok {
		return messaging.NewError(code, se.Message)
	}
	if se.Message != "" {
		return messaging.NewError(httpCode(status), se.Message)
	}
	return fromHTTP(status, body)
}

func fromHTTP(status int, body []byte) *messaging.Error {
	code := httpCode(status)
	msg := fmt.Sprintf("%s Raw server response: %q. Status code: %d.", messaging.DefaultMessage(code), string(body), status)
	return messaging.NewError(code, msg)
}

// FromTransport maps a failure to reach the backend at all.
func FromTransport(err error) *messaging.Error {
	return messaging.WrapError(messaging.CodeNetworkError,
		fmt.Sprintf("error while making request: %v", err), err)
}

// FromCredential maps a failure to obtain an access token.
func FromCredential(err error) *messaging.Error {
	return messaging.WrapError(messaging.CodeInvalidCredential,
		fmt.Sprintf("failed to fetch a valid access token: %v", err), err)
}

// FromTopicManagement maps a per-token topic management error string.
func FromTopicManagement(reason string) *messaging.Error {
	code, ok := topicCodes[reason]
	if !ok {
		code = messaging.CodeUnknownError
	}
	return messaging.NewError(code, "")
}
