package messaging

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier. Codes never change
// with backend status codes; branch on them instead of HTTP statuses.
type Code string

const (
	CodeInvalidArgument                Code = "messaging/invalid-argument"
	CodeInvalidRecipient               Code = "messaging/invalid-recipient"
	CodeInvalidPayload                 Code = "messaging/invalid-payload"
	CodeInvalidDataPayloadKey          Code = "messaging/invalid-data-payload-key"
	CodePayloadSizeLimitExceeded       Code = "messaging/payload-size-limit-exceeded"
	CodeInvalidOptions                 Code = "messaging/invalid-options"
	CodeInvalidRegistrationToken       Code = "messaging/invalid-registration-token"
	CodeRegistrationTokenNotRegistered Code = "messaging/registration-token-not-registered"
	CodeMismatchedCredential           Code = "messaging/mismatched-credential"
	CodeInvalidPackageName             Code = "messaging/invalid-package-name"
	CodeDeviceMessageRateExceeded      Code = "messaging/device-message-rate-exceeded"
	CodeTopicsMessageRateExceeded      Code = "messaging/topics-message-rate-exceeded"
	CodeMessageRateExceeded            Code = "messaging/message-rate-exceeded"
	CodeThirdPartyAuthError            Code = "messaging/third-party-auth-error"
	CodeTooManyTopics                  Code = "messaging/too-many-topics"
	CodeAuthenticationError            Code = "messaging/authentication-error"
	CodeServerUnavailable              Code = "messaging/server-unavailable"
	CodeInternalError                  Code = "messaging/internal-error"
	CodeUnknownError                   Code = "messaging/unknown-error"

	CodeNetworkError      Code = "app/network-error"
	CodeInvalidCredential Code = "app/invalid-credential"
)

var defaultMessages = map[Code]string{
	CodeInvalidArgument:                "Invalid argument provided.",
	CodeInvalidRecipient:               "Invalid message recipient provided.",
	CodeInvalidPayload:                 "Invalid message payload provided.",
	CodeInvalidDataPayloadKey:          "The data message payload contains an invalid key.",
	CodePayloadSizeLimitExceeded:       "The provided message payload exceeds the FCM size limits.",
	CodeInvalidOptions:                 "Invalid message options provided.",
	CodeInvalidRegistrationToken:       "Invalid registration token provided. Make sure it matches the registration token the client app receives from registering with FCM.",
	CodeRegistrationTokenNotRegistered: "The provided registration token is not registered. Remove it and stop sending messages to it.",
	CodeMismatchedCredential:           "The credential used to authenticate does not have permission to send messages to the target.",
	CodeInvalidPackageName:             "The message was addressed to a registration token whose package name does not match the restricted package name.",
	CodeDeviceMessageRateExceeded:      "The rate of messages to a particular device is too high.",
	CodeTopicsMessageRateExceeded:      "The rate of messages to subscribers of a particular topic is too high.",
	CodeMessageRateExceeded:            "Sending limit exceeded for the message target.",
	CodeThirdPartyAuthError:            "A message targeted to an Apple or Web Push device could not be sent because the third-party credentials were rejected.",
	CodeTooManyTopics:                  "The maximum number of topics the provided registration token can be subscribed to has been exceeded.",
	CodeAuthenticationError:            "An error occurred when trying to authenticate to the FCM servers.",
	CodeServerUnavailable:              "The FCM server could not process the request in time.",
	CodeInternalError:                  "An internal error has occurred. Please retry the request.",
	CodeUnknownError:                   "An unknown server error was returned.",
	CodeNetworkError:                   "A network error occurred while sending the request.",
	CodeInvalidCredential:              "The credential could not produce a valid access token.",
}

// DefaultMessage returns the canned human-readable text for a code.
func DefaultMessage(code Code) string {
	if msg, ok := defaultMessages[code]; ok {
		return msg
	}
	return defaultMessages[CodeUnknownError]
}

// Error is a mapped client-side error: a stable code plus a message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`

	cause error
}

// NewError creates an Error. An empty msg takes the code's default text.
func NewError(code Code, msg string) *Error {
	if msg == "" {
		msg = DefaultMessage(code)
	}
	return &Error{Code: code, Message: msg}
}

// WrapError creates an Error that unwraps to cause.
func WrapError(code Code, msg string, cause error) *Error {
	e := NewError(code, msg)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the Code carried anywhere in err's chain, or "" if none.
func CodeOf(err error) Code {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func IsInvalidArgument(err error) bool { return HasCode(err, CodeInvalidArgument) }

func IsInvalidPayload(err error) bool { return HasCode(err, CodeInvalidPayload) }

func IsRegistrationTokenNotRegistered(err error) bool {
	return HasCode(err, CodeRegistrationTokenNotRegistered)
}

func IsInvalidRegistrationToken(err error) bool {
	return HasCode(err, CodeInvalidRegistrationToken)
}

func IsThirdPartyAuthError(err error) bool { return HasCode(err, CodeThirdPartyAuthError) }

func IsUnavailable(err error) bool { return HasCode(err, CodeServerUnavailable) }

func IsInternal(err error) bool { return HasCode(err, CodeInternalError) }

func IsNetworkError(err error) bool { return HasCode(err, CodeNetworkError) }

func IsInvalidCredential(err error) bool { return HasCode(err, CodeInvalidCredential) }

// IsRetryable reports whether a retry policy may resend the same request.
// Validation and addressing failures are never retryable.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeServerUnavailable,
		CodeInternalError,
		CodeMessageRateExceeded,
		CodeDeviceMessageRateExceeded,
		CodeTopicsMessageRateExceeded,
		CodeNetworkError:
		return true
	}
	return false
}
