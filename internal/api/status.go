package api

import (
	"net/http"

	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

// httpStatus maps a client error code onto the status the relay answers
// with. Failures of the relay's own upstream credentials or transport are
// gateway errors, not caller errors.
func httpStatus(code messaging.Code) int {
	switch code {
	case messaging.CodeInvalidArgument,
		messaging.CodeInvalidRecipient,
		messaging.CodeInvalidPayload,
		messaging.CodeInvalidDataPayloadKey,
		messaging.CodePayloadSizeLimitExceeded,
		messaging.CodeInvalidOptions,
		messaging.CodeInvalidRegistrationToken,
		messaging.CodeInvalidPackageName,
		messaging.CodeTooManyTopics:
		return http.StatusBadRequest
	case messaging.CodeRegistrationTokenNotRegistered:
		return http.StatusNotFound
	case messaging.CodeMismatchedCredential,
		messaging.CodeThirdPartyAuthError:
		return http.StatusForbidden
	case messaging.CodeDeviceMessageRateExceeded,
		messaging.CodeTopicsMessageRateExceeded,
		messaging.CodeMessageRateExceeded:
		return http.StatusTooManyRequests
	case messaging.CodeServerUnavailable:
		return http.StatusServiceUnavailable
	case messaging.CodeInternalError,
		messaging.CodeNetworkError,
		messaging.CodeAuthenticationError,
		messaging.CodeInvalidCredential:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
