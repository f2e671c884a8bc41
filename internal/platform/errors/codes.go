// Package errors provides structured domain errors for the gateway.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeNotSignedIn          Code = "NOT_SIGNED_IN"
	CodeLoginStateInvalid    Code = "LOGIN_STATE_INVALID"
	CodeLoginCallbackInvalid Code = "LOGIN_CALLBACK_INVALID"
	CodeSessionNotReady      Code = "SESSION_NOT_READY"

	// Contract errors
	CodeProfileUnsupported Code = "PROFILE_UNSUPPORTED"
	CodeInvalidAmount      Code = "INVALID_AMOUNT"
	CodeInvalidAccountID   Code = "INVALID_ACCOUNT_ID"
	CodeInvalidTiles       Code = "INVALID_TILES"
	CodeApprovalRequired   Code = "WALLET_APPROVAL_REQUIRED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidAmount,
		CodeInvalidAccountID,
		CodeInvalidTiles,
		CodeLoginCallbackInvalid:
		return http.StatusBadRequest

	case CodeNotSignedIn,
		CodeLoginStateInvalid:
		return http.StatusUnauthorized

	case CodeApprovalRequired:
		return http.StatusConflict

	case CodeProfileUnsupported:
		return http.StatusNotImplemented

	case CodeSessionNotReady:
		return http.StatusServiceUnavailable

	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
