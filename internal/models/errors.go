package models

// ErrorCode is the wire-level discriminant surfaced to clients as
// lastError.code.
type ErrorCode string

const (
	CodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	CodeNotAuthorized    ErrorCode = "NOT_AUTHORIZED"
	CodeGroupNotFound    ErrorCode = "GROUP_NOT_FOUND"
	CodeNotJoined        ErrorCode = "NOT_JOINED"
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	CodeInvalidMessage   ErrorCode = "INVALID_MESSAGE"
)

// WireError is the structured error reported to the originating connection.
type WireError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}
