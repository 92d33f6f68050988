package ws

import (
	"errors"

	"groupchat-service/internal/clients"
	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
)

var (
	// ErrDuplicateConnection is returned when the same connection id
	// registers twice.
	ErrDuplicateConnection = errors.New("connection already registered")
	// ErrNotAuthorized is returned when the user is not a member of the
	// target group.
	ErrNotAuthorized = errors.New("not a member of group")
	// ErrNotJoined is returned when a send targets a room the connection
	// never joined.
	ErrNotJoined = errors.New("not joined to group")
	// ErrInvalidMessage is returned for empty or over-length text.
	ErrInvalidMessage = errors.New("invalid message")
)

// CodeForError maps internal failures to the wire-level error codes the
// client reads from lastError.code.
func CodeForError(err error) models.ErrorCode {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return models.CodeNotAuthorized
	case errors.Is(err, clients.ErrGroupNotFound):
		return models.CodeGroupNotFound
	case errors.Is(err, ErrNotJoined):
		return models.CodeNotJoined
	case errors.Is(err, ErrInvalidMessage):
		return models.CodeInvalidMessage
	case errors.Is(err, repositories.ErrStoreUnavailable),
		errors.Is(err, clients.ErrUpstreamUnavailable):
		return models.CodeStoreUnavailable
	default:
		return models.CodeStoreUnavailable
	}
}
