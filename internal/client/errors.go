package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/immxrtalbeast/meetroom/internal/domain"
)

var ErrClosed = errors.New("signaling connection closed")

// APIError is a non-2xx answer from the server. It matches the domain
// sentinel for its status code.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server responded %d", e.Status)
	}
	return fmt.Sprintf("server responded %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrAlreadyExists
	case http.StatusBadGateway:
		return domain.ErrTransport
	default:
		return nil
	}
}

// SocketError is an error event pushed by the socket binding.
type SocketError struct {
	Message string
}

func (e *SocketError) Error() string {
	return "socket: " + e.Message
}
