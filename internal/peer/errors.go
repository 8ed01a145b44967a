package peer

import (
	"errors"
	"fmt"

	"github.com/immxrtalbeast/meetroom/internal/domain"
)

var (
	ErrClosed          = errors.New("peer manager is closed")
	ErrNoLocalMedia    = errors.New("local media has no live tracks")
	ErrMediaAlreadySet = errors.New("local media already set")
	ErrNoVideoTrack    = errors.New("local media has no video track to substitute")
)

// NegotiationError reports a peer connection that did not make it to
// connected. It matches domain.ErrNegotiation and the underlying cause.
type NegotiationError struct {
	Op     string
	Remote string
	Err    error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation with %s failed during %s: %v", e.Remote, e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() []error {
	return []error{domain.ErrNegotiation, e.Err}
}

func negotiationErr(op, remote string, err error) error {
	return &NegotiationError{Op: op, Remote: remote, Err: err}
}
