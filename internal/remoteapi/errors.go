package remoteapi

import (
	"errors"
	"fmt"
)

// TransientError covers timeouts, transport failures and 5xx responses.
// These degrade to the local-only view and are safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ClientError covers 4xx responses. Retrying cannot help; the message is
// surfaced to the user.
type ClientError struct {
	Op      string
	Status  int
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s: rejected (%d): %s", e.Op, e.Status, e.Message)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsClientRejection reports whether the remote store rejected the request.
func IsClientRejection(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}
