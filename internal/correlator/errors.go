package correlator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentifier is returned for an empty or malformed DOC
	ErrInvalidIdentifier = errors.New("invalid DOC identifier")
	// ErrNoMeasurement is returned when nothing has been published yet
	ErrNoMeasurement = errors.New("no published measurement")
	// ErrIdentifierNotFound is returned when no sampling carries the DOC
	ErrIdentifierNotFound = errors.New("DOC not found in any cage")
	// ErrRemoteUnavailable covers transport failures, timeouts, 5xx and
	// responses that cannot be decoded
	ErrRemoteUnavailable = errors.New("weight service unavailable")
	// ErrRemoteRejected matches any *RejectedError
	ErrRemoteRejected = errors.New("weight service rejected request")
)

// RejectedError carries the service's explanation for a refused request
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("weight service rejected request (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("weight service rejected request (HTTP %d): %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrRemoteRejected) match
func (e *RejectedError) Is(target error) bool {
	return target == ErrRemoteRejected
}
