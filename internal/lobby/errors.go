// internal/lobby/errors.go
package lobby

import (
	"errors"

	"github.com/faceoff-gg/faceoff/internal/models"
)

// Failure is a structured, machine-readable operation failure (validation,
// conflict, or not-found). Store and transport errors are returned as plain
// wrapped errors instead, so callers can tell the two classes apart.
type Failure struct {
	Reason  models.FailureReason
	Message string
}

func (f *Failure) Error() string {
	return string(f.Reason) + ": " + f.Message
}

func failf(reason models.FailureReason, message string) *Failure {
	return &Failure{Reason: reason, Message: message}
}

// AsFailure unwraps a *Failure from err if one is present.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
