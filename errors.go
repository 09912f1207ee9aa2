package filter

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrDimensionMismatch is returned when an input shape is inconsistent with the filter state
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNumericDegeneracy is returned when a singular matrix or a non-finite value is encountered
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
	// ErrLandmarkOverflow is returned when the landmark registry is full
	ErrLandmarkOverflow = errors.New("landmark registry overflow")
	// ErrResampleStarvation is returned when all particle weights collapse to zero
	ErrResampleStarvation = errors.New("resample starvation")
)

// Errors collects the errors of the observations rejected within one batch
type Errors []error

// Error implements error interface
func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return "no errors"
	case 1:
		return e[0].Error()
	}

	msg := fmt.Sprintf("%d errors: %s", len(e), e[0])
	for _, err := range e[1:] {
		msg += "; " + err.Error()
	}

	return msg
}

// Unwrap returns the collected errors
func (e Errors) Unwrap() []error {
	return e
}

// Err returns e as error or nil if e is empty
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}

	return e
}
