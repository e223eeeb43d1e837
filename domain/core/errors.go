package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Lookup errors
	ErrNotFound        = errors.New("key not found")
	ErrLineageNotFound = fmt.Errorf("%w: lineage", ErrNotFound)
	ErrGeneNotFound    = fmt.Errorf("%w: gene", ErrNotFound)
	ErrKeyNotFound     = fmt.Errorf("%w: annotation", ErrNotFound)

	// Validation errors
	ErrInvalidShape       = errors.New("invalid shape")
	ErrDuplicateName      = errors.New("lineage names are not unique")
	ErrInvalidColor       = errors.New("value is not a valid color")
	ErrOverlappingGroups  = errors.New("overlapping mixture groups")
	ErrMultipleRest       = errors.New("rest marker used more than once")
	ErrInvalidSelector    = errors.New("invalid selector")
	ErrUnknownOption      = errors.New("unknown option")
	ErrInvalidType        = errors.New("annotation has unexpected type")
	ErrNotPrepared        = errors.New("model is not prepared")
	ErrNotFitted          = errors.New("model is not fitted")
	ErrWeightsUnsupported = errors.New("regressor does not accept sample weights")
	ErrInsufficientData   = errors.New("insufficient data for fitting")

	// Numerical errors
	ErrNotStochastic  = errors.New("rows do not sum to one")
	ErrInvalidWeights = errors.New("invalid weight matrix")

	// External dependency errors
	ErrExternalDependency = errors.New("external dependency unavailable")
)

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidShape) ||
		errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrInvalidColor) ||
		errors.Is(err, ErrOverlappingGroups) ||
		errors.Is(err, ErrMultipleRest) ||
		errors.Is(err, ErrInvalidSelector) ||
		errors.Is(err, ErrUnknownOption) ||
		errors.Is(err, ErrInvalidType)
}

func IsNumericalError(err error) bool {
	return errors.Is(err, ErrNotStochastic) ||
		errors.Is(err, ErrInvalidWeights)
}
