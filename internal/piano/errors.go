package piano

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrAlreadyInState is matched by every *AlreadyInStateError.
	ErrAlreadyInState = errors.New("piano: note already in requested state")
	// ErrOutOfBounds is matched by every *OutOfBoundsError.
	ErrOutOfBounds = errors.New("piano: region out of image bounds")
)

// AlreadyInStateError is returned by SetPressed when the requested state
// equals the current one. Pressed carries the rejected state.
type AlreadyInStateError struct {
	Pressed bool
}

func (e *AlreadyInStateError) Error() string {
	if e.Pressed {
		return "piano: note already pressed"
	}
	return "piano: note already released"
}

// Is makes errors.Is(err, ErrAlreadyInState) work.
func (e *AlreadyInStateError) Is(target error) bool {
	return target == ErrAlreadyInState
}

// OutOfBoundsError reports a sampling region that does not fit inside an image.
type OutOfBoundsError struct {
	Region image.Rectangle
	Bounds image.Rectangle
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("piano: region %v not inside image bounds %v", e.Region, e.Bounds)
}

// Is makes errors.Is(err, ErrOutOfBounds) work.
func (e *OutOfBoundsError) Is(target error) bool {
	return target == ErrOutOfBounds
}
