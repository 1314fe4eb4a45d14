package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotCalibrated = errors.New("octave not calibrated")
	ErrInvalidImage  = errors.New("invalid image")
	ErrInvalidName   = errors.New("invalid frame name")
)
