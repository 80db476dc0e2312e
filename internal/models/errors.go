package models

import "errors"

// Queue errors shared by every job queue backend.
var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobFinished   = errors.New("job already finished")
	ErrInvalidStatus = errors.New("invalid job status")
)
