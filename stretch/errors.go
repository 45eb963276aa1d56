package stretch

import (
	"errors"
	"fmt"
)

// Common errors for the stretch engine.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidTempo     = errors.New("invalid tempo")
	ErrInvalidState     = errors.New("invalid state for operation")
	ErrConversionFailed = errors.New("chunk conversion failed")
	ErrDisposed         = errors.New("engine has been disposed")
)

// ConversionError describes a chunk that kept failing to convert.
type ConversionError struct {
	Err        error   // The last conversion error
	ChunkIndex int     // Chunk that failed
	Attempts   int     // Consecutive failed attempts
	Tempo      float64 // Tempo the chunk was converted at
	Component  string  // Component that generated the error
	Action     string  // Action being performed when error occurred
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("chunk %d: %s", e.ChunkIndex, ErrConversionFailed)
	}
	return fmt.Sprintf("chunk %d: %s after %d attempts: %v", e.ChunkIndex, ErrConversionFailed, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConversionError) Unwrap() []error {
	return []error{ErrConversionFailed, e.Err}
}

// NewConversionError creates a conversion error for a chunk.
func NewConversionError(err error, chunkIndex int) *ConversionError {
	return &ConversionError{
		Err:        err,
		ChunkIndex: chunkIndex,
		Component:  "scheduler",
		Action:     "convert",
	}
}

// WithAttempts sets the number of failed attempts.
func (e *ConversionError) WithAttempts(n int) *ConversionError {
	e.Attempts = n
	return e
}

// WithTempo sets the tempo the chunk was converted at.
func (e *ConversionError) WithTempo(tempo float64) *ConversionError {
	e.Tempo = tempo
	return e
}
