package api

import (
	"errors"
	"fmt"
)

// ClipData is one audio clip produced by the slicer
type ClipData struct {
	File         string  `json:"file"`
	DurationSecs float64 `json:"durationSecs,omitempty"`
}

// TranscriptData is one ASR result for a clip
type TranscriptData struct {
	File         string  `json:"file"`
	Text         string  `json:"text"`
	Language     string  `json:"language,omitempty"`
	DurationSecs float64 `json:"durationSecs,omitempty"`
}

// Tick reports within-stage progress of a long running executor call
type Tick struct {
	Fraction float64
	Step     string
}

// TickFunc receives progress ticks. Implementations must be safe to drop
// ticks - a tick is advisory, never a transition
type TickFunc func(Tick)

// ErrTransient marks a stage error worth retrying, e.g. a momentary
// external-service timeout. Anything else is treated as fatal
type ErrTransient struct {
	Err error
}

// NewErrTransient wraps an error as retryable
func NewErrTransient(err error) error {
	return &ErrTransient{Err: err}
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *ErrTransient) Unwrap() error {
	return e.Err
}

// IsTransient tests the error chain for ErrTransient
func IsTransient(err error) bool {
	var et *ErrTransient
	return errors.As(err, &et)
}
