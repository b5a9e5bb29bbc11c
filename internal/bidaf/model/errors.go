package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned by New when the sizes cannot describe a
	// valid model. Nothing is constructed in that case.
	ErrConfiguration = errors.New("bidaf: invalid configuration")

	// ErrShape is returned by Forward when an input tensor cannot be fed
	// through the configured model.
	ErrShape = errors.New("bidaf: invalid input shape")
)

// ConfigError describes which configuration field is invalid.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// ShapeError describes which input tensor was rejected.
type ShapeError struct {
	Input  string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrShape, e.Input, e.Reason)
}

func (e *ShapeError) Unwrap() error { return ErrShape }

func shapeErrorf(input, format string, args ...any) error {
	return &ShapeError{Input: input, Reason: fmt.Sprintf(format, args...)}
}
