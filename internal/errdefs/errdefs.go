// Package errdefs holds the error taxonomy shared by the pipeline packages.
//
// Setup-time errors (ErrConfig, ErrEmptyCatalog) abort pipeline construction.
// Per-sample errors (ErrLoad, ErrShapeMismatch at runtime) are recovered by the
// prefetch worker and never reach the consumer.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks conflicting or missing configuration.
	ErrConfig = errors.New("invalid configuration")

	ErrMissingCropConfig = fmt.Errorf(
		"%w: must specify crop_size or both crop_height and crop_width", ErrConfig)
	ErrConflictingCropConfig = fmt.Errorf(
		"%w: crop_size and crop_height/crop_width are mutually exclusive", ErrConfig)
	ErrConflictingMeanConfig = fmt.Errorf(
		"%w: mean_file and mean_values are mutually exclusive", ErrConfig)

	// ErrShapeMismatch marks image/mask/edge dimension disagreement.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrLoad marks a missing or undecodable sample file.
	ErrLoad = errors.New("load failed")

	// ErrEmptyCatalog is returned when a manifest yields no samples.
	ErrEmptyCatalog = errors.New("catalog is empty")

	// ErrClosed is returned by blocking queue operations after shutdown.
	ErrClosed = errors.New("queue closed")
)

// ConfigError names the offending option.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if errors.Is(e.Err, ErrConfig) {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Field, ErrConfig, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes every ConfigError match ErrConfig, even when Err is a plain error.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Configf builds a ConfigError with a formatted message.
func Configf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// ShapeMismatchError reports which buffer disagreed and by how much.
type ShapeMismatchError struct {
	What string
	Want [3]int // channels, rows, cols
	Got  [3]int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%v: %s is %dx%dx%d, want %dx%dx%d", ErrShapeMismatch, e.What,
		e.Got[1], e.Got[2], e.Got[0], e.Want[1], e.Want[2], e.Want[0])
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

// LoadError wraps a per-sample read or decode failure.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() []error { return []error{ErrLoad, e.Err} }
