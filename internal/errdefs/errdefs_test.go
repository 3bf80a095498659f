package errdefs_test

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/segfeed/internal/errdefs"
)

func TestConfigSentinels_MatchErrConfig(t *testing.T) {
	t.Parallel()

	for _, err := range []error{
		errdefs.ErrMissingCropConfig,
		errdefs.ErrConflictingCropConfig,
		errdefs.ErrConflictingMeanConfig,
	} {
		assert.ErrorIs(t, err, errdefs.ErrConfig)
	}
}

func TestConfigError_Is(t *testing.T) {
	t.Parallel()

	err := errdefs.Configf("batch_size", "must be positive, got %d", 0)
	assert.ErrorIs(t, err, errdefs.ErrConfig)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "must be positive")

	wrapped := &errdefs.ConfigError{Field: "crop", Err: errdefs.ErrMissingCropConfig}
	assert.ErrorIs(t, wrapped, errdefs.ErrMissingCropConfig)

	var ce *errdefs.ConfigError
	assert.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "crop", ce.Field)
}

func TestLoadError_MatchesBoth(t *testing.T) {
	t.Parallel()

	err := &errdefs.LoadError{Path: "a.png", Err: fs.ErrNotExist}
	assert.ErrorIs(t, err, errdefs.ErrLoad)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "a.png")
}

func TestShapeMismatchError(t *testing.T) {
	t.Parallel()

	err := &errdefs.ShapeMismatchError{What: "mask", Want: [3]int{1, 4, 4}, Got: [3]int{1, 4, 5}}
	assert.ErrorIs(t, err, errdefs.ErrShapeMismatch)
	assert.Contains(t, err.Error(), "mask is 4x5x1, want 4x4x1")
}
