package transform

import (
	"fmt"
	"strings"

	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/meanfile"
)

// Phase selects random (Train) or centered (Test) cropping.
type Phase int

const (
	Train Phase = iota
	Test
)

func (p Phase) String() string {
	if p == Test {
		return "TEST"
	}
	return "TRAIN"
}

// ParsePhase accepts "train" or "test" in any case.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToUpper(s) {
	case "TRAIN":
		return Train, nil
	case "TEST":
		return Test, nil
	}
	return 0, fmt.Errorf("unknown phase %q (want train or test)", s)
}

// Params is the immutable augmentation configuration. Zero values disable the
// corresponding augmentation.
type Params struct {
	// CropSize sets a square crop; CropHeight and CropWidth set a
	// rectangular one. Exactly one form is required.
	CropSize   int
	CropHeight int
	CropWidth  int

	Mirror           bool
	MaxRotationAngle int
	MaxTranslation   int

	SmoothFiltering  bool
	MaxSmooth        int
	ApplyProbability float64

	ScaleFactors []float64

	// Mean and MeanValues are mutually exclusive.
	Mean       *meanfile.Image
	MeanValues []float64

	// Scale multiplies the mean-subtracted image. Zero means 1.
	Scale       float64
	IgnoreLabel int
	Phase       Phase
}

// Crop returns the output height and width.
func (p Params) Crop() (rows, cols int) {
	if p.CropSize > 0 {
		return p.CropSize, p.CropSize
	}
	return p.CropHeight, p.CropWidth
}

func (p Params) smoothing() bool { return p.SmoothFiltering && p.MaxSmooth > 1 }

// Validate reports configuration errors as *errdefs.ConfigError or one of the
// errdefs crop/mean sentinels.
func (p Params) Validate() error {
	if p.CropSize < 0 || p.CropHeight < 0 || p.CropWidth < 0 {
		return errdefs.Configf("crop_size", "crop dimensions must not be negative")
	}
	if p.CropSize > 0 && (p.CropHeight > 0 || p.CropWidth > 0) {
		return errdefs.ErrConflictingCropConfig
	}
	if p.CropSize == 0 && (p.CropHeight == 0 || p.CropWidth == 0) {
		return errdefs.ErrMissingCropConfig
	}
	if p.MaxRotationAngle < 0 {
		return errdefs.Configf("max_rotation_angle", "must not be negative, got %d", p.MaxRotationAngle)
	}
	if p.MaxTranslation < 0 {
		return errdefs.Configf("max_translation", "must not be negative, got %d", p.MaxTranslation)
	}
	if p.ApplyProbability < 0 || p.ApplyProbability > 1 {
		return errdefs.Configf("apply_probability", "must be within [0, 1], got %g", p.ApplyProbability)
	}
	for _, f := range p.ScaleFactors {
		if f <= 0 {
			return errdefs.Configf("scale_factors", "factors must be positive, got %g", f)
		}
	}
	if p.IgnoreLabel < 0 || p.IgnoreLabel > 255 {
		return errdefs.Configf("ignore_label", "must fit in a byte, got %d", p.IgnoreLabel)
	}
	if p.Mean != nil {
		if len(p.MeanValues) > 0 {
			return errdefs.ErrConflictingMeanConfig
		}
		// The mean image is indexed in canvas coordinates, which only line up
		// with the source when the geometry is untouched.
		switch {
		case p.MaxRotationAngle > 0:
			return errdefs.Configf("mean_file", "cannot be combined with max_rotation_angle")
		case p.MaxTranslation > 0:
			return errdefs.Configf("mean_file", "cannot be combined with max_translation")
		case p.rescales():
			return errdefs.Configf("mean_file", "cannot be combined with scale_factors")
		}
	}
	return nil
}

func (p Params) rescales() bool {
	for _, f := range p.ScaleFactors {
		if f != 1 {
			return true
		}
	}
	return false
}
