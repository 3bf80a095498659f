package transform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/meanfile"
	"github.com/bamsammich/segfeed/internal/transform"
)

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	mean := &meanfile.Image{Channels: 1, Rows: 4, Cols: 4, Data: make([]float32, 16)}
	tests := []struct {
		name   string
		params transform.Params
		want   error
		field  string
	}{
		{"no crop", transform.Params{}, errdefs.ErrMissingCropConfig, ""},
		{"half crop", transform.Params{CropHeight: 4}, errdefs.ErrMissingCropConfig, ""},
		{"both crops", transform.Params{CropSize: 4, CropWidth: 4}, errdefs.ErrConflictingCropConfig, ""},
		{"negative crop", transform.Params{CropSize: -1}, nil, "crop_size"},
		{"mean both", transform.Params{CropSize: 4, Mean: mean, MeanValues: []float64{1}}, errdefs.ErrConflictingMeanConfig, ""},
		{"mean rotation", transform.Params{CropSize: 4, Mean: mean, MaxRotationAngle: 5}, nil, "mean_file"},
		{"mean translation", transform.Params{CropSize: 4, Mean: mean, MaxTranslation: 1}, nil, "mean_file"},
		{"mean scale", transform.Params{CropSize: 4, Mean: mean, ScaleFactors: []float64{1, 2}}, nil, "mean_file"},
		{"probability", transform.Params{CropSize: 4, ApplyProbability: 1.5}, nil, "apply_probability"},
		{"scale factor", transform.Params{CropSize: 4, ScaleFactors: []float64{0}}, nil, "scale_factors"},
		{"ignore label", transform.Params{CropSize: 4, IgnoreLabel: 300}, nil, "ignore_label"},
		{"rotation", transform.Params{CropSize: 4, MaxRotationAngle: -1}, nil, "max_rotation_angle"},
		{"translation", transform.Params{CropSize: 4, MaxTranslation: -1}, nil, "max_translation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := transform.NewEngine(tt.params, nil, 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, errdefs.ErrConfig)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			if tt.field != "" {
				var ce *errdefs.ConfigError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, tt.field, ce.Field)
			}
		})
	}
}

func TestParams_ValidAccepted(t *testing.T) {
	t.Parallel()

	mean := &meanfile.Image{Channels: 1, Rows: 4, Cols: 4, Data: make([]float32, 16)}
	for _, p := range []transform.Params{
		{CropSize: 4},
		{CropHeight: 2, CropWidth: 3},
		{CropSize: 4, Mean: mean, ScaleFactors: []float64{1}, Mirror: true},
		{CropSize: 4, SmoothFiltering: true, MaxSmooth: 1, ApplyProbability: 1},
	} {
		_, err := transform.NewEngine(p, nil, 0)
		assert.NoError(t, err)
	}
}

func TestParams_Crop(t *testing.T) {
	t.Parallel()

	h, w := transform.Params{CropSize: 5}.Crop()
	assert.Equal(t, []int{5, 5}, []int{h, w})
	h, w = transform.Params{CropHeight: 2, CropWidth: 3}.Crop()
	assert.Equal(t, []int{2, 3}, []int{h, w})
}

func TestParsePhase(t *testing.T) {
	t.Parallel()

	p, err := transform.ParsePhase("train")
	require.NoError(t, err)
	assert.Equal(t, transform.Train, p)
	p, err = transform.ParsePhase("TEST")
	require.NoError(t, err)
	assert.Equal(t, transform.Test, p)
	assert.Equal(t, "TEST", p.String())
	_, err = transform.ParsePhase("eval")
	assert.Error(t, err)
}
