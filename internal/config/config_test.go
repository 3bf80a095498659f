package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/segfeed/internal/catalog"
	"github.com/bamsammich/segfeed/internal/config"
	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/meanfile"
	"github.com/bamsammich/segfeed/internal/transform"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	configDir := filepath.Join(dir, "segfeed")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	path := filepath.Join(configDir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func ptr[T any](v T) *T { return &v }

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Data.Source)
	assert.Nil(t, cfg.Transform.CropSize)
	assert.Nil(t, cfg.Theme.Green)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[data]
source = "train.txt"
root_folder = "/data/iris"
label_type = "pixel"
new_height = 400
new_width = 300
is_color = false
shuffle = true
seed = 42
rand_skip = 10
io_limit = "64M"
exclude = ["*.tmp"]

[transform]
phase = "test"
crop_height = 321
crop_width = 257
mirror = true
max_rotation_angle = 15
scale_factors = [0.75, 1.0, 1.25]
mean_values = [104.0, 117.0, 123.0]
ignore_label = 254

[prefetch]
batch_size = 8
pool_size = 4

[checkpoint]
path = "/tmp/cp.db"
every = 50

[theme]
green = "#00ff00"
`)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.NotNil(t, cfg.Data.Source)
	assert.Equal(t, "train.txt", *cfg.Data.Source)
	require.NotNil(t, cfg.Checkpoint.Path)
	assert.Equal(t, "/tmp/cp.db", *cfg.Checkpoint.Path)
	assert.Equal(t, "#00ff00", *cfg.Theme.Green)
	assert.Nil(t, cfg.Theme.Red)

	p, err := cfg.TransformParams(nil)
	require.NoError(t, err)
	assert.Equal(t, transform.Test, p.Phase)
	rows, cols := p.Crop()
	assert.Equal(t, 321, rows)
	assert.Equal(t, 257, cols)
	assert.True(t, p.Mirror)
	assert.Equal(t, 15, p.MaxRotationAngle)
	assert.Equal(t, []float64{0.75, 1.0, 1.25}, p.ScaleFactors)
	assert.Equal(t, []float64{104, 117, 123}, p.MeanValues)
	assert.Equal(t, 254, p.IgnoreLabel)
	assert.Equal(t, 1.0, p.Scale)

	co, err := cfg.CatalogOptions()
	require.NoError(t, err)
	assert.Equal(t, catalog.Options{Shuffle: true, Seed: 42, RandSkip: 10}, co)

	so, err := cfg.SegOptions()
	require.NoError(t, err)
	assert.Equal(t, 8, so.BatchSize)
	assert.Equal(t, catalog.LabelPixel, so.LabelType)
	assert.Equal(t, 400, so.NewHeight)
	assert.Equal(t, 300, so.NewWidth)
	assert.False(t, so.Color)

	assert.Equal(t, 4, cfg.PipelineOptions().PoolSize)

	lo, err := cfg.LoaderOptions()
	require.NoError(t, err)
	assert.Equal(t, "/data/iris", lo.Root)
	assert.Equal(t, int64(64<<20), lo.BytesPerSec)

	chain, err := cfg.Filter(nil)
	require.NoError(t, err)
	require.NotNil(t, chain)
	assert.False(t, chain.Keep("a/b.tmp"))
	assert.True(t, chain.Keep("a/b.png"))

	every, err := cfg.CheckpointEvery()
	require.NoError(t, err)
	assert.Equal(t, 50, every)
}

func TestLoad_UnknownKey(t *testing.T) {
	writeConfig(t, `
[transform]
crop_sise = 10
`)
	_, err := config.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrConfig)
	assert.Contains(t, err.Error(), "crop_sise")
}

func TestLoad_Malformed(t *testing.T) {
	writeConfig(t, "[transform\ncrop_size = 1")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadFile_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[prefetch]\nbatch_size = 3\n"), 0o644))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Prefetch.BatchSize)
	assert.Equal(t, 3, *cfg.Prefetch.BatchSize)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Transform: config.TransformConfig{CropSize: ptr(64)}}
	require.NoError(t, cfg.Validate())

	p, err := cfg.TransformParams(nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultIgnoreLabel, p.IgnoreLabel)
	assert.Equal(t, config.DefaultApplyProbability, p.ApplyProbability)
	assert.Equal(t, transform.Train, p.Phase)

	so, err := cfg.SegOptions()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultBatchSize, so.BatchSize)
	assert.True(t, so.Color)
	assert.Equal(t, catalog.LabelPixel, so.LabelType)

	chain, err := cfg.Filter(nil)
	require.NoError(t, err)
	assert.Nil(t, chain)

	every, err := cfg.CheckpointEvery()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCheckpointEvery, every)
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	crop := config.TransformConfig{CropSize: ptr(8)}
	tests := []struct {
		name string
		cfg  config.Config
		want error
	}{
		{"missing crop", config.Config{}, errdefs.ErrMissingCropConfig},
		{"conflicting crop", config.Config{Transform: config.TransformConfig{
			CropSize: ptr(8), CropHeight: ptr(4), CropWidth: ptr(4),
		}}, errdefs.ErrConflictingCropConfig},
		{"mean file and values", config.Config{Transform: config.TransformConfig{
			CropSize: ptr(8), MeanFile: ptr("m.mean"), MeanValues: []float64{1},
		}}, errdefs.ErrConflictingMeanConfig},
		{"bad phase", config.Config{Transform: config.TransformConfig{
			CropSize: ptr(8), Phase: ptr("validate"),
		}}, errdefs.ErrConfig},
		{"batch size", config.Config{Transform: crop, Prefetch: config.PrefetchConfig{BatchSize: ptr(0)}}, errdefs.ErrConfig},
		{"half resize", config.Config{Transform: crop, Data: config.DataConfig{NewHeight: ptr(10)}}, errdefs.ErrConfig},
		{"label type", config.Config{Transform: crop, Data: config.DataConfig{LabelType: ptr("polygon")}}, errdefs.ErrConfig},
		{"io limit", config.Config{Transform: crop, Data: config.DataConfig{IOLimit: ptr("fast")}}, errdefs.ErrConfig},
		{"rand skip", config.Config{Transform: crop, Data: config.DataConfig{RandSkip: ptr(-1)}}, errdefs.ErrConfig},
		{"bad glob", config.Config{Transform: crop, Data: config.DataConfig{Exclude: []string{"[z-a]"}}}, errdefs.ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_MeanFileWithGeometry(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Transform: config.TransformConfig{
		CropSize: ptr(8), MeanFile: ptr("does-not-matter.mean"), MaxRotationAngle: ptr(10),
	}}
	err := cfg.Validate()
	var ce *errdefs.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "mean_file", ce.Field)
}

func TestTransformParams_LoadsMeanFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "train.mean")
	img := &meanfile.Image{Channels: 1, Rows: 2, Cols: 2, Data: []float32{1, 2, 3, 4}}
	require.NoError(t, meanfile.Write(path, img))

	cfg := config.Config{Transform: config.TransformConfig{CropSize: ptr(2), MeanFile: ptr(path)}}
	p, err := cfg.TransformParams(nil)
	require.NoError(t, err)
	require.NotNil(t, p.Mean)
	assert.Equal(t, img.Data, p.Mean.Data)

	cfg.Transform.MeanFile = ptr(filepath.Join(t.TempDir(), "missing.mean"))
	_, err = cfg.TransformParams(nil)
	var ce *errdefs.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "mean_file", ce.Field)
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Data:      config.DataConfig{Source: ptr("train.txt"), Shuffle: ptr(true)},
		Transform: config.TransformConfig{CropSize: ptr(321), ScaleFactors: []float64{0.5, 1}},
	}
	var buf bytes.Buffer
	require.NoError(t, config.Encode(&buf, cfg))
	assert.Contains(t, buf.String(), `source = "train.txt"`)
	assert.NotContains(t, buf.String(), "mean_file")

	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	back, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/segfeed/config.toml", config.Path())
}
