// Package config reads the optional segfeed TOML file and converts it into
// the typed options of the pipeline packages.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/bamsammich/segfeed/internal/catalog"
	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/filter"
	"github.com/bamsammich/segfeed/internal/loader"
	"github.com/bamsammich/segfeed/internal/meanfile"
	"github.com/bamsammich/segfeed/internal/prefetch"
	"github.com/bamsammich/segfeed/internal/transform"
)

// Defaults applied when a field is unset.
const (
	DefaultIgnoreLabel      = 255
	DefaultApplyProbability = 0.5
	DefaultBatchSize        = 1
	DefaultCheckpointEvery  = 100
)

// Config represents the segfeed configuration file. Every scalar is a
// pointer so an unset value can be told apart from a zero one.
type Config struct {
	Data       DataConfig       `toml:"data"`
	Transform  TransformConfig  `toml:"transform"`
	Prefetch   PrefetchConfig   `toml:"prefetch"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Theme      ThemeConfig      `toml:"theme"`
}

// DataConfig describes the manifest and how its files are read.
type DataConfig struct {
	Source     *string  `toml:"source"`
	RootFolder *string  `toml:"root_folder"`
	LabelType  *string  `toml:"label_type"`
	NewHeight  *int     `toml:"new_height"`
	NewWidth   *int     `toml:"new_width"`
	IsColor    *bool    `toml:"is_color"`
	Shuffle    *bool    `toml:"shuffle"`
	Seed       *int64   `toml:"seed"`
	RandSkip   *int     `toml:"rand_skip"`
	IOLimit    *string  `toml:"io_limit"`
	FilterFile *string  `toml:"filter"`
	Exclude    []string `toml:"exclude"`
	Include    []string `toml:"include"`
}

// TransformConfig holds the augmentation parameters.
type TransformConfig struct {
	Phase            *string   `toml:"phase"`
	CropSize         *int      `toml:"crop_size"`
	CropHeight       *int      `toml:"crop_height"`
	CropWidth        *int      `toml:"crop_width"`
	Mirror           *bool     `toml:"mirror"`
	MaxRotationAngle *int      `toml:"max_rotation_angle"`
	MaxTranslation   *int      `toml:"max_translation"`
	SmoothFiltering  *bool     `toml:"smooth_filtering"`
	MaxSmooth        *int      `toml:"max_smooth"`
	ApplyProbability *float64  `toml:"apply_probability"`
	ScaleFactors     []float64 `toml:"scale_factors"`
	MeanFile         *string   `toml:"mean_file"`
	MeanValues       []float64 `toml:"mean_values"`
	Scale            *float64  `toml:"output_scale"`
	IgnoreLabel      *int      `toml:"ignore_label"`
	Backend          *string   `toml:"backend"`
}

// PrefetchConfig sizes batches and the buffer pool.
type PrefetchConfig struct {
	BatchSize *int `toml:"batch_size"`
	PoolSize  *int `toml:"pool_size"`
}

// CheckpointConfig controls resume state.
type CheckpointConfig struct {
	Path  *string `toml:"path"`
	Every *int    `toml:"every"`
}

// ThemeConfig holds optional color overrides.
type ThemeConfig struct {
	Green  *string `toml:"green"`
	Blue   *string `toml:"blue"`
	Yellow *string `toml:"yellow"`
	Red    *string `toml:"red"`
	Teal   *string `toml:"teal"`
	Mauve  *string `toml:"mauve"`
	Muted  *string `toml:"muted"`
	Dim    *string `toml:"dim"`
	Bright *string `toml:"bright"`
}

// Path returns the default config file location.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "segfeed", "config.toml")
}

// Load reads the config file at the default path. A missing file yields a
// zero Config and no error.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// LoadFile reads the config file at path. Unknown keys are rejected so a
// misspelt option does not silently fall back to its default.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errdefs.Configf(undecoded[0].String(), "unknown key in %s", path)
	}
	return cfg, nil
}

// Encode writes cfg as TOML; unset fields are omitted.
func Encode(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate checks every section and reports the first error.
func (c Config) Validate() error {
	// Check mean file conflicts without reading the file.
	stub := func(string) (*meanfile.Image, error) { return &meanfile.Image{}, nil }
	if _, err := c.TransformParams(stub); err != nil {
		return err
	}
	if _, err := c.CatalogOptions(); err != nil {
		return err
	}
	if _, err := c.SegOptions(); err != nil {
		return err
	}
	if _, err := c.LoaderOptions(); err != nil {
		return err
	}
	_, err := c.Filter(nil)
	return err
}

// TransformParams converts [transform] into engine parameters. The mean
// file, if configured, is loaded with loadMean (meanfile.Load when nil).
func (c Config) TransformParams(loadMean func(string) (*meanfile.Image, error)) (transform.Params, error) {
	t := c.Transform
	p := transform.Params{
		CropSize:         deref(t.CropSize, 0),
		CropHeight:       deref(t.CropHeight, 0),
		CropWidth:        deref(t.CropWidth, 0),
		Mirror:           deref(t.Mirror, false),
		MaxRotationAngle: deref(t.MaxRotationAngle, 0),
		MaxTranslation:   deref(t.MaxTranslation, 0),
		SmoothFiltering:  deref(t.SmoothFiltering, false),
		MaxSmooth:        deref(t.MaxSmooth, 0),
		ApplyProbability: deref(t.ApplyProbability, DefaultApplyProbability),
		ScaleFactors:     t.ScaleFactors,
		MeanValues:       t.MeanValues,
		Scale:            deref(t.Scale, 1),
		IgnoreLabel:      deref(t.IgnoreLabel, DefaultIgnoreLabel),
	}
	if t.Phase != nil {
		phase, err := transform.ParsePhase(*t.Phase)
		if err != nil {
			return transform.Params{}, &errdefs.ConfigError{Field: "phase", Err: err}
		}
		p.Phase = phase
	}
	if t.MeanFile != nil && len(t.MeanValues) > 0 {
		return transform.Params{}, errdefs.ErrConflictingMeanConfig
	}
	if err := p.Validate(); err != nil {
		return transform.Params{}, err
	}
	if t.MeanFile != nil {
		if loadMean == nil {
			loadMean = meanfile.Load
		}
		mean, err := loadMean(*t.MeanFile)
		if err != nil {
			return transform.Params{}, &errdefs.ConfigError{Field: "mean_file", Err: err}
		}
		p.Mean = mean
		if err := p.Validate(); err != nil {
			return transform.Params{}, err
		}
	}
	return p, nil
}

// CatalogOptions converts the ordering fields of [data].
func (c Config) CatalogOptions() (catalog.Options, error) {
	d := c.Data
	opts := catalog.Options{
		Shuffle:  deref(d.Shuffle, false),
		RandSkip: deref(d.RandSkip, 0),
	}
	if opts.RandSkip < 0 {
		return catalog.Options{}, errdefs.Configf("rand_skip", "must not be negative, got %d", opts.RandSkip)
	}
	if d.Seed != nil {
		opts.Seed = uint64(*d.Seed) //nolint:gosec // G115: seeds are bit patterns
	}
	return opts, nil
}

// LabelType parses data.label_type, defaulting to pixel labels.
func (c Config) LabelType() (catalog.LabelType, error) {
	if c.Data.LabelType == nil {
		return catalog.LabelPixel, nil
	}
	lt, err := catalog.ParseLabelType(*c.Data.LabelType)
	if err != nil {
		return 0, &errdefs.ConfigError{Field: "label_type", Err: err}
	}
	return lt, nil
}

// SegOptions converts the fields of [data] and [prefetch] the segmentation
// source needs. Stats, Events and Backend are left for the caller.
func (c Config) SegOptions() (prefetch.SegOptions, error) {
	lt, err := c.LabelType()
	if err != nil {
		return prefetch.SegOptions{}, err
	}
	opts := prefetch.SegOptions{
		BatchSize: deref(c.Prefetch.BatchSize, DefaultBatchSize),
		LabelType: lt,
		NewHeight: deref(c.Data.NewHeight, 0),
		NewWidth:  deref(c.Data.NewWidth, 0),
		Color:     deref(c.Data.IsColor, true),
	}
	if opts.BatchSize <= 0 {
		return prefetch.SegOptions{}, errdefs.Configf("batch_size", "must be positive, got %d", opts.BatchSize)
	}
	if opts.NewHeight < 0 || opts.NewWidth < 0 {
		return prefetch.SegOptions{}, errdefs.Configf("new_height", "resize dimensions must not be negative")
	}
	if (opts.NewHeight > 0) != (opts.NewWidth > 0) {
		return prefetch.SegOptions{}, errdefs.Configf("new_height", "new_height and new_width must be set together")
	}
	return opts, nil
}

// PipelineOptions converts [prefetch] pool settings.
func (c Config) PipelineOptions() prefetch.Options {
	return prefetch.Options{PoolSize: deref(c.Prefetch.PoolSize, prefetch.DefaultPoolSize)}
}

// LoaderOptions converts root_folder and io_limit.
func (c Config) LoaderOptions() (loader.Options, error) {
	opts := loader.Options{Root: deref(c.Data.RootFolder, "")}
	if c.Data.IOLimit != nil && *c.Data.IOLimit != "" {
		n, err := filter.ParseSize(*c.Data.IOLimit)
		if err != nil {
			return loader.Options{}, &errdefs.ConfigError{Field: "io_limit", Err: err}
		}
		opts.BytesPerSec = n
	}
	return opts, nil
}

// Filter appends the configured manifest rules to chain (a new chain when
// nil): the filter file first, then the exclude and include lists. Rules
// already in chain keep precedence. Returns nil when the result is empty.
func (c Config) Filter(chain *filter.Chain) (*filter.Chain, error) {
	if chain == nil {
		chain = filter.NewChain()
	}
	if c.Data.FilterFile != nil {
		if err := chain.LoadFile(*c.Data.FilterFile); err != nil {
			return nil, &errdefs.ConfigError{Field: "filter", Err: err}
		}
	}
	for _, pat := range c.Data.Exclude {
		if err := chain.AddExclude(pat); err != nil {
			return nil, &errdefs.ConfigError{Field: "exclude", Err: err}
		}
	}
	for _, pat := range c.Data.Include {
		if err := chain.AddInclude(pat); err != nil {
			return nil, &errdefs.ConfigError{Field: "include", Err: err}
		}
	}
	if chain.Empty() {
		return nil, nil
	}
	return chain, nil
}

// CheckpointEvery returns checkpoint.every, defaulting to
// DefaultCheckpointEvery.
func (c Config) CheckpointEvery() (int, error) {
	every := deref(c.Checkpoint.Every, DefaultCheckpointEvery)
	if every <= 0 {
		return 0, errdefs.Configf("checkpoint.every", "must be positive, got %d", every)
	}
	return every, nil
}

// BackendName returns transform.backend, defaulting to "cpu".
func (t TransformConfig) BackendName() string { return deref(t.Backend, "cpu") }

// String describes the effective crop for log lines.
func (t TransformConfig) String() string {
	switch {
	case t.CropSize != nil:
		return fmt.Sprintf("crop %d", *t.CropSize)
	case t.CropHeight != nil && t.CropWidth != nil:
		return fmt.Sprintf("crop %dx%d", *t.CropHeight, *t.CropWidth)
	}
	return "crop unset"
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
