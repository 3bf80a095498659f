package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/segfeed/internal/catalog"
	"github.com/bamsammich/segfeed/internal/checkpoint"
	"github.com/bamsammich/segfeed/internal/config"
	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/event"
	"github.com/bamsammich/segfeed/internal/filter"
	"github.com/bamsammich/segfeed/internal/imgproc"
	"github.com/bamsammich/segfeed/internal/prefetch"
)

func parseFlags(t *testing.T, args ...string) (*runFlags, *pflag.FlagSet, *filter.Chain) {
	t.Helper()
	var f runFlags
	chain := filter.NewChain()
	fs := pflag.NewFlagSet("segfeed", pflag.ContinueOnError)
	f.register(fs, chain)
	require.NoError(t, fs.Parse(args))
	return &f, fs, chain
}

func TestOverrideConfig_OnlyChangedFlags(t *testing.T) {
	t.Parallel()

	crop, rot := 4, 3
	cfg := config.Config{}
	cfg.Transform.CropSize = &crop
	cfg.Transform.MaxRotationAngle = &rot

	f, fs, _ := parseFlags(t, "--crop-size", "8", "--mirror", "--scale-factors", "0.5,1")
	f.overrideConfig(fs, &cfg)

	require.NotNil(t, cfg.Transform.CropSize)
	assert.Equal(t, 8, *cfg.Transform.CropSize)
	assert.Equal(t, 3, *cfg.Transform.MaxRotationAngle)
	require.NotNil(t, cfg.Transform.Mirror)
	assert.True(t, *cfg.Transform.Mirror)
	assert.Equal(t, []float64{0.5, 1}, cfg.Transform.ScaleFactors)

	// Defaults of untouched flags never reach the config.
	assert.Nil(t, cfg.Prefetch.BatchSize)
	assert.Nil(t, cfg.Transform.IgnoreLabel)
	assert.Nil(t, cfg.Data.LabelType)
}

func TestFilterFlag_KeepsCommandLineOrder(t *testing.T) {
	t.Parallel()

	_, _, chain := parseFlags(t, "--include", "keep/*.png", "--exclude", "keep/*", "--exclude", "*.tmp")
	assert.True(t, chain.Keep("keep/a.png"))
	assert.False(t, chain.Keep("keep/a.jpg"))
	assert.False(t, chain.Keep("x.tmp"))
	assert.True(t, chain.Keep("other/b.png"))
}

func TestBackendFor(t *testing.T) {
	t.Parallel()

	b, err := backendFor("cpu")
	require.NoError(t, err)
	assert.NotNil(t, b)

	b, err = backendFor("")
	require.NoError(t, err)
	assert.NotNil(t, b)

	_, err = backendFor("cuda")
	var ce *errdefs.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "backend", ce.Field)
}

type fixedLoader map[string]float64

func (l fixedLoader) Load(_ context.Context, path string, rows, cols int, _ bool) (*imgproc.Mat, error) {
	v, ok := l[path]
	if !ok {
		return nil, &errdefs.LoadError{Path: path, Err: os.ErrNotExist}
	}
	return imgproc.Filled(rows, cols, 1, imgproc.Uint8, v), nil
}

func TestComputeMean_SkipsUnreadable(t *testing.T) {
	t.Parallel()

	ld := fixedLoader{"a.png": 2, "b.png": 4}
	samples := []catalog.Sample{{Image: "a.png"}, {Image: "gone.png"}, {Image: "b.png"}}
	m, err := computeMean(context.Background(), ld, samples, 2, 3, false)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Channels)
	assert.Equal(t, 2, m.Rows)
	assert.Equal(t, 3, m.Cols)
	for _, v := range m.Data {
		assert.InDelta(t, 3.0, v, 1e-6)
	}
}

func TestComputeMean_NothingReadable(t *testing.T) {
	t.Parallel()

	_, err := computeMean(context.Background(), fixedLoader{}, []catalog.Sample{{Image: "x"}}, 2, 2, false)
	assert.ErrorIs(t, err, errdefs.ErrEmptyCatalog)
}

// steppingSource reports one sample per batch and a cursor equal to the count.
type steppingSource struct{ n int }

func (*steppingSource) Setup(context.Context) error { return nil }
func (*steppingSource) Shutdown()                   {}

func (s *steppingSource) FillNextBatch(_ context.Context, b *prefetch.Batch) error {
	b.Reshape(1, 1, 1, 1)
	s.n++
	b.Position = catalog.Position{Cursor: s.n}
	return nil
}

func TestConsume_RecordsCheckpoints(t *testing.T) {
	t.Parallel()

	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "cp.db"), "k")
	require.NoError(t, err)
	defer store.Close()
	rec := checkpoint.NewRecorder(store, uuid.New(), 2)

	p := prefetch.New(&steppingSource{}, prefetch.Options{PoolSize: 2})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	events := make(chan event.Event, 16)
	require.NoError(t, consume(context.Background(), p, rec, events, &runFlags{batches: 5}))

	st, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4), st.Seq)
	assert.Equal(t, catalog.Position{Cursor: 4}, st.Position)

	require.NoError(t, rec.Flush())
	st, _, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Seq)

	close(events)
	var saved []int64
	for ev := range events {
		if ev.Type == event.CheckpointSaved {
			saved = append(saved, ev.Batch)
		}
	}
	assert.Equal(t, []int64{2, 4}, saved)
}

func TestConsume_InterruptIsClean(t *testing.T) {
	t.Parallel()

	p := prefetch.New(&steppingSource{}, prefetch.Options{})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, consume(ctx, p, nil, nil, &runFlags{}))
}

func TestExitError(t *testing.T) {
	t.Parallel()

	err := setupError(errdefs.ErrEmptyCatalog)
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 2, ee.code)
	assert.ErrorIs(t, err, errdefs.ErrEmptyCatalog)
	assert.Equal(t, "exit code 1", (&exitError{code: 1}).Error())
}
