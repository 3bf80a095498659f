package prefetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bamsammich/segfeed/internal/catalog"
	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/event"
	"github.com/bamsammich/segfeed/internal/imgproc"
	"github.com/bamsammich/segfeed/internal/loader"
	"github.com/bamsammich/segfeed/internal/stats"
	"github.com/bamsammich/segfeed/internal/transform"
)

// Source fills batches. The pipeline calls Setup once, FillNextBatch from its
// single worker goroutine, and Shutdown after the worker has exited.
type Source interface {
	Setup(ctx context.Context) error
	FillNextBatch(ctx context.Context, b *Batch) error
	Shutdown()
}

// SegOptions configures a SegSource.
type SegOptions struct {
	BatchSize int
	LabelType catalog.LabelType
	// NewHeight and NewWidth resize every loaded file; zero keeps native size.
	NewHeight int
	NewWidth  int
	// Color loads 3-channel BGR images instead of gray.
	Color   bool
	Backend imgproc.Backend
	Stats   *stats.Collector
	Events  chan<- event.Event
}

// SegSource fills batches of image, mask and edge samples from a catalog.
type SegSource struct {
	cat    *catalog.Catalog
	loader loader.Loader
	engine *transform.Engine
	opts   SegOptions

	// Native size of the most recently probed image, used for placeholders.
	probeRows int
	probeCols int
	channels  int
}

// NewSegSource wires a catalog, loader and engine into a Source.
func NewSegSource(cat *catalog.Catalog, ld loader.Loader, eng *transform.Engine, opts SegOptions) (*SegSource, error) {
	if opts.BatchSize <= 0 {
		return nil, errdefs.Configf("batch_size", "must be positive, got %d", opts.BatchSize)
	}
	if (opts.NewHeight > 0) != (opts.NewWidth > 0) {
		return nil, errdefs.Configf("new_height", "new_height and new_width must be set together")
	}
	if opts.Backend == nil {
		opts.Backend = imgproc.NewCPU()
	}
	if opts.Stats == nil {
		opts.Stats = stats.NewCollector()
	}
	return &SegSource{cat: cat, loader: ld, engine: eng, opts: opts}, nil
}

// Setup probes the first sample so the output shape is known before the
// worker starts. A first sample that cannot be read is a setup failure.
func (s *SegSource) Setup(ctx context.Context) error {
	img, err := s.loadImage(ctx, s.cat.Peek().Image)
	if err != nil {
		return fmt.Errorf("probing first sample: %w", err)
	}
	s.remember(img)
	c, h, w := s.engine.InferShape(img)
	slog.Info("output shape inferred",
		"batch", s.opts.BatchSize, "channels", c, "height", h, "width", w)
	return nil
}

// Shutdown implements Source.
func (s *SegSource) Shutdown() {}

// FillNextBatch probes the upcoming sample, reshapes b if needed, then loads
// and transforms BatchSize samples into b's slots. Unreadable images are
// replaced by placeholders and unreadable labels by ignore-label maps. Both
// count as failed samples; only cancellation is returned.
func (s *SegSource) FillNextBatch(ctx context.Context, b *Batch) error {
	var readTime, xformTime time.Duration

	start := time.Now()
	probe, probeErr := s.loadImage(ctx, s.cat.Peek().Image)
	readTime += time.Since(start)
	if probeErr == nil {
		s.remember(probe)
	}
	// A failed probe keeps the previous shape; slot 0 reports its error.

	rows, cols := s.engine.Params().Crop()
	if b.Reshape(s.opts.BatchSize, s.channels, rows, cols) {
		shape := b.Data.Shape()
		slog.Debug("batch reshaped", "shape", shape.String())
		event.Emit(s.opts.Events, event.Event{Type: event.ShapeChanged, Shape: shape})
	}

	b.Failed = 0
	for i := range s.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		sample := s.cat.Next()

		start = time.Now()
		var (
			img, mask, edge *imgproc.Mat
			err, labelErr   error
		)
		if i == 0 {
			img, err = probe, probeErr
		} else {
			img, err = s.loadImage(ctx, sample.Image)
		}
		if err == nil {
			mask, edge, labelErr = s.loadLabels(ctx, sample, img)
			if canceled(labelErr) {
				return labelErr
			}
		}
		readTime += time.Since(start)

		start = time.Now()
		if err == nil && img.Channels != s.channels {
			err = &errdefs.ShapeMismatchError{
				What: "image",
				Want: [3]int{s.channels, img.Rows, img.Cols},
				Got:  [3]int{img.Channels, img.Rows, img.Cols},
			}
		}
		if err == nil {
			// Unreadable labels become ignore-label maps around the real image.
			err = s.engine.Transform(img, mask, edge, b.Slot(i))
		}
		switch {
		case canceled(err):
			return err
		case err != nil:
			s.fail(sample, err)
			s.placeholder(b.Slot(i))
			b.Failed++
		case labelErr != nil:
			s.failLabels(sample, labelErr)
			b.Failed++
		default:
			s.opts.Stats.AddSamplesLoaded(1)
		}
		xformTime += time.Since(start)
	}

	b.Position = s.cat.Position()
	s.opts.Stats.AddReadTime(readTime)
	s.opts.Stats.AddTransformTime(xformTime)
	return nil
}

func (s *SegSource) remember(img *imgproc.Mat) {
	s.probeRows, s.probeCols, s.channels = img.Rows, img.Cols, img.Channels
}

func (s *SegSource) fail(sample catalog.Sample, err error) {
	slog.Warn("sample replaced by placeholder", "path", sample.Image, "error", err)
	s.opts.Stats.AddSamplesFailed(1)
	event.Emit(s.opts.Events, event.Event{Type: event.SampleFailed, Path: sample.Image, Error: err})
}

func (s *SegSource) failLabels(sample catalog.Sample, err error) {
	slog.Warn("labels replaced by ignore label", "path", sample.Image, "error", err)
	s.opts.Stats.AddSamplesFailed(1)
	event.Emit(s.opts.Events, event.Event{Type: event.SampleFailed, Path: sample.Image, Error: err})
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// placeholder transforms a zero image with ignore-label maps into out. If
// even that fails the slot is written directly.
func (s *SegSource) placeholder(out transform.Output) {
	zero := imgproc.New(s.probeRows, s.probeCols, s.channels, imgproc.Uint8)
	if err := s.engine.Transform(zero, nil, nil, out); err == nil {
		return
	}
	ignore := float32(s.engine.Params().IgnoreLabel)
	clear(out.Data)
	for i := range out.Label {
		out.Label[i] = ignore
		out.Edge[i] = ignore
	}
}

func (s *SegSource) loadImage(ctx context.Context, path string) (*imgproc.Mat, error) {
	return s.loader.Load(ctx, path, s.opts.NewHeight, s.opts.NewWidth, s.opts.Color)
}

// loadLabels returns the mask and edge for sample. Nil maps stand for
// ignore-label fills.
func (s *SegSource) loadLabels(ctx context.Context, sample catalog.Sample, img *imgproc.Mat) (mask, edge *imgproc.Mat, err error) {
	switch s.opts.LabelType {
	case catalog.LabelImage:
		mask = imgproc.Filled(img.Rows, img.Cols, 1, imgproc.Uint8, float64(sample.MaskClass))
		edge = imgproc.Filled(img.Rows, img.Cols, 1, imgproc.Uint8, float64(sample.EdgeClass))
		return mask, edge, nil
	case catalog.LabelPixel:
		if !sample.HasLabels() {
			return nil, nil, nil
		}
		if mask, err = s.loadLabel(ctx, sample.Mask); err != nil {
			return nil, nil, err
		}
		if edge, err = s.loadLabel(ctx, sample.Edge); err != nil {
			return nil, nil, err
		}
		return mask, edge, nil
	default:
		return nil, nil, nil
	}
}

// loadLabel reads a label map at native size and resamples it with nearest
// neighbour so no new classes appear.
func (s *SegSource) loadLabel(ctx context.Context, path string) (*imgproc.Mat, error) {
	m, err := s.loader.Load(ctx, path, 0, 0, false)
	if err != nil {
		return nil, err
	}
	if s.opts.NewHeight > 0 && (m.Rows != s.opts.NewHeight || m.Cols != s.opts.NewWidth) {
		m = s.opts.Backend.Resize(m, s.opts.NewHeight, s.opts.NewWidth, imgproc.Nearest)
	}
	return m, nil
}
