// Package loader decodes sample files into 8-bit pixel buffers.
package loader

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/imgproc"
)

// Loader reads one image. rows and cols of zero keep the native size; color
// selects a 3-channel BGR result instead of a single gray channel.
type Loader interface {
	Load(ctx context.Context, path string, rows, cols int, color bool) (*imgproc.Mat, error)
}

// Options configures a FileLoader.
type Options struct {
	// Root is prepended to every relative path.
	Root string
	// Backend performs resizing. Defaults to the CPU backend.
	Backend imgproc.Backend
	// BytesPerSec caps read throughput across all loads; zero is unlimited.
	BytesPerSec int64
}

// FileLoader decodes PNG, JPEG and GIF files from disk.
type FileLoader struct {
	root    string
	backend imgproc.Backend
	limiter *rate.Limiter
}

// New creates a FileLoader.
func New(opts Options) *FileLoader {
	l := &FileLoader{root: opts.Root, backend: opts.Backend}
	if l.backend == nil {
		l.backend = imgproc.NewCPU()
	}
	if opts.BytesPerSec > 0 {
		l.limiter = NewBWLimiter(opts.BytesPerSec)
	}
	return l
}

// Resolve returns the on-disk path for a manifest path.
func (l *FileLoader) Resolve(path string) string {
	if l.root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.root, path)
}

// Load decodes path and, when both rows and cols are positive, resizes it with
// linear interpolation. Failures are *errdefs.LoadError.
func (l *FileLoader) Load(ctx context.Context, path string, rows, cols int, color bool) (*imgproc.Mat, error) {
	full := l.Resolve(path)
	img, err := l.decode(ctx, full)
	if err != nil {
		return nil, &errdefs.LoadError{Path: full, Err: err}
	}
	m := toMat(img, color)
	if rows > 0 && cols > 0 && (m.Rows != rows || m.Cols != cols) {
		m = l.backend.Resize(m, rows, cols, imgproc.Linear)
	}
	return m, nil
}

func (l *FileLoader) decode(ctx context.Context, path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if l.limiter != nil {
		r = &rateLimitedReader{ctx: ctx, r: f, limiter: l.limiter}
	}
	img, _, err := image.Decode(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

// toMat converts a decoded image to HWC bytes in BGR order, or to a single
// luma channel.
func toMat(img image.Image, bgr bool) *imgproc.Mat {
	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()
	channels := 1
	if bgr {
		channels = 3
	}
	m := imgproc.New(rows, cols, channels, imgproc.Uint8)

	if g, ok := img.(*image.Gray); ok {
		for y := range rows {
			for x := range cols {
				v := float64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
				for c := range channels {
					m.Set(y, x, c, v)
				}
			}
		}
		return m
	}

	for y := range rows {
		for x := range cols {
			px := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if bgr {
				m.Set(y, x, 0, float64(px.B))
				m.Set(y, x, 1, float64(px.G))
				m.Set(y, x, 2, float64(px.R))
				continue
			}
			m.Set(y, x, 0, luma(px))
		}
	}
	return m
}

// luma uses the ITU-R BT.601 weights, rounded to the nearest byte.
func luma(px color.NRGBA) float64 {
	y := 0.299*float64(px.R) + 0.587*float64(px.G) + 0.114*float64(px.B)
	return float64(int(y + 0.5))
}
