// Package transform implements the per-sample augmentation engine. An image
// and its mask and edge maps pass through the same geometric operations in
// lockstep so label pixels stay aligned with the image pixels they describe.
package transform

import (
	"fmt"
	"math/rand/v2"

	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/imgproc"
)

// smoothKinds lists the filters random smoothing chooses from.
var smoothKinds = [...]imgproc.BlurKind{
	imgproc.Gaussian,
	imgproc.BoxBlur,
	imgproc.Median,
	imgproc.BoxFilter,
}

// Output receives one transformed sample. Data is channels×rows×cols, Label
// and Edge are rows×cols, all row-major; typically they alias one item of a
// batch blob.
type Output struct {
	Data  []float32
	Label []float32
	Edge  []float32
}

// Engine applies random augmentation and normalization. It owns its random
// source and is not safe for concurrent use.
type Engine struct {
	params  Params
	backend imgproc.Backend
	rng     *rand.Rand
	cropH   int
	cropW   int
	scale   float64
}

// NewEngine validates p and seeds the engine's generator once.
func NewEngine(p Params, backend imgproc.Backend, seed uint64) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		backend = imgproc.NewCPU()
	}
	e := &Engine{
		params:  p,
		backend: backend,
		rng:     newRand(seed),
		scale:   p.Scale,
	}
	if e.scale == 0 {
		e.scale = 1
	}
	e.cropH, e.cropW = p.Crop()
	return e, nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.params }

// InferShape returns the per-sample output shape for img: its channel count
// and the crop height and width.
func (e *Engine) InferShape(img *imgproc.Mat) (channels, rows, cols int) {
	return img.Channels, e.cropH, e.cropW
}

// Transform augments img, mask and edge and writes the normalized result to
// out. A nil mask or edge is treated as a map filled with the ignore label.
// img must be 8-bit; mask and edge must be single-channel and the same size
// as img.
func (e *Engine) Transform(img, mask, edge *imgproc.Mat, out Output) error {
	p := &e.params
	if img.Empty() {
		return fmt.Errorf("%w: empty image", errdefs.ErrShapeMismatch)
	}
	ignore := float64(p.IgnoreLabel)
	if mask == nil {
		mask = imgproc.Filled(img.Rows, img.Cols, 1, imgproc.Uint8, ignore)
	}
	if edge == nil {
		edge = imgproc.Filled(img.Rows, img.Cols, 1, imgproc.Uint8, ignore)
	}
	if err := e.check(img, mask, edge, out); err != nil {
		return err
	}
	mean := e.meanValues(img.Channels)

	// Draw order is fixed so a seed replays the same augmentation stream.
	mirror := p.Mirror && e.rng.IntN(2) == 1
	smooth := p.smoothing() && e.rng.Float64() > 1-p.ApplyProbability

	if len(p.ScaleFactors) > 0 {
		f := p.ScaleFactors[e.rng.IntN(len(p.ScaleFactors))]
		if f != 1 {
			rows := max(1, int(float64(img.Rows)*f))
			cols := max(1, int(float64(img.Cols)*f))
			img = e.backend.Resize(img, rows, cols, imgproc.Linear)
			mask = e.backend.Resize(mask, rows, cols, imgproc.Nearest)
			edge = e.backend.Resize(edge, rows, cols, imgproc.Nearest)
		}
	}

	if smooth {
		kind := smoothKinds[e.rng.IntN(len(smoothKinds))]
		k := 1 + 2*e.rng.IntN((p.MaxSmooth-1)/2+1)
		if kind == imgproc.BoxFilter {
			k *= 2
		}
		img = e.backend.Blur(img, kind, k)
	}

	// From here on the image is float so border fills keep fractional means.
	promoted := *img
	promoted.Depth = imgproc.Float64
	img = &promoted

	imgBorder := imgproc.Reflect()
	if mean != nil {
		imgBorder = imgproc.Constant(mean...)
	}
	labelBorder := imgproc.Constant(ignore)

	if p.MaxTranslation > 0 {
		t := p.MaxTranslation
		tx := e.rng.IntN(2*t+1) - t
		ty := e.rng.IntN(2*t+1) - t
		if tx != 0 || ty != 0 {
			m := imgproc.Translation(float64(tx), float64(ty))
			img = e.backend.WarpAffine(img, m, img.Rows, img.Cols, imgproc.Linear, imgBorder)
			mask = e.backend.WarpAffine(mask, m, mask.Rows, mask.Cols, imgproc.Nearest, labelBorder)
			edge = e.backend.WarpAffine(edge, m, edge.Rows, edge.Cols, imgproc.Nearest, labelBorder)
		}
	}

	if p.MaxRotationAngle > 0 {
		a := p.MaxRotationAngle
		if angle := e.rng.IntN(2*a+1) - a; angle != 0 {
			m, rows, cols := imgproc.RotateToFit(img.Rows, img.Cols, float64(angle))
			img = e.backend.WarpAffine(img, m, rows, cols, imgproc.Linear, imgBorder)
			mask = e.backend.WarpAffine(mask, m, rows, cols, imgproc.Nearest, labelBorder)
			edge = e.backend.WarpAffine(edge, m, rows, cols, imgproc.Nearest, labelBorder)
		}
	}

	padH := max(e.cropH-img.Rows, 0)
	padW := max(e.cropW-img.Cols, 0)
	if padH > 0 || padW > 0 {
		img = e.backend.CopyMakeBorder(img, 0, padH, 0, padW, imgBorder)
		mask = e.backend.CopyMakeBorder(mask, 0, padH, 0, padW, labelBorder)
		edge = e.backend.CopyMakeBorder(edge, 0, padH, 0, padW, labelBorder)
	}

	var hOff, wOff int
	if p.Phase == Train {
		hOff = e.rng.IntN(img.Rows - e.cropH + 1)
		wOff = e.rng.IntN(img.Cols - e.cropW + 1)
	} else {
		hOff = (img.Rows - e.cropH) / 2
		wOff = (img.Cols - e.cropW) / 2
	}

	if m := p.Mean; m != nil && (m.Rows != img.Rows || m.Cols != img.Cols) {
		return &errdefs.ShapeMismatchError{
			What: "canvas",
			Want: [3]int{m.Channels, m.Rows, m.Cols},
			Got:  [3]int{img.Channels, img.Rows, img.Cols},
		}
	}

	e.write(img, mask, edge, hOff, wOff, mirror, mean, out)
	return nil
}

// write crops at (hOff, wOff), mirrors, normalizes and stores into out.
func (e *Engine) write(img, mask, edge *imgproc.Mat, hOff, wOff int, mirror bool, mean []float64, out Output) {
	rows, cols, channels := e.cropH, e.cropW, img.Channels
	for h := range rows {
		for w := range cols {
			dw := w
			if mirror {
				dw = cols - 1 - w
			}
			y, x := hOff+h, wOff+w
			for c := range channels {
				v := img.At(y, x, c)
				switch {
				case e.params.Mean != nil:
					v -= float64(e.params.Mean.At(c, y, x))
				case mean != nil:
					v -= mean[c]
				}
				out.Data[(c*rows+h)*cols+dw] = float32(v * e.scale)
			}
			out.Label[h*cols+dw] = float32(mask.At(y, x, 0))
			out.Edge[h*cols+dw] = float32(edge.At(y, x, 0))
		}
	}
}

// meanValues returns one mean per channel, replicating a single value, or
// nil when no mean values are configured.
func (e *Engine) meanValues(channels int) []float64 {
	mv := e.params.MeanValues
	if len(mv) == 0 {
		return nil
	}
	if len(mv) == 1 && channels > 1 {
		out := make([]float64, channels)
		for i := range out {
			out[i] = mv[0]
		}
		return out
	}
	return mv
}

func (e *Engine) check(img, mask, edge *imgproc.Mat, out Output) error {
	want := [3]int{1, img.Rows, img.Cols}
	for _, l := range []struct {
		name string
		m    *imgproc.Mat
	}{{"mask", mask}, {"edge", edge}} {
		if l.m.Channels != 1 || !l.m.SameSize(img) {
			return &errdefs.ShapeMismatchError{
				What: l.name, Want: want, Got: [3]int{l.m.Channels, l.m.Rows, l.m.Cols},
			}
		}
	}
	if n := len(e.params.MeanValues); n > 1 && n != img.Channels {
		return &errdefs.ShapeMismatchError{
			What: "mean values", Want: [3]int{img.Channels, 1, 1}, Got: [3]int{n, 1, 1},
		}
	}
	if m := e.params.Mean; m != nil && m.Channels != img.Channels {
		return &errdefs.ShapeMismatchError{
			What: "mean image",
			Want: [3]int{img.Channels, m.Rows, m.Cols},
			Got:  [3]int{m.Channels, m.Rows, m.Cols},
		}
	}
	plane := e.cropH * e.cropW
	if len(out.Data) != img.Channels*plane || len(out.Label) != plane || len(out.Edge) != plane {
		return fmt.Errorf("%w: output buffers hold %d/%d/%d values, want %d/%d/%d",
			errdefs.ErrShapeMismatch, len(out.Data), len(out.Label), len(out.Edge),
			img.Channels*plane, plane, plane)
	}
	return nil
}
