//go:build opencv

// Package cvbackend implements imgproc.Backend on top of OpenCV via gocv.
// It needs cgo and an OpenCV installation, so it is only compiled with the
// opencv build tag.
package cvbackend

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/bamsammich/segfeed/internal/imgproc"
)

// Backend is the OpenCV-backed imgproc.Backend.
type Backend struct{}

var _ imgproc.Backend = Backend{}

// New returns the OpenCV backend.
func New() Backend { return Backend{} }

func matType(m *imgproc.Mat) gocv.MatType {
	base := gocv.MatTypeCV64F
	if m.Depth == imgproc.Uint8 {
		base = gocv.MatTypeCV8U
	}
	return base + gocv.MatType((m.Channels-1)*8)
}

func toCV(m *imgproc.Mat) (gocv.Mat, error) {
	if m.Depth == imgproc.Uint8 {
		buf := make([]byte, len(m.Pix))
		for i, v := range m.Pix {
			buf[i] = uint8(v)
		}
		return gocv.NewMatFromBytes(m.Rows, m.Cols, matType(m), buf)
	}
	buf := make([]byte, 8*len(m.Pix))
	for i, v := range m.Pix {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return gocv.NewMatFromBytes(m.Rows, m.Cols, matType(m), buf)
}

func fromCV(cv gocv.Mat, channels int, depth imgproc.Depth) *imgproc.Mat {
	out := imgproc.New(cv.Rows(), cv.Cols(), channels, depth)
	raw := cv.ToBytes()
	if depth == imgproc.Uint8 {
		for i := range out.Pix {
			out.Pix[i] = float64(raw[i])
		}
		return out
	}
	for i := range out.Pix {
		out.Pix[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return out
}

// borderValue packs per-channel fill values into gocv's BGRA scalar. gocv
// only accepts 8-bit border values, so fills are rounded.
func borderValue(b imgproc.Border) color.RGBA {
	ch := func(i int) uint8 {
		if i >= len(b.Value) {
			return 0
		}
		return uint8(math.Max(0, math.Min(255, math.Round(b.Value[i]))))
	}
	return color.RGBA{B: ch(0), G: ch(1), R: ch(2), A: ch(3)}
}

func borderType(b imgproc.Border) gocv.BorderType {
	switch b.Kind {
	case imgproc.BorderReflect101:
		return gocv.BorderReflect101
	case imgproc.BorderReplicate:
		return gocv.BorderReplicate
	default:
		return gocv.BorderConstant
	}
}

func interpolation(i imgproc.Interpolation) gocv.InterpolationFlags {
	if i == imgproc.Nearest {
		return gocv.InterpolationNearestNeighbor
	}
	return gocv.InterpolationLinear
}

// run converts src, applies op and converts back. Conversion failures fall
// back to a copy so the caller always receives a well-formed Mat.
func run(src *imgproc.Mat, op func(in gocv.Mat, out *gocv.Mat)) *imgproc.Mat {
	in, err := toCV(src)
	if err != nil {
		return src.Clone()
	}
	defer in.Close()
	out := gocv.NewMat()
	defer out.Close()
	op(in, &out)
	return fromCV(out, src.Channels, src.Depth)
}

// Resize implements imgproc.Backend.
func (Backend) Resize(src *imgproc.Mat, rows, cols int, interp imgproc.Interpolation) *imgproc.Mat {
	return run(src, func(in gocv.Mat, out *gocv.Mat) {
		gocv.Resize(in, out, image.Point{X: cols, Y: rows}, 0, 0, interpolation(interp))
	})
}

// WarpAffine implements imgproc.Backend.
func (Backend) WarpAffine(
	src *imgproc.Mat,
	m imgproc.Affine,
	rows, cols int,
	interp imgproc.Interpolation,
	border imgproc.Border,
) *imgproc.Mat {
	return run(src, func(in gocv.Mat, out *gocv.Mat) {
		t := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
		defer t.Close()
		for r := range 2 {
			for c := range 3 {
				t.SetDoubleAt(r, c, m[r][c])
			}
		}
		gocv.WarpAffineWithParams(in, out, t, image.Point{X: cols, Y: rows},
			interpolation(interp), borderType(border), borderValue(border))
	})
}

// Blur implements imgproc.Backend.
func (Backend) Blur(src *imgproc.Mat, kind imgproc.BlurKind, ksize int) *imgproc.Mat {
	if ksize <= 1 {
		return src.Clone()
	}
	return run(src, func(in gocv.Mat, out *gocv.Mat) {
		k := image.Point{X: ksize, Y: ksize}
		switch kind {
		case imgproc.Gaussian:
			gocv.GaussianBlur(in, out, k, 0, 0, gocv.BorderReflect101)
		case imgproc.Median:
			gocv.MedianBlur(in, out, ksize)
		case imgproc.BoxFilter:
			gocv.BoxFilter(in, out, -1, k)
		default:
			gocv.Blur(in, out, k)
		}
	})
}

// CopyMakeBorder implements imgproc.Backend.
func (Backend) CopyMakeBorder(src *imgproc.Mat, top, bottom, left, right int, border imgproc.Border) *imgproc.Mat {
	return run(src, func(in gocv.Mat, out *gocv.Mat) {
		gocv.CopyMakeBorder(in, out, top, bottom, left, right, borderType(border), borderValue(border))
	})
}
