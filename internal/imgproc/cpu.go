package imgproc

import (
	"math"
	"slices"
)

// CPU is the pure-Go Backend. Its resampling conventions follow OpenCV
// (half-pixel centers for linear resize, inverse mapping for warps,
// reflect-101 borders for filters) so it can be swapped with the OpenCV
// backend without moving label boundaries.
type CPU struct{}

var _ Backend = CPU{}

// NewCPU returns the pure-Go backend.
func NewCPU() CPU { return CPU{} }

// Resize implements Backend.
func (CPU) Resize(src *Mat, rows, cols int, interp Interpolation) *Mat {
	if rows == src.Rows && cols == src.Cols {
		return src.Clone()
	}
	out := New(rows, cols, src.Channels, src.Depth)
	scaleY := float64(src.Rows) / float64(rows)
	scaleX := float64(src.Cols) / float64(cols)
	ch := src.Channels

	if interp == Nearest {
		xs := make([]int, cols)
		for x := range cols {
			xs[x] = min(int(math.Floor(float64(x)*scaleX)), src.Cols-1)
		}
		for y := range rows {
			sy := min(int(math.Floor(float64(y)*scaleY)), src.Rows-1)
			for x, sx := range xs {
				copy(out.Pix[out.index(y, x, 0):out.index(y, x, 0)+ch],
					src.Pix[src.index(sy, sx, 0):src.index(sy, sx, 0)+ch])
			}
		}
		return out
	}

	x0s := make([]int, cols)
	x1s := make([]int, cols)
	wxs := make([]float64, cols)
	for x := range cols {
		x0s[x], x1s[x], wxs[x] = linearCoord(x, scaleX, src.Cols)
	}
	for y := range rows {
		y0, y1, wy := linearCoord(y, scaleY, src.Rows)
		for x := range cols {
			x0, x1, wx := x0s[x], x1s[x], wxs[x]
			for c := range ch {
				top := (1-wx)*src.At(y0, x0, c) + wx*src.At(y0, x1, c)
				bot := (1-wx)*src.At(y1, x0, c) + wx*src.At(y1, x1, c)
				out.Set(y, x, c, (1-wy)*top+wy*bot)
			}
		}
	}
	out.Saturate()
	return out
}

func linearCoord(d int, scale float64, n int) (int, int, float64) {
	f := (float64(d)+0.5)*scale - 0.5
	i0 := int(math.Floor(f))
	w := f - float64(i0)
	if i0 < 0 {
		i0, w = 0, 0
	}
	if i0 >= n-1 {
		i0, w = n-1, 0
	}
	return i0, min(i0+1, n-1), w
}

// WarpAffine implements Backend.
func (CPU) WarpAffine(src *Mat, m Affine, rows, cols int, interp Interpolation, border Border) *Mat {
	inv := m.Invert()
	out := New(rows, cols, src.Channels, src.Depth)
	ch := src.Channels

	for y := range rows {
		for x := range cols {
			sx, sy := inv.Apply(float64(x), float64(y))
			if interp == Nearest {
				ix := int(math.Floor(sx + 0.5))
				iy := int(math.Floor(sy + 0.5))
				for c := range ch {
					out.Set(y, x, c, sample(src, iy, ix, c, border))
				}
				continue
			}
			fx := math.Floor(sx)
			fy := math.Floor(sy)
			wx := sx - fx
			wy := sy - fy
			x0, y0 := int(fx), int(fy)
			for c := range ch {
				top := (1-wx)*sample(src, y0, x0, c, border) + wx*sample(src, y0, x0+1, c, border)
				bot := (1-wx)*sample(src, y0+1, x0, c, border) + wx*sample(src, y0+1, x0+1, c, border)
				out.Set(y, x, c, (1-wy)*top+wy*bot)
			}
		}
	}
	out.Saturate()
	return out
}

// Blur implements Backend.
func (CPU) Blur(src *Mat, kind BlurKind, ksize int) *Mat {
	if ksize <= 1 {
		return src.Clone()
	}
	var out *Mat
	switch kind {
	case Gaussian:
		k := gaussianKernel(ksize)
		out = separable(src, k)
	case Median:
		out = median(src, ksize)
	default:
		k := make([]float64, ksize)
		for i := range k {
			k[i] = 1 / float64(ksize)
		}
		out = separable(src, k)
	}
	out.Saturate()
	return out
}

// CopyMakeBorder implements Backend.
func (CPU) CopyMakeBorder(src *Mat, top, bottom, left, right int, border Border) *Mat {
	out := New(src.Rows+top+bottom, src.Cols+left+right, src.Channels, src.Depth)
	for y := range out.Rows {
		for x := range out.Cols {
			for c := range src.Channels {
				out.Set(y, x, c, sample(src, y-top, x-left, c, border))
			}
		}
	}
	return out
}

func sample(src *Mat, y, x, c int, b Border) float64 {
	yy := borderIndex(y, src.Rows, b.Kind)
	xx := borderIndex(x, src.Cols, b.Kind)
	if yy < 0 || xx < 0 {
		return b.fill(c)
	}
	return src.At(yy, xx, c)
}

// borderIndex maps a possibly out-of-range coordinate back into [0, n), or
// returns -1 when the constant fill value should be used.
func borderIndex(p, n int, kind BorderKind) int {
	if p >= 0 && p < n {
		return p
	}
	switch kind {
	case BorderReplicate:
		if p < 0 {
			return 0
		}
		return n - 1
	case BorderReflect101:
		if n == 1 {
			return 0
		}
		for p < 0 || p >= n {
			if p < 0 {
				p = -p
			} else {
				p = 2*n - 2 - p
			}
		}
		return p
	default:
		return -1
	}
}

// Fixed kernels for small apertures when sigma is derived from the size.
var smallGaussian = map[int][]float64{
	3: {0.25, 0.5, 0.25},
	5: {0.0625, 0.25, 0.375, 0.25, 0.0625},
	7: {0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125},
}

func gaussianKernel(ksize int) []float64 {
	if k, ok := smallGaussian[ksize]; ok {
		return slices.Clone(k)
	}
	sigma := 0.3*(float64(ksize-1)*0.5-1) + 0.8
	k := make([]float64, ksize)
	var sum float64
	for i := range k {
		d := float64(i) - float64(ksize-1)/2
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// separable convolves rows then columns with kernel k anchored at len(k)/2,
// using reflect-101 borders.
func separable(src *Mat, k []float64) *Mat {
	anchor := len(k) / 2
	ch := src.Channels
	tmp := New(src.Rows, src.Cols, ch, Float64)
	for y := range src.Rows {
		for x := range src.Cols {
			for c := range ch {
				var acc float64
				for i, w := range k {
					xx := borderIndex(x+i-anchor, src.Cols, BorderReflect101)
					acc += w * src.At(y, xx, c)
				}
				tmp.Set(y, x, c, acc)
			}
		}
	}
	out := New(src.Rows, src.Cols, ch, src.Depth)
	for y := range src.Rows {
		for x := range src.Cols {
			for c := range ch {
				var acc float64
				for i, w := range k {
					yy := borderIndex(y+i-anchor, src.Rows, BorderReflect101)
					acc += w * tmp.At(yy, x, c)
				}
				out.Set(y, x, c, acc)
			}
		}
	}
	return out
}

func median(src *Mat, ksize int) *Mat {
	anchor := ksize / 2
	out := New(src.Rows, src.Cols, src.Channels, src.Depth)
	window := make([]float64, 0, ksize*ksize)
	for y := range src.Rows {
		for x := range src.Cols {
			for c := range src.Channels {
				window = window[:0]
				for dy := range ksize {
					yy := borderIndex(y+dy-anchor, src.Rows, BorderReplicate)
					for dx := range ksize {
						xx := borderIndex(x+dx-anchor, src.Cols, BorderReplicate)
						window = append(window, src.At(yy, xx, c))
					}
				}
				slices.Sort(window)
				out.Set(y, x, c, window[len(window)/2])
			}
		}
	}
	return out
}
