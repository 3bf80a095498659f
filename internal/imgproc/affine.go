package imgproc

import "math"

// Affine is a 2×3 forward transform: dst = A·src + t.
type Affine [2][3]float64

// Translation returns the transform shifting content by (tx, ty).
func Translation(tx, ty float64) Affine {
	return Affine{{1, 0, tx}, {0, 1, ty}}
}

// Rotation returns the transform rotating by angle degrees
// (counter-clockwise in image coordinates) about (cx, cy).
func Rotation(cx, cy, angle float64) Affine {
	beta, alpha := sincos(angle)
	return Affine{
		{alpha, beta, (1-alpha)*cx - beta*cy},
		{-beta, alpha, beta*cx + (1-alpha)*cy},
	}
}

// sincos returns the sine and cosine of angle degrees, exact at multiples of
// 90 so right-angle rotations map pixels onto pixels.
func sincos(angle float64) (float64, float64) {
	s, c := math.Sincos(angle * math.Pi / 180)
	return snap(s), snap(c)
}

func snap(v float64) float64 {
	const eps = 1e-12
	switch {
	case math.Abs(v) < eps:
		return 0
	case math.Abs(v) > 1-eps:
		return math.Copysign(1, v)
	}
	return v
}

// Invert returns the inverse transform. A singular matrix yields the zero
// transform.
func (a Affine) Invert() Affine {
	det := a[0][0]*a[1][1] - a[0][1]*a[1][0]
	if det == 0 {
		return Affine{}
	}
	d := 1 / det
	i00 := a[1][1] * d
	i01 := -a[0][1] * d
	i10 := -a[1][0] * d
	i11 := a[0][0] * d
	return Affine{
		{i00, i01, -i00*a[0][2] - i01*a[1][2]},
		{i10, i11, -i10*a[0][2] - i11*a[1][2]},
	}
}

// Apply maps (x, y) through the transform.
func (a Affine) Apply(x, y float64) (float64, float64) {
	return a[0][0]*x + a[0][1]*y + a[0][2], a[1][0]*x + a[1][1]*y + a[1][2]
}

// RotateToFit returns the rotation of a rows×cols image about its center and
// the canvas size that holds the whole rotated content. The canvas is the
// integer bounding rectangle of the rotated corners. Pixels turn about the
// center of the pixel grid and land on the canvas at a whole-pixel offset,
// so rotations by multiples of 90 degrees resample nothing.
func RotateToFit(rows, cols int, angle float64) (Affine, int, int) {
	cx := float32(cols) / 2
	cy := float32(rows) / 2

	sin, cos := sincos(angle)
	b := float32(cos) * 0.5
	a := float32(sin) * 0.5
	w, h := float32(cols), float32(rows)

	var xs, ys [4]float32
	xs[0] = cx - a*h - b*w
	ys[0] = cy + b*h - a*w
	xs[1] = cx + a*h - b*w
	ys[1] = cy - b*h - a*w
	xs[2] = 2*cx - xs[0]
	ys[2] = 2*cy - ys[0]
	xs[3] = 2*cx - xs[1]
	ys[3] = 2*cy - ys[1]

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < 4; i++ {
		minX = min(minX, xs[i])
		maxX = max(maxX, xs[i])
		minY = min(minY, ys[i])
		maxY = max(maxY, ys[i])
	}
	x0 := int(math.Floor(float64(minX)))
	y0 := int(math.Floor(float64(minY)))
	bw := int(math.Ceil(float64(maxX))) - x0 + 1
	bh := int(math.Ceil(float64(maxY))) - y0 + 1

	px := float64(cols-1) / 2
	py := float64(rows-1) / 2
	m := Rotation(px, py, angle)
	m[0][2] = math.Round(m[0][2] + float64(bw-1)/2 - px)
	m[1][2] = math.Round(m[1][2] + float64(bh-1)/2 - py)
	return m, bh, bw
}
