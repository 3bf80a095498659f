// Package imgproc provides the pixel buffer used by the augmentation engine
// and the Backend capability interface its geometric and photometric
// operations are expressed against.
package imgproc

import (
	"fmt"
	"math"
)

// Depth is the nominal element type of a Mat. Pixels are always stored as
// float64; Uint8 mats are rounded and clamped to [0, 255] after every
// resampling operation, matching 8-bit image semantics.
type Depth int

const (
	Uint8 Depth = iota
	Float64
)

func (d Depth) String() string {
	if d == Uint8 {
		return "uint8"
	}
	return "float64"
}

// Mat is a dense row-major image with interleaved channels (HWC).
type Mat struct {
	Pix      []float64
	Rows     int
	Cols     int
	Channels int
	Depth    Depth
}

// New allocates a zeroed Mat.
func New(rows, cols, channels int, depth Depth) *Mat {
	return &Mat{
		Pix:      make([]float64, rows*cols*channels),
		Rows:     rows,
		Cols:     cols,
		Channels: channels,
		Depth:    depth,
	}
}

// Filled allocates a Mat with every element set to v.
func Filled(rows, cols, channels int, depth Depth, v float64) *Mat {
	m := New(rows, cols, channels, depth)
	if v != 0 {
		for i := range m.Pix {
			m.Pix[i] = v
		}
	}
	return m
}

// FromBytes wraps 8-bit HWC pixel data.
func FromBytes(rows, cols, channels int, pix []uint8) (*Mat, error) {
	if len(pix) != rows*cols*channels {
		return nil, fmt.Errorf("pixel buffer has %d bytes, want %d", len(pix), rows*cols*channels)
	}
	m := New(rows, cols, channels, Uint8)
	for i, v := range pix {
		m.Pix[i] = float64(v)
	}
	return m, nil
}

func (m *Mat) index(y, x, c int) int {
	return (y*m.Cols+x)*m.Channels + c
}

// At returns the element at row y, column x, channel c.
func (m *Mat) At(y, x, c int) float64 { return m.Pix[m.index(y, x, c)] }

// Set stores v at row y, column x, channel c.
func (m *Mat) Set(y, x, c int, v float64) { m.Pix[m.index(y, x, c)] = v }

// Empty reports whether the Mat holds no pixels.
func (m *Mat) Empty() bool { return m == nil || m.Rows == 0 || m.Cols == 0 }

// SameSize reports whether o has the same rows and columns.
func (m *Mat) SameSize(o *Mat) bool { return m.Rows == o.Rows && m.Cols == o.Cols }

// Clone returns a deep copy.
func (m *Mat) Clone() *Mat {
	out := *m
	out.Pix = append([]float64(nil), m.Pix...)
	return &out
}

// Saturate rounds and clamps Uint8 mats; Float64 mats are left untouched.
func (m *Mat) Saturate() {
	if m.Depth != Uint8 {
		return
	}
	for i, v := range m.Pix {
		m.Pix[i] = saturate8(v)
	}
}

func saturate8(v float64) float64 {
	v = math.RoundToEven(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
