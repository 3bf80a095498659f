// Package tensor provides Blob, the N×C×H×W float32 buffer batches are
// assembled into.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Shape is (num, channels, height, width).
type Shape [4]int

// Count is the number of elements the shape holds.
func (s Shape) Count() int { return s[0] * s[1] * s[2] * s[3] }

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%dx%d", s[0], s[1], s[2], s[3])
}

// Blob is a rectangular row-major, channel-major float32 buffer.
type Blob struct {
	data  []float32
	shape Shape
}

// NewBlob allocates a zeroed Blob of the given shape.
func NewBlob(shape Shape) *Blob {
	return &Blob{data: make([]float32, shape.Count()), shape: shape}
}

// Shape returns the current shape.
func (b *Blob) Shape() Shape { return b.shape }

// Count returns the number of elements.
func (b *Blob) Count() int { return b.shape.Count() }

// Data returns the backing storage. It is only valid until the next Reshape.
func (b *Blob) Data() []float32 { return b.data }

// Reshape changes the shape in place. The backing array is reused whenever
// its capacity suffices; it reports whether a new array was allocated.
func (b *Blob) Reshape(shape Shape) bool {
	n := shape.Count()
	b.shape = shape
	if cap(b.data) >= n {
		b.data = b.data[:n]
		return false
	}
	b.data = make([]float32, n)
	return true
}

// Offset is the flat index of the first element of item n.
func (b *Blob) Offset(n int) int {
	return n * b.shape[1] * b.shape[2] * b.shape[3]
}

// Item returns the C×H×W sub-slice for item n, aliasing the Blob's storage.
func (b *Blob) Item(n int) []float32 {
	off := b.Offset(n)
	return b.data[off : off+b.shape[1]*b.shape[2]*b.shape[3]]
}

// At returns the element at (n, c, h, w).
func (b *Blob) At(n, c, h, w int) float32 {
	return b.data[((n*b.shape[1]+c)*b.shape[2]+h)*b.shape[3]+w]
}

// CopyFrom reshapes b to src's shape and copies its contents.
func (b *Blob) CopyFrom(src *Blob) {
	b.Reshape(src.shape)
	copy(b.data, src.data)
}

// Checksum is an xxhash64 digest of the shape and contents. Two runs that
// replay the same random stream produce equal checksums batch for batch.
func (b *Blob) Checksum() uint64 {
	h := xxhash.New()
	var buf [8]byte
	for _, d := range b.shape {
		binary.LittleEndian.PutUint64(buf[:], uint64(d))
		_, _ = h.Write(buf[:])
	}
	for _, v := range b.data {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
		_, _ = h.Write(buf[:4])
	}
	return h.Sum64()
}
