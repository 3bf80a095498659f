// Package meanfile reads and writes the per-pixel mean image subtracted
// during normalization.
//
// The file is a MessagePack stream: the magic string, a format version,
// channels, rows, cols, then an array of channels*rows*cols float32 values in
// channel-major (CHW) order. Files ending in ".zst" are zstd-compressed.
package meanfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/tinylib/msgp/msgp"

	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/imgproc"
)

const (
	magic   = "segfeed-mean"
	version = 1
)

// Image is a mean image in CHW layout.
type Image struct {
	Channels int
	Rows     int
	Cols     int
	Data     []float32
}

// At returns the mean at channel c, row h, column w.
func (m *Image) At(c, h, w int) float32 {
	return m.Data[(c*m.Rows+h)*m.Cols+w]
}

// Encode writes m to w.
func Encode(w io.Writer, m *Image) error {
	if len(m.Data) != m.Channels*m.Rows*m.Cols {
		return fmt.Errorf("mean image has %d values, want %d", len(m.Data), m.Channels*m.Rows*m.Cols)
	}
	mw := msgp.NewWriter(w)
	for _, err := range []error{
		mw.WriteString(magic),
		mw.WriteInt(version),
		mw.WriteInt(m.Channels),
		mw.WriteInt(m.Rows),
		mw.WriteInt(m.Cols),
		mw.WriteArrayHeader(uint32(len(m.Data))),
	} {
		if err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for _, v := range m.Data {
		if err := mw.WriteFloat32(v); err != nil {
			return fmt.Errorf("writing values: %w", err)
		}
	}
	return mw.Flush()
}

// Decode reads a mean image from r.
func Decode(r io.Reader) (*Image, error) {
	mr := msgp.NewReader(r)
	got, err := mr.ReadString()
	if err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("not a mean file (magic %q)", got)
	}
	v, err := mr.ReadInt()
	if err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if v != version {
		return nil, fmt.Errorf("unsupported mean file version %d", v)
	}

	m := &Image{}
	for _, dst := range []*int{&m.Channels, &m.Rows, &m.Cols} {
		if *dst, err = mr.ReadInt(); err != nil {
			return nil, fmt.Errorf("reading dimensions: %w", err)
		}
		if *dst <= 0 {
			return nil, fmt.Errorf("invalid dimension %d", *dst)
		}
	}
	n, err := mr.ReadArrayHeader()
	if err != nil {
		return nil, fmt.Errorf("reading values: %w", err)
	}
	want := m.Channels * m.Rows * m.Cols
	if int(n) != want {
		return nil, &errdefs.ShapeMismatchError{
			What: "mean data",
			Want: [3]int{m.Channels, m.Rows, m.Cols},
			Got:  [3]int{1, 1, int(n)},
		}
	}
	m.Data = make([]float32, want)
	for i := range m.Data {
		if m.Data[i], err = mr.ReadFloat32(); err != nil {
			return nil, fmt.Errorf("reading value %d: %w", i, err)
		}
	}
	return m, nil
}

// Write stores m at path, compressing when path ends in ".zst".
func Write(path string, m *Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create mean file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if !compressed(path) {
		if err := Encode(bw, m); err != nil {
			return err
		}
		return bw.Flush()
	}

	enc, err := zstd.NewWriter(bw, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("zstd encoder: %w", err)
	}
	if err := Encode(enc, m); err != nil {
		return errors.Join(err, enc.Close())
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd encoder: %w", err)
	}
	return bw.Flush()
}

// Load reads the mean image at path.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mean file: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if compressed(path) {
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	m, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func compressed(path string) bool { return strings.HasSuffix(path, ".zst") }

// Accumulator computes the per-pixel mean of equally sized images.
type Accumulator struct {
	sum      []float64
	channels int
	rows     int
	cols     int
	count    int
}

// Add folds one HWC image into the running sum.
func (a *Accumulator) Add(m *imgproc.Mat) error {
	if a.count == 0 {
		a.channels, a.rows, a.cols = m.Channels, m.Rows, m.Cols
		a.sum = make([]float64, m.Channels*m.Rows*m.Cols)
	} else if m.Channels != a.channels || m.Rows != a.rows || m.Cols != a.cols {
		return &errdefs.ShapeMismatchError{
			What: "image",
			Want: [3]int{a.channels, a.rows, a.cols},
			Got:  [3]int{m.Channels, m.Rows, m.Cols},
		}
	}
	for h := range a.rows {
		for w := range a.cols {
			for c := range a.channels {
				a.sum[(c*a.rows+h)*a.cols+w] += m.At(h, w, c)
			}
		}
	}
	a.count++
	return nil
}

// Count returns how many images were added.
func (a *Accumulator) Count() int { return a.count }

// Mean returns the mean image. It fails with errdefs.ErrEmptyCatalog when
// nothing was added.
func (a *Accumulator) Mean() (*Image, error) {
	if a.count == 0 {
		return nil, errdefs.ErrEmptyCatalog
	}
	out := &Image{Channels: a.channels, Rows: a.rows, Cols: a.cols, Data: make([]float32, len(a.sum))}
	for i, s := range a.sum {
		out.Data[i] = float32(s / float64(a.count))
	}
	return out, nil
}
