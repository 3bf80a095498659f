package meanfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/imgproc"
	"github.com/bamsammich/segfeed/internal/meanfile"
)

func sample() *meanfile.Image {
	return &meanfile.Image{
		Channels: 2, Rows: 2, Cols: 3,
		Data: []float32{0, 1, 2, 3, 4, 5, 10, 11, 12, 13, 14, 15.5},
	}
}

func TestWriteLoad(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"mean.msgp", "mean.msgp.zst"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, meanfile.Write(path, sample()))

			got, err := meanfile.Load(path)
			require.NoError(t, err)
			assert.Equal(t, sample(), got)
			assert.Equal(t, float32(15.5), got.At(1, 1, 2))
			assert.Equal(t, float32(3), got.At(0, 1, 0))
		})
	}
}

func TestCompressedIsZstd(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mean.zst")
	require.NoError(t, meanfile.Write(path, sample()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, raw[:4])
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	_, err := meanfile.Decode(bytes.NewReader([]byte{0xa3, 'f', 'o', 'o'}))
	assert.ErrorContains(t, err, "not a mean file")

	var buf bytes.Buffer
	require.NoError(t, meanfile.Encode(&buf, sample()))
	_, err = meanfile.Decode(bytes.NewReader(buf.Bytes()[:buf.Len()-3]))
	assert.Error(t, err)

	bad := sample()
	bad.Data = bad.Data[:5]
	assert.Error(t, meanfile.Encode(&buf, bad))
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()
	_, err := meanfile.Load(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestAccumulator(t *testing.T) {
	t.Parallel()

	var acc meanfile.Accumulator
	_, err := acc.Mean()
	assert.ErrorIs(t, err, errdefs.ErrEmptyCatalog)

	a := imgproc.Filled(2, 2, 2, imgproc.Uint8, 10)
	b := imgproc.Filled(2, 2, 2, imgproc.Uint8, 20)
	b.Set(0, 1, 1, 40)
	require.NoError(t, acc.Add(a))
	require.NoError(t, acc.Add(b))
	assert.Equal(t, 2, acc.Count())

	m, err := acc.Mean()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Channels)
	assert.Equal(t, float32(15), m.At(0, 0, 1))
	assert.Equal(t, float32(25), m.At(1, 0, 1))

	err = acc.Add(imgproc.New(3, 2, 2, imgproc.Uint8))
	assert.ErrorIs(t, err, errdefs.ErrShapeMismatch)
}
