package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/segfeed/internal/tensor"
)

func TestBlob_ReshapeReusesStorage(t *testing.T) {
	t.Parallel()

	b := tensor.NewBlob(tensor.Shape{2, 3, 4, 4})
	require.Equal(t, 96, b.Count())
	first := &b.Data()[0]

	assert.False(t, b.Reshape(tensor.Shape{2, 1, 4, 4}), "shrinking must not allocate")
	assert.Same(t, first, &b.Data()[0])
	assert.Equal(t, 32, len(b.Data()))

	assert.False(t, b.Reshape(tensor.Shape{2, 3, 4, 4}), "growing back within capacity must not allocate")
	assert.Same(t, first, &b.Data()[0])

	assert.True(t, b.Reshape(tensor.Shape{4, 3, 4, 4}))
	assert.Equal(t, tensor.Shape{4, 3, 4, 4}, b.Shape())
}

func TestBlob_ItemAliasesStorage(t *testing.T) {
	t.Parallel()

	b := tensor.NewBlob(tensor.Shape{3, 2, 2, 2})
	assert.Equal(t, 16, b.Offset(2))

	item := b.Item(1)
	require.Len(t, item, 8)
	item[0] = 7
	item[7] = 9

	assert.Equal(t, float32(7), b.At(1, 0, 0, 0))
	assert.Equal(t, float32(9), b.At(1, 1, 1, 1))
	assert.Equal(t, float32(0), b.At(0, 1, 1, 1))
}

func TestBlob_Checksum(t *testing.T) {
	t.Parallel()

	a := tensor.NewBlob(tensor.Shape{1, 1, 2, 2})
	b := tensor.NewBlob(tensor.Shape{1, 1, 2, 2})
	assert.Equal(t, a.Checksum(), b.Checksum())

	b.Data()[3] = 1
	assert.NotEqual(t, a.Checksum(), b.Checksum())

	// Same contents, different shape.
	c := tensor.NewBlob(tensor.Shape{1, 1, 1, 4})
	assert.NotEqual(t, a.Checksum(), c.Checksum())
}

func TestBlob_CopyFrom(t *testing.T) {
	t.Parallel()

	src := tensor.NewBlob(tensor.Shape{1, 1, 1, 3})
	copy(src.Data(), []float32{1, 2, 3})

	dst := tensor.NewBlob(tensor.Shape{1, 1, 1, 1})
	dst.CopyFrom(src)
	assert.Equal(t, src.Shape(), dst.Shape())
	assert.Equal(t, []float32{1, 2, 3}, dst.Data())
}
