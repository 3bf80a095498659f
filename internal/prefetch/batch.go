// Package prefetch assembles batches on a background worker and hands them
// to the consumer through a fixed pool of reusable buffers.
package prefetch

import (
	"github.com/bamsammich/segfeed/internal/catalog"
	"github.com/bamsammich/segfeed/internal/tensor"
	"github.com/bamsammich/segfeed/internal/transform"
)

// Batch owns the data, label and edge buffers for one batch. The same Batch
// values are reused for the life of a Pipeline.
type Batch struct {
	Data  *tensor.Blob // N×C×H×W
	Label *tensor.Blob // N×1×H×W
	Edge  *tensor.Blob // N×1×H×W

	// Seq numbers batches in assembly order, starting at 1.
	Seq int64
	// Position is the catalog position after the batch's last sample.
	Position catalog.Position
	// Failed counts slots filled from placeholders.
	Failed int
}

// NewBatch returns a Batch with empty buffers; the source shapes them on the
// first fill.
func NewBatch() *Batch {
	return &Batch{
		Data:  tensor.NewBlob(tensor.Shape{}),
		Label: tensor.NewBlob(tensor.Shape{}),
		Edge:  tensor.NewBlob(tensor.Shape{}),
	}
}

// Size returns the number of items the batch holds.
func (b *Batch) Size() int { return b.Data.Shape()[0] }

// Reshape sizes all three buffers for n items of channels×rows×cols,
// reporting whether the shape changed.
func (b *Batch) Reshape(n, channels, rows, cols int) bool {
	shape := tensor.Shape{n, channels, rows, cols}
	if b.Data.Shape() == shape {
		return false
	}
	b.Data.Reshape(shape)
	b.Label.Reshape(tensor.Shape{n, 1, rows, cols})
	b.Edge.Reshape(tensor.Shape{n, 1, rows, cols})
	return true
}

// Slot returns the sub-slices for item i, aliasing the batch buffers.
func (b *Batch) Slot(i int) transform.Output {
	return transform.Output{
		Data:  b.Data.Item(i),
		Label: b.Label.Item(i),
		Edge:  b.Edge.Item(i),
	}
}
