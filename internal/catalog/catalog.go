// Package catalog holds the ordered list of samples the prefetch worker walks,
// with epoch wraparound, optional reshuffling, and seekable positions.
package catalog

import (
	"fmt"
	"math/rand/v2"

	"github.com/bamsammich/segfeed/internal/errdefs"
)

// Sample describes one training example. Mask and Edge are empty when the
// manifest carries no label paths; MaskClass and EdgeClass are only set for
// LabelImage manifests.
type Sample struct {
	Image     string
	Mask      string
	Edge      string
	MaskClass int
	EdgeClass int
}

// HasLabels reports whether the sample names label files.
func (s Sample) HasLabels() bool { return s.Mask != "" && s.Edge != "" }

// Options controls ordering.
type Options struct {
	Shuffle bool
	Seed    uint64
	// RandSkip skips a random number of leading samples in [0, RandSkip) so
	// that parallel runs start at different points.
	RandSkip int
}

// Position identifies the next sample to be returned.
type Position struct {
	Epoch  int
	Cursor int
}

func (p Position) String() string { return fmt.Sprintf("epoch %d cursor %d", p.Epoch, p.Cursor) }

// Catalog is the sample sequence. It is not safe for concurrent use; the
// prefetch worker is its only writer.
type Catalog struct {
	base    []Sample
	order   []Sample
	opts    Options
	epoch   int
	cursor  int
	skipped int
}

// Build creates a catalog over samples. The slice is copied.
func Build(samples []Sample, opts Options) (*Catalog, error) {
	if len(samples) == 0 {
		return nil, errdefs.ErrEmptyCatalog
	}
	c := &Catalog{
		base:  append([]Sample(nil), samples...),
		order: make([]Sample, len(samples)),
		opts:  opts,
	}
	c.arrange(0)

	if opts.RandSkip > 0 {
		skip := rand.New(rand.NewPCG(opts.Seed, ^uint64(0))).IntN(opts.RandSkip)
		if skip >= len(samples) {
			return nil, errdefs.Configf("rand_skip",
				"skipping %d samples leaves nothing of a %d-sample manifest", skip, len(samples))
		}
		c.cursor = skip
		c.skipped = skip
	}
	return c, nil
}

// Len returns the number of samples.
func (c *Catalog) Len() int { return len(c.base) }

// Skipped returns how many samples RandSkip dropped from the first epoch.
func (c *Catalog) Skipped() int { return c.skipped }

// Shuffle permutes the current order in place using rng.
func (c *Catalog) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(c.order), func(i, j int) {
		c.order[i], c.order[j] = c.order[j], c.order[i]
	})
}

// Peek returns the sample Next would return without advancing.
func (c *Catalog) Peek() Sample { return c.order[c.cursor] }

// Next returns the sample at the cursor and advances. At the end of the
// sequence the cursor wraps to zero and, when shuffling, the order is
// re-permuted for the new epoch.
func (c *Catalog) Next() Sample {
	s := c.order[c.cursor]
	c.cursor++
	if c.cursor == len(c.order) {
		c.cursor = 0
		c.epoch++
		c.arrange(c.epoch)
	}
	return s
}

// Position returns where the next call to Next will read.
func (c *Catalog) Position() Position {
	return Position{Epoch: c.epoch, Cursor: c.cursor}
}

// Seek moves to pos, rebuilding that epoch's order from the seed so a
// resumed run sees the same sequence as an uninterrupted one.
func (c *Catalog) Seek(pos Position) error {
	if pos.Epoch < 0 || pos.Cursor < 0 || pos.Cursor >= len(c.base) {
		return errdefs.Configf("resume", "position %v outside a %d-sample catalog", pos, len(c.base))
	}
	c.epoch = pos.Epoch
	c.arrange(pos.Epoch)
	c.cursor = pos.Cursor
	return nil
}

// arrange resets the order to the manifest order and, when shuffling,
// permutes it with a generator derived from the seed and epoch.
func (c *Catalog) arrange(epoch int) {
	copy(c.order, c.base)
	if c.opts.Shuffle {
		c.Shuffle(rand.New(rand.NewPCG(c.opts.Seed, uint64(epoch))))
	}
}
