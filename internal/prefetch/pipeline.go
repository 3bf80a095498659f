package prefetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/event"
	"github.com/bamsammich/segfeed/internal/queue"
	"github.com/bamsammich/segfeed/internal/stats"
	"github.com/bamsammich/segfeed/internal/tensor"
)

// DefaultPoolSize is the number of batches in flight when Options.PoolSize
// is zero.
const DefaultPoolSize = 3

// Options configures a Pipeline.
type Options struct {
	PoolSize int
	Stats    *stats.Collector
	Events   chan<- event.Event
}

// Pipeline runs one prefetch worker that fills batches from a Source while
// the consumer drains them. Batches travel between the two only through the
// handoff queue.
type Pipeline struct {
	src   Source
	q     *queue.Handoff[*Batch]
	stats *stats.Collector
	evts  chan<- event.Event

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	stopOnce sync.Once
}

// New creates a Pipeline with a fixed pool of empty batches.
func New(src Source, opts Options) *Pipeline {
	n := opts.PoolSize
	if n <= 0 {
		n = DefaultPoolSize
	}
	batches := make([]*Batch, n)
	for i := range batches {
		batches[i] = NewBatch()
	}
	if opts.Stats == nil {
		opts.Stats = stats.NewCollector()
	}
	return &Pipeline{
		src:   src,
		q:     queue.NewHandoff(batches),
		stats: opts.Stats,
		evts:  opts.Events,
		done:  make(chan struct{}),
	}
}

// Start runs the source's Setup and launches the worker. Setup errors are
// returned and no worker is started.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("pipeline already started")
	}
	if err := p.src.Setup(ctx); err != nil {
		return fmt.Errorf("source setup: %w", err)
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.started = true
	event.Emit(p.evts, event.Event{Type: event.PipelineStarted})
	go p.run(ctx)
	return nil
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	// The worker owns the ready side; once it is gone nothing else will arrive.
	defer p.q.Close()

	var seq int64
	for {
		b, err := p.q.PopFree(ctx)
		if err != nil {
			return
		}

		start := time.Now()
		if err := p.src.FillNextBatch(ctx, b); err != nil {
			// Never publish a partial batch.
			p.q.PushFree(b)
			if ctx.Err() == nil {
				p.fail(err)
			}
			return
		}
		seq++
		b.Seq = seq
		elapsed := time.Since(start)

		p.stats.AddBatchesAssembled(1)
		slog.Debug("batch assembled", "batch", seq, "failed", b.Failed, "elapsed", elapsed)
		event.Emit(p.evts, event.Event{
			Type: event.BatchAssembled, Batch: seq, Samples: b.Size(), Failed: b.Failed, Elapsed: elapsed,
		})
		p.q.PushReady(b)
	}
}

// fail records a terminal worker error and wakes the consumer.
func (p *Pipeline) fail(err error) {
	slog.Error("prefetch worker stopped", "error", err)
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.q.Close()
}

// Err returns the error that stopped the worker, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop cancels the worker, wakes every blocked queue operation, waits for the
// worker to exit and shuts the source down. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		started := p.started
		p.mu.Unlock()

		if started {
			p.cancel()
		}
		p.q.Close()
		if started {
			<-p.done
			p.src.Shutdown()
		}
		event.Emit(p.evts, event.Event{Type: event.PipelineStopped})
	})
}

// Census reports where the pool's batches are.
func (p *Pipeline) Census() queue.Census { return p.q.Census() }

// Next blocks until a batch is ready. After Stop it returns errdefs.ErrClosed,
// or the worker's error if the worker failed.
func (p *Pipeline) Next(ctx context.Context) (*Lease, error) {
	start := time.Now()
	b, err := p.q.PopReady(ctx)
	p.stats.AddStallTime(time.Since(start))
	if err != nil {
		if errors.Is(err, errdefs.ErrClosed) {
			if werr := p.Err(); werr != nil {
				return nil, werr
			}
		}
		return nil, err
	}
	return &Lease{p: p, b: b}, nil
}

// Forward copies the next batch into the caller's blobs, reshaping them to
// the batch shape, and returns the buffer to the pool.
func (p *Pipeline) Forward(ctx context.Context, data, label, edge *tensor.Blob) error {
	l, err := p.Next(ctx)
	if err != nil {
		return err
	}
	defer l.Release()

	b := l.Batch()
	data.CopyFrom(b.Data)
	label.CopyFrom(b.Label)
	edge.CopyFrom(b.Edge)
	return nil
}

// Lease is the consumer's hold on one ready batch.
type Lease struct {
	p    *Pipeline
	b    *Batch
	once sync.Once
}

// Batch returns the leased batch. It must not be used after Release.
func (l *Lease) Batch() *Batch { return l.b }

// Release returns the batch to the free pool. Only the first call has an
// effect.
func (l *Lease) Release() {
	l.once.Do(func() {
		seq := l.b.Seq
		l.p.q.PushFree(l.b)
		l.p.stats.AddBatchesConsumed(1)
		event.Emit(l.p.evts, event.Event{Type: event.BatchConsumed, Batch: seq})
	})
}
