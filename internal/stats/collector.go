package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// ReadTicker is the read side presenters use.
type ReadTicker interface {
	Snapshot() Snapshot
	Tick()
	RollingBatchesPerSec(seconds int) float64
	SparklineData(n int) []float64
}

// Collector tracks pipeline statistics using lock-free atomic counters.
type Collector struct {
	batchesAssembled atomic.Int64
	batchesConsumed  atomic.Int64
	samplesLoaded    atomic.Int64
	samplesFailed    atomic.Int64
	readNanos        atomic.Int64
	transformNanos   atomic.Int64
	stallNanos       atomic.Int64
	startTime        time.Time

	// Ring buffer, written only by the presenter's Tick().
	mu          sync.Mutex
	batchPerSec [ringSize]int64
	ringIdx     int
	ringCount   int
	lastBatches int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	BatchesAssembled int64
	BatchesConsumed  int64
	SamplesLoaded    int64
	SamplesFailed    int64
	ReadTime         time.Duration
	TransformTime    time.Duration
	StallTime        time.Duration
	Elapsed          time.Duration
}

func (c *Collector) AddBatchesAssembled(n int64) { c.batchesAssembled.Add(n) }
func (c *Collector) AddBatchesConsumed(n int64) { c.batchesConsumed.Add(n) }
func (c *Collector) AddSamplesLoaded(n int64) { c.samplesLoaded.Add(n) }
func (c *Collector) AddSamplesFailed(n int64) { c.samplesFailed.Add(n) }
func (c *Collector) AddReadTime(d time.Duration) { c.readNanos.Add(int64(d)) }
func (c *Collector) AddTransformTime(d time.Duration) { c.transformNanos.Add(int64(d)) }
func (c *Collector) AddStallTime(d time.Duration) { c.stallNanos.Add(int64(d)) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		BatchesAssembled: c.batchesAssembled.Load(),
		BatchesConsumed:  c.batchesConsumed.Load(),
		SamplesLoaded:    c.samplesLoaded.Load(),
		SamplesFailed:    c.samplesFailed.Load(),
		ReadTime:         time.Duration(c.readNanos.Load()),
		TransformTime:    time.Duration(c.transformNanos.Load()),
		StallTime:        time.Duration(c.stallNanos.Load()),
		Elapsed:          c.Elapsed(),
	}
}

// Tick records the consumed-batch delta into the ring buffer. Called 1/sec
// by the presenter.
func (c *Collector) Tick() {
	current := c.batchesConsumed.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.batchPerSec[c.ringIdx] = current - c.lastBatches
	c.lastBatches = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingBatchesPerSec returns average consumed batches/sec over the last n
// seconds of samples.
func (c *Collector) RollingBatchesPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		sum += c.batchPerSec[(c.ringIdx-1-i+ringSize)%ringSize]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns the last n batches/sec samples, oldest first.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count <= 0 {
		return nil
	}
	data := make([]float64, count)
	for i := range count {
		data[i] = float64(c.batchPerSec[(c.ringIdx-count+i+ringSize)%ringSize])
	}
	return data
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// StallRatio is the fraction of elapsed time the consumer spent waiting for
// a ready batch.
func (s Snapshot) StallRatio() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.StallTime) / float64(s.Elapsed)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"assembled=%d consumed=%d loaded=%d failed=%d read=%s transform=%s stall=%s",
		s.BatchesAssembled, s.BatchesConsumed, s.SamplesLoaded, s.SamplesFailed,
		s.ReadTime.Round(time.Millisecond), s.TransformTime.Round(time.Millisecond),
		s.StallTime.Round(time.Millisecond),
	)
}
