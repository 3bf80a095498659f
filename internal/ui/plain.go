package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/segfeed/internal/stats"
)

const progressEvery = 5 // seconds between plain progress lines

// plainPresenter writes one line per notable event to stdout and periodic
// progress to stderr. Used when stderr is not a terminal.
type plainPresenter struct {
	w     io.Writer
	errW  io.Writer
	stats *stats.Collector
	total int64
	every int64

	ticks int
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			p.ticks++
			if p.ticks%progressEvery == 0 {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case ShapeChanged:
		fmt.Fprintf(p.w, "shape  %s\n", FormatShape(ev.Shape))
	case SampleFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "%s  placeholder  %s\n", ev.Path, errMsg)
	case BatchConsumed:
		if p.every > 0 && ev.Batch%p.every == 0 {
			fmt.Fprintf(p.w, "batch %s  %s\n",
				FormatCount(ev.Batch), FormatRate(p.stats.RollingBatchesPerSec(5)))
		}
	case CheckpointSaved:
		fmt.Fprintf(p.w, "checkpoint  batch %s\n", FormatCount(ev.Batch))
	case PipelineStarted, BatchAssembled, PipelineStopped:
		// counted by the collector
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	rate := p.stats.RollingBatchesPerSec(10)
	if p.total > 0 {
		pct := float64(snap.BatchesConsumed) / float64(p.total) * 100
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s batches %s stall %s eta %s\n",
			pct,
			FormatCount(snap.BatchesConsumed), FormatCount(p.total),
			FormatRate(rate),
			FormatPercent(snap.StallRatio()),
			FormatETA(eta(snap.BatchesConsumed, p.total, rate)),
		)
		return
	}
	fmt.Fprintf(p.errW, "progress: %s batches %s stall %s failed %s\n",
		FormatCount(snap.BatchesConsumed),
		FormatRate(rate),
		FormatPercent(snap.StallRatio()),
		FormatCount(snap.SamplesFailed),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
