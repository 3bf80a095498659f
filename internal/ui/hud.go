package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/segfeed/internal/stats"
)

// hudPresenter prints a feed of failures and shape changes and keeps a
// 2-line HUD at the bottom that redraws in place.
type hudPresenter struct {
	w       io.Writer
	stats   *stats.Collector
	total   int64
	verbose bool
	styled  bool
	sparkW  int

	hudDrawn     bool
	hudLineCount int
	lastHUDDraw  time.Time
}

const (
	sparklineWidth   = 20 // when sparkW is unset
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
)

func (p *hudPresenter) Run(events <-chan Event) error {
	// First tick comes early to seed the rate ring, then once a second.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case ShapeChanged:
		p.feed("%s  %s", paint(p.styled, styleHeader, "shape"),
			paint(p.styled, styleShape, FormatShape(ev.Shape)))

	case SampleFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		p.feed("%s  %s  %s", paint(p.styled, styleIconFailed, "✗"),
			paint(p.styled, styleErrorPath, ev.Path), paint(p.styled, styleError, errMsg))

	case CheckpointSaved:
		if p.verbose {
			p.feed("%s  checkpoint at batch %s", paint(p.styled, styleIconDone, "✓"), FormatCount(ev.Batch))
		}

	case BatchAssembled:
		if p.verbose && ev.Failed > 0 {
			p.feed("%s  batch %s had %d placeholders", paint(p.styled, styleDivider, "–"),
				FormatCount(ev.Batch), ev.Failed)
		}
	}
}

// feed prints one line above the HUD.
func (p *hudPresenter) feed(format string, args ...any) {
	p.clearHUD()
	fmt.Fprintf(p.w, format+"\n", args...)
	p.drawHUD()
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()
	p.clearHUD()

	rate := p.stats.RollingBatchesPerSec(10)
	width := p.sparkW
	if width <= 0 {
		width = sparklineWidth
	}
	spark := Sparkline(p.stats.SparklineData(width), width)

	// Line 1: consumption sparkline, rate and batch count.
	count := FormatCount(snap.BatchesConsumed)
	if p.total > 0 {
		count += " / " + FormatCount(p.total)
	}
	fmt.Fprintf(p.w, "       %s   %s   %s batches\n",
		paint(p.styled, styleSparkline, spark), paint(p.styled, styleRate, FormatRate(rate)), count)

	// Line 2: progress (bounded runs) or stall bar, failures and eta.
	if p.total > 0 {
		pct := float64(snap.BatchesConsumed) / float64(p.total)
		fmt.Fprintf(p.w, " %3.0f%%  %s   stall %s   failed %s   eta %s\n",
			pct*100, paint(p.styled, styleProgressFilled, ProgressBar(pct, progressBarWidth)),
			FormatPercent(snap.StallRatio()), FormatCount(snap.SamplesFailed),
			FormatETA(eta(snap.BatchesConsumed, p.total, rate)))
	} else {
		fmt.Fprintf(p.w, " stall %s %s   failed %s   %s\n",
			FormatPercent(snap.StallRatio()),
			paint(p.styled, styleStall, ProgressBar(snap.StallRatio(), progressBarWidth)),
			FormatCount(snap.SamplesFailed), FormatDuration(snap.Elapsed))
	}

	p.hudDrawn = true
	p.hudLineCount = 2
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", p.hudLineCount)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return completionSummary(p.stats.Snapshot(), p.styled)
}
