package ui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/segfeed/internal/stats"
)

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  batches 1,200  samples 38,400  avg 41.2/s  stall 3%  time 3m 17s  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	return completionSummary(snap, false)
}

func completionSummary(snap stats.Snapshot, styled bool) string {
	avg := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avg = float64(snap.BatchesConsumed) / snap.Elapsed.Seconds()
	}

	icon := paint(styled, styleIconDone, "✓")
	if snap.SamplesFailed > 0 {
		icon = paint(styled, styleIconFailed, "✗")
	}

	parts := []string{
		"done " + icon,
		field(styled, "batches", paint(styled, styleBigNumber, FormatCount(snap.BatchesConsumed))),
		field(styled, "samples", FormatCount(snap.SamplesLoaded+snap.SamplesFailed)),
		field(styled, "avg", paint(styled, styleRate, FormatRate(avg))),
		field(styled, "stall", paint(styled, styleStall, FormatPercent(snap.StallRatio()))),
		field(styled, "time", FormatDuration(snap.Elapsed)),
		field(styled, "errors", fmt.Sprintf("%d", snap.SamplesFailed)),
	}
	return strings.Join(parts, "  ")
}

func field(styled bool, label, value string) string {
	return paint(styled, styleLabel, label) + " " + value
}
