package ui

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/segfeed/internal/config"
	"github.com/bamsammich/segfeed/internal/event"
	"github.com/bamsammich/segfeed/internal/stats"
)

func TestPlainPresenterSampleFailed(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.NewCollector()}

	events := make(chan Event, 5)
	events <- Event{Type: event.SampleFailed, Path: "img/cat.png", Error: assert.AnError}
	close(events)

	require.NoError(t, p.Run(events))
	assert.Contains(t, out.String(), "img/cat.png")
	assert.Contains(t, out.String(), assert.AnError.Error())
}

func TestPlainPresenterShapeChanged(t *testing.T) {
	var out bytes.Buffer
	p := &plainPresenter{w: &out, errW: &bytes.Buffer{}, stats: stats.NewCollector()}

	events := make(chan Event, 5)
	events <- Event{Type: event.ShapeChanged, Shape: [4]int{8, 3, 321, 321}}
	close(events)

	require.NoError(t, p.Run(events))
	assert.Equal(t, "shape  8x3x321x321\n", out.String())
}

func TestPlainPresenterEvery(t *testing.T) {
	var out bytes.Buffer
	p := &plainPresenter{w: &out, errW: &bytes.Buffer{}, stats: stats.NewCollector(), every: 2}

	events := make(chan Event, 10)
	for i := int64(1); i <= 5; i++ {
		events <- Event{Type: event.BatchConsumed, Batch: i}
	}
	close(events)

	require.NoError(t, p.Run(events))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "batch 2"))
	assert.True(t, strings.HasPrefix(lines[1], "batch 4"))
}

func TestPlainPresenterSilentEvents(t *testing.T) {
	var out bytes.Buffer
	p := &plainPresenter{w: &out, errW: &bytes.Buffer{}, stats: stats.NewCollector()}

	events := make(chan Event, 5)
	events <- Event{Type: event.PipelineStarted}
	events <- Event{Type: event.BatchAssembled, Batch: 1}
	events <- Event{Type: event.BatchConsumed, Batch: 1}
	events <- Event{Type: event.PipelineStopped}
	close(events)

	require.NoError(t, p.Run(events))
	assert.Empty(t, out.String())
}

func TestPlainPresenterProgress(t *testing.T) {
	var errOut bytes.Buffer
	c := stats.NewCollector()
	c.AddBatchesConsumed(250)

	p := &plainPresenter{w: &bytes.Buffer{}, errW: &errOut, stats: c, total: 1000}
	p.printProgress()
	assert.Contains(t, errOut.String(), "progress: 25% 250/1,000 batches")

	errOut.Reset()
	p.total = 0
	p.printProgress()
	assert.Contains(t, errOut.String(), "progress: 250 batches")
}

func TestHudPresenterFeedAndClear(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{w: &out, stats: stats.NewCollector(), total: 10}

	events := make(chan Event, 5)
	events <- Event{Type: event.SampleFailed, Path: "bad.png", Error: errors.New("truncated")}
	close(events)

	require.NoError(t, p.Run(events))
	s := out.String()
	assert.Contains(t, s, "✗  bad.png  truncated")
	assert.Contains(t, s, "batches")
	// The HUD is erased when the presenter finishes.
	assert.True(t, strings.HasSuffix(s, "\033[2A\033[J"))
}

func TestHudPresenterVerbose(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{w: &out, stats: stats.NewCollector()}

	p.handleEvent(Event{Type: event.CheckpointSaved, Batch: 7})
	assert.Empty(t, out.String())

	p.verbose = true
	p.handleEvent(Event{Type: event.CheckpointSaved, Batch: 7})
	assert.Contains(t, out.String(), "checkpoint at batch 7")
}

func TestHudPresenterUnboundedLine(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{w: &out, stats: stats.NewCollector(), sparkW: 10}
	p.drawHUD()

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "▁▁▁▁▁▁▁▁▁▁")
	assert.Contains(t, lines[1], "stall 0%")
	assert.NotContains(t, lines[1], "eta")
}

func TestNewPresenter(t *testing.T) {
	c := stats.NewCollector()
	assert.IsType(t, &quietPresenter{}, NewPresenter(Config{Quiet: true, Stats: c}))
	assert.IsType(t, &plainPresenter{}, NewPresenter(Config{Stats: c}))
	assert.IsType(t, &plainPresenter{}, NewPresenter(Config{IsTTY: true, NoProgress: true, Stats: c}))

	hud, ok := NewPresenter(Config{IsTTY: true, Width: 200, Stats: c}).(*hudPresenter)
	require.True(t, ok)
	assert.Equal(t, 40, hud.sparkW)
}

func TestQuietPresenterDrains(t *testing.T) {
	p := &quietPresenter{}
	events := make(chan Event, 3)
	events <- Event{Type: event.BatchConsumed}
	events <- Event{Type: event.SampleFailed}
	close(events)
	require.NoError(t, p.Run(events))
	assert.Empty(t, p.Summary())
}

func TestCompletionSummary(t *testing.T) {
	snap := stats.Snapshot{
		BatchesConsumed: 1200,
		SamplesLoaded:   38398,
		SamplesFailed:   2,
		StallTime:       6 * time.Second,
		Elapsed:         200 * time.Second,
	}
	s := CompletionSummary(snap)
	assert.Equal(t, "done ✗  batches 1,200  samples 38,400  avg 6.00/s  stall 3%  time 3m 20s  errors 2", s)

	snap.SamplesFailed = 0
	assert.True(t, strings.HasPrefix(CompletionSummary(snap), "done ✓"))
}

func TestTeeToLog(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	in := make(chan Event, 2)
	in <- Event{Type: event.ShapeChanged, Shape: [4]int{2, 1, 4, 4}}
	in <- Event{Type: event.SampleFailed, Path: "x.png", Error: errors.New("boom")}
	close(in)

	var got []Event
	for ev := range TeeToLog(in, 2) {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Contains(t, buf.String(), "msg=segfeed.event type=ShapeChanged shape=2x1x4x4")
	assert.Contains(t, buf.String(), "type=SampleFailed path=x.png error=boom")
}

func TestApplyTheme(t *testing.T) {
	saved := ColorGreen
	defer func() {
		ColorGreen = saved
		rebuildStyles()
	}()

	green := "#00ff00"
	ApplyTheme(config.ThemeConfig{Green: &green})
	assert.Equal(t, lipgloss.Color("#00ff00"), ColorGreen)
	assert.Equal(t, lipgloss.Color("#f38ba8"), ColorRed)
}
