package ui

import (
	"io"

	"github.com/bamsammich/segfeed/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer     io.Writer
	ErrWriter  io.Writer
	Stats      *stats.Collector
	IsTTY      bool
	Width      int // terminal columns; 0 means 80
	Quiet      bool
	Verbose    bool
	NoProgress bool

	// Total is the number of batches the run will consume; zero means
	// unbounded and disables the progress bar and ETA.
	Total int64
	// Every prints one plain line per Every consumed batches; zero
	// prints none.
	Every int64
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	if !cfg.IsTTY || cfg.NoProgress {
		return &plainPresenter{
			w:     cfg.Writer,
			errW:  cfg.ErrWriter,
			stats: cfg.Stats,
			total: cfg.Total,
			every: cfg.Every,
		}
	}
	return &hudPresenter{
		w:       cfg.ErrWriter, // HUD renders to stderr (the TTY)
		stats:   cfg.Stats,
		total:   cfg.Total,
		verbose: cfg.Verbose,
		styled:  true,
		sparkW:  sparkWidth(cfg.Width),
	}
}

// sparkWidth gives the sparkline a quarter of the terminal, within limits.
func sparkWidth(cols int) int {
	if cols <= 0 {
		cols = 80
	}
	return max(10, min(cols/4, 40))
}
