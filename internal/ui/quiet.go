package ui

import "github.com/bamsammich/segfeed/internal/stats"

// quietPresenter consumes events but produces no output.
type quietPresenter struct {
	stats stats.ReadTicker
}

func (p *quietPresenter) Run(events <-chan Event) error {
	for range events {
		// Drain so emitters never see a full buffer.
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
