package ui

import "github.com/bamsammich/segfeed/internal/event"

// Event is the pipeline event presenters consume.
type Event = event.Event

// Re-export event types for convenience.
const (
	PipelineStarted = event.PipelineStarted
	ShapeChanged    = event.ShapeChanged
	BatchAssembled  = event.BatchAssembled
	BatchConsumed   = event.BatchConsumed
	SampleFailed    = event.SampleFailed
	CheckpointSaved = event.CheckpointSaved
	PipelineStopped = event.PipelineStopped
)
