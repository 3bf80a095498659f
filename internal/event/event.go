package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	PipelineStarted Type = iota + 1
	ShapeChanged
	BatchAssembled
	BatchConsumed
	SampleFailed
	CheckpointSaved
	PipelineStopped
)

var typeNames = [...]string{
	PipelineStarted: "PipelineStarted",
	ShapeChanged:    "ShapeChanged",
	BatchAssembled:  "BatchAssembled",
	BatchConsumed:   "BatchConsumed",
	SampleFailed:    "SampleFailed",
	CheckpointSaved: "CheckpointSaved",
	PipelineStopped: "PipelineStopped",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the pipeline.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // sample image path
	Batch     int64  // batch sequence number
	Shape     [4]int // data blob shape (ShapeChanged)
	Samples   int    // samples in the batch
	Failed    int    // samples substituted with placeholders
	Elapsed   time.Duration
	Error     error
}

// Emit stamps e and sends it without blocking. A nil channel or a full buffer
// drops the event.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
