package pipeline

// State is the lifecycle stage of a video run.
type State int32

const (
	// StateIdle is the state before the first run.
	StateIdle State = iota
	// StateOpening covers opening the source and creating the sink.
	StateOpening
	// StateProcessing covers the frame loop.
	StateProcessing
	// StateFinalizing covers releasing resources and aggregating plates.
	StateFinalizing
	// StateDone is a successful run.
	StateDone
	// StateFailed is a run that ended with a fatal error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateProcessing:
		return "processing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
