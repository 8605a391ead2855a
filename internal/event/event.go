package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	PlanLoaded Type = iota + 1
	ChunkStarted
	ChunkSkipped
	PhaseStarted
	PhaseRetry
	PhaseCompleted
	ChunkCompleted
	FileCopied
	FileFailed
	VerifyStarted
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	PlanLoaded:     "PlanLoaded",
	ChunkStarted:   "ChunkStarted",
	ChunkSkipped:   "ChunkSkipped",
	PhaseStarted:   "PhaseStarted",
	PhaseRetry:     "PhaseRetry",
	PhaseCompleted: "PhaseCompleted",
	ChunkCompleted: "ChunkCompleted",
	FileCopied:     "FileCopied",
	FileFailed:     "FileFailed",
	VerifyStarted:  "VerifyStarted",
	VerifyOK:       "VerifyOK",
	VerifyFailed:   "VerifyFailed",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the orchestrator or the
// transfer engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // relative path (file events)
	Phase     string // "source" or "destination" (phase events)
	Size      int64  // file size, or chunk bytes for chunk events
	Chunk     int    // chunk index
	Chunks    int    // total chunks (PlanLoaded, ChunkCompleted)
	Files     int    // files in chunk
	Attempt   int    // 1-based attempt number (phase events)
	ETA       time.Duration
	Error     error
}

// Emit sends e on ch without blocking. A nil channel discards the event.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case ch <- e:
	default:
	}
}
