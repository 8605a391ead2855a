package ui

import "github.com/bamsammich/ferry/internal/event"

// Event is re-exported so presenters can refer to it unqualified.
type Event = event.Event

// Re-export event types for convenience.
const (
	PlanLoaded     = event.PlanLoaded
	ChunkStarted   = event.ChunkStarted
	ChunkSkipped   = event.ChunkSkipped
	PhaseStarted   = event.PhaseStarted
	PhaseRetry     = event.PhaseRetry
	PhaseCompleted = event.PhaseCompleted
	ChunkCompleted = event.ChunkCompleted
	FileCopied     = event.FileCopied
	FileFailed     = event.FileFailed
	VerifyStarted  = event.VerifyStarted
	VerifyOK       = event.VerifyOK
	VerifyFailed   = event.VerifyFailed
)
