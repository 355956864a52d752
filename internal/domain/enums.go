// Package domain defines the core domain models for the stage server.
package domain

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusLive     RunStatus = "LIVE"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
)

// IsTerminal reports whether a run in this status can never transition again.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusFinished || s == RunStatusFailed
}

// EventType represents the type of a timeline event.
type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypePatch  EventType = "patch"
	EventTypeCmd    EventType = "cmd"
	EventTypeOutput EventType = "output"
	EventTypeError  EventType = "error"
	EventTypeMarker EventType = "marker"
)

// ParseEventType returns the event type for value, or "" if unknown.
func ParseEventType(value string) EventType {
	switch EventType(value) {
	case EventTypeStatus, EventTypePatch, EventTypeCmd, EventTypeOutput, EventTypeError, EventTypeMarker:
		return EventType(value)
	}
	return ""
}

// LikeSource identifies who issued a like.
type LikeSource string

const (
	LikeSourceHuman LikeSource = "human"
	LikeSourceAgent LikeSource = "agent"
)

// ParseLikeSource returns the like source for value, or "" if unknown.
func ParseLikeSource(value string) LikeSource {
	switch LikeSource(value) {
	case LikeSourceHuman, LikeSourceAgent:
		return LikeSource(value)
	}
	return ""
}

// LiveSlotGlobal is the single mutual-exclusion slot value. A run holds it
// while LIVE; the storage uniqueness constraint on the slot guarantees at
// most one live run globally.
const LiveSlotGlobal = "GLOBAL"
