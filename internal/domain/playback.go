package domain

import "time"

// PlaybackState is the speech/audio session state.
//
//	idle -> loading -> playing <-> paused -> stopped
//
// stopped is reachable from any state and behaves like idle for a restart.
type PlaybackState string

// Playback states.
const (
	StateIdle    PlaybackState = "idle"
	StateLoading PlaybackState = "loading"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
	StateStopped PlaybackState = "stopped"
)

// CanTransition reports whether moving from s to next is a legal transition.
func (s PlaybackState) CanTransition(next PlaybackState) bool {
	if next == StateStopped {
		return true
	}
	switch s {
	case StateIdle, StateStopped:
		return next == StateLoading
	case StateLoading:
		return next == StatePlaying || next == StateLoading
	case StatePlaying:
		return next == StatePaused || next == StateLoading
	case StatePaused:
		return next == StatePlaying || next == StateLoading
	default:
		return false
	}
}

// IsActive reports whether a chapter is loaded into the transport.
func (s PlaybackState) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}

// PlaybackEventType names a driver event.
type PlaybackEventType string

// Playback event types.
const (
	EventStateChanged   PlaybackEventType = "state_changed"
	EventProgress       PlaybackEventType = "progress"
	EventChapterChanged PlaybackEventType = "chapter_changed"
	EventEnded          PlaybackEventType = "ended"
	EventError          PlaybackEventType = "error"
)

// PlaybackEvent is one entry of the driver's typed event stream.
// PositionMs is a position within the current chapter's audio, unrelated to scroll offsets.
type PlaybackEvent struct {
	Type       PlaybackEventType `json:"type"`
	SessionID  string            `json:"session_id"`
	State      PlaybackState     `json:"state"`
	ChapterID  string            `json:"chapter_id,omitempty"`
	PositionMs int64             `json:"position_ms"`
	DurationMs int64             `json:"duration_ms"`
	Rate       float64           `json:"rate"`
	Error      string            `json:"error,omitempty"`
	At         time.Time         `json:"at"`
}
