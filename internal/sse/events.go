// Package sse implements Server-Sent Events for pushing reader and playback updates to the UI.
package sse

import (
	"strings"
	"time"

	"github.com/listenupapp/listenup-reader/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"

	// EventPlaybackStateChanged is sent when the speech session changes state.
	EventPlaybackStateChanged EventType = "playback.state_changed"
	// EventPlaybackProgress is a periodic position update while speaking.
	EventPlaybackProgress EventType = "playback.progress"
	// EventPlaybackChapterChanged is sent when the session moves to another chapter.
	EventPlaybackChapterChanged EventType = "playback.chapter_changed"
	// EventPlaybackEnded is sent after the last chapter finishes.
	EventPlaybackEnded EventType = "playback.ended"
	// EventPlaybackError is sent when synthesis or audio output fails.
	EventPlaybackError EventType = "playback.error"

	// EventSettingsUpdated is sent after the settings record is saved or reset.
	EventSettingsUpdated EventType = "settings.updated"
	// EventChaptersListed is sent after a chapter listing succeeds.
	EventChaptersListed EventType = "chapters.listed"
)

// Topic returns the part of the type before the first dot ("playback" for
// "playback.progress"), or the whole type when it has none.
func (t EventType) Topic() string {
	topic, _, _ := strings.Cut(string(t), ".")
	return topic
}

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
// ID is assigned by the manager when the event is broadcast.
type Event struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// HeartbeatEventData contains the payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// ChaptersListedEventData contains the payload for chapter listing events.
type ChaptersListedEventData struct {
	Chapters []domain.ChapterSummary `json:"chapters"`
}

// SettingsUpdatedEventData contains the payload for settings events.
// The access token is never included.
type SettingsUpdatedEventData struct {
	DisplayFont string       `json:"display_font"`
	FontSize    float64      `json:"font_size"`
	PlaySpeed   float64      `json:"play_speed"`
	Theme       domain.Theme `json:"theme"`
	Reset       bool         `json:"reset"`
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
	}
}

// NewPlaybackEvent converts a driver event into an SSE event.
func NewPlaybackEvent(evt domain.PlaybackEvent) Event {
	ts := evt.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{
		Type:      playbackEventType(evt.Type),
		Data:      evt,
		Timestamp: ts,
	}
}

func playbackEventType(t domain.PlaybackEventType) EventType {
	switch t {
	case domain.EventStateChanged:
		return EventPlaybackStateChanged
	case domain.EventProgress:
		return EventPlaybackProgress
	case domain.EventChapterChanged:
		return EventPlaybackChapterChanged
	case domain.EventEnded:
		return EventPlaybackEnded
	case domain.EventError:
		return EventPlaybackError
	default:
		return EventType("playback." + string(t))
	}
}

// NewChaptersListedEvent creates a chapters listed event.
func NewChaptersListedEvent(chapters []domain.ChapterSummary) Event {
	return Event{
		Type:      EventChaptersListed,
		Data:      ChaptersListedEventData{Chapters: chapters},
		Timestamp: time.Now(),
	}
}

// NewSettingsUpdatedEvent creates a settings event from the saved record.
func NewSettingsUpdatedEvent(s *domain.Settings, reset bool) Event {
	return Event{
		Type: EventSettingsUpdated,
		Data: SettingsUpdatedEventData{
			DisplayFont: s.DisplayFont,
			FontSize:    s.FontSize,
			PlaySpeed:   s.PlaySpeed,
			Theme:       s.Theme,
			Reset:       reset,
		},
		Timestamp: time.Now(),
	}
}
