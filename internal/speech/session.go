package speech

import (
	"sync"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/id"
)

// Session is the driver's playback session: the chapter queue, where it is in it
// and what state the audio is in. Only the Driver mutates it.
type Session struct {
	ID       string                  `json:"id"`
	Chapters []domain.ChapterSummary `json:"chapters"`
	// Index is the position of Current in Chapters, or -1.
	Index   int                    `json:"index"`
	Current *domain.ChapterSummary `json:"current,omitempty"`
	Rate    float64                `json:"rate"`
	State   domain.PlaybackState   `json:"state"`
}

func (s Session) clone() Session {
	c := s
	c.Chapters = append([]domain.ChapterSummary(nil), s.Chapters...)
	if s.Current != nil {
		cur := *s.Current
		c.Current = &cur
	}
	return c
}

// hasNext reports whether a chapter follows the current index.
func (s Session) hasNext() bool {
	return s.Index >= 0 && s.Index+1 < len(s.Chapters)
}

// hasPrevious reports whether a chapter precedes the current index.
func (s Session) hasPrevious() bool {
	return s.Index > 0 && s.Index < len(s.Chapters)
}

// subscriptionBuffer is the per-subscriber event buffer.
const subscriptionBuffer = 64

// Subscription is a handle on the driver's event stream.
// Events is closed when the subscriber unsubscribes or the driver closes.
type Subscription struct {
	ID     string
	events chan domain.PlaybackEvent
	driver *Driver
	once   sync.Once
}

// Events returns the event channel.
func (s *Subscription) Events() <-chan domain.PlaybackEvent {
	return s.events
}

// Unsubscribe removes the subscription and closes its channel. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.driver.unsubscribe(s)
}

func newSubscription(d *Driver) *Subscription {
	return &Subscription{
		ID:     id.MustGenerate(id.PrefixSubscription),
		events: make(chan domain.PlaybackEvent, subscriptionBuffer),
		driver: d,
	}
}

// closeLocked closes the channel once; the driver mutex must be held.
func (s *Subscription) closeLocked() {
	s.once.Do(func() { close(s.events) })
}
