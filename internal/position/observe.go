package position

import (
	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/speech"
)

// Observe consumes driver events until sub is closed. Progress is tracked and
// pause or stop flushes, all into the listening slot: audio milliseconds never
// touch the reading offset. It returns a channel closed once observation ends.
func (s *Synchronizer) Observe(sub *speech.Subscription) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		// finished is the chapter that just played to its end; the stop that
		// follows must not save the end position, or listening would resume there.
		var finished string
		for evt := range sub.Events() {
			if evt.ChapterID == "" {
				continue
			}
			switch {
			case evt.Type == domain.EventEnded:
				finished = evt.ChapterID
				s.FlushListening(evt.ChapterID, 0, ReasonStop)
			case evt.Type == domain.EventProgress:
				s.TrackListening(evt.ChapterID, evt.PositionMs)
			case evt.Type == domain.EventStateChanged && evt.State == domain.StatePaused:
				s.FlushListening(evt.ChapterID, evt.PositionMs, ReasonPause)
			case evt.Type == domain.EventStateChanged && evt.State == domain.StateStopped:
				if evt.ChapterID != finished {
					s.FlushListening(evt.ChapterID, evt.PositionMs, ReasonStop)
				}
			case evt.Type == domain.EventStateChanged && evt.State == domain.StateLoading:
				finished = ""
			}
		}
	}()
	return done
}
