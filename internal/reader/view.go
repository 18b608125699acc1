package reader

import (
	"context"
	"sync"

	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/position"
)

// View is one opened chapter. Only the coordinator's active view may receive
// load results; a view that was replaced or closed discards them.
type View struct {
	id        string
	chapterID string
	coord     *Coordinator

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}

	mu            sync.Mutex
	loaded        bool
	content       string
	err           error
	savedOffset   float64
	hasSaved      bool
	layoutPending bool // layout reported before content arrived
	restored      bool
	offset        float64
	closed        bool
}

// ViewState is a point-in-time copy of a view.
type ViewState struct {
	ID        string  `json:"id"`
	ChapterID string  `json:"chapter_id"`
	Loaded    bool    `json:"loaded"`
	Restored  bool    `json:"restored"`
	Offset    float64 `json:"offset"`
	Content   string  `json:"content,omitempty"`
	Error     error   `json:"-"`
	Closed    bool    `json:"closed"`
}

// ID returns the view's unique identifier.
func (v *View) ID() string { return v.id }

// ChapterID returns the chapter this view shows.
func (v *View) ChapterID() string { return v.chapterID }

// Ready is closed once loading finished, failed or was discarded.
func (v *View) Ready() <-chan struct{} { return v.ready }

// Content returns the chapter text once loaded.
func (v *View) Content() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case v.err != nil:
		return "", v.err
	case !v.loaded:
		return "", errors.NotAvailable("chapter is still loading")
	default:
		return v.content, nil
	}
}

// LayoutComplete reports that the chapter has been laid out and returns the offset to
// scroll to. applied is true only for the one call that performs the restore. Called
// before the content has loaded, the restore is deferred and happens when it arrives.
func (v *View) LayoutComplete() (offset float64, applied bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || v.restored {
		return v.offset, false
	}
	if !v.loaded {
		v.layoutPending = true
		return 0, false
	}
	v.restoreLocked()
	return v.offset, true
}

// Scroll records the reading offset. Offsets are only persisted after the saved
// position has been restored, so an early scroll cannot clobber it.
func (v *View) Scroll(offset float64) error {
	if offset < 0 {
		return errors.Validation("offset must not be negative")
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errors.NotAvailable("view is closed")
	}
	v.offset = offset
	restored := v.restored
	v.mu.Unlock()

	if restored {
		v.coord.positions.Track(v.chapterID, offset)
	}
	return nil
}

// Offset returns the current reading offset.
func (v *View) Offset() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

// State returns a copy of the view's state.
func (v *View) State(withContent bool) ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := ViewState{
		ID:        v.id,
		ChapterID: v.chapterID,
		Loaded:    v.loaded,
		Restored:  v.restored,
		Offset:    v.offset,
		Error:     v.err,
		Closed:    v.closed,
	}
	if withContent && v.loaded {
		s.Content = v.content
	}
	return s
}

// Close tears the view down, flushing its position.
func (v *View) Close() {
	v.coord.closeView(v, position.ReasonTeardown)
}

func (v *View) restoreLocked() {
	v.restored = true
	if v.hasSaved {
		v.offset = v.savedOffset
	}
}

// complete stores load results. It reports false when the view no longer accepts them.
func (v *View) complete(content string, savedOffset float64, hasSaved bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return false
	}
	v.loaded = true
	v.content = content
	v.savedOffset = savedOffset
	v.hasSaved = hasSaved
	if v.layoutPending {
		v.restoreLocked()
	}
	close(v.ready)
	return true
}

func (v *View) fail(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.err == nil && !v.loaded {
		v.err = err
	}
	select {
	case <-v.ready:
	default:
		close(v.ready)
	}
}

// teardown marks the view closed and returns the position to flush, if any.
func (v *View) teardown() (offset float64, flush bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, false
	}
	v.closed = true
	v.cancel()
	select {
	case <-v.ready:
	default:
		v.err = errors.NotAvailable("view was closed before the chapter loaded")
		close(v.ready)
	}
	return v.offset, v.restored
}
