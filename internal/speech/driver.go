package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/errors"
)

// Speech rate bounds accepted by SetRate.
const (
	MinRate = 0.25
	MaxRate = 4.0
)

const defaultProgressInterval = time.Second

// ChapterLoader supplies the text of a chapter for synthesis.
type ChapterLoader interface {
	LoadChapter(ctx context.Context, chapterID string) (string, error)
}

// ChapterLoaderFunc adapts a function to ChapterLoader.
type ChapterLoaderFunc func(ctx context.Context, chapterID string) (string, error)

// LoadChapter implements ChapterLoader.
func (f ChapterLoaderFunc) LoadChapter(ctx context.Context, chapterID string) (string, error) {
	return f(ctx, chapterID)
}

// DriverConfig holds driver tuning.
type DriverConfig struct {
	Voice            string
	Rate             float64
	ProgressInterval time.Duration
}

// Driver owns the playback session and is the only thing that mutates it.
// Consumers observe it through Subscribe and Snapshot.
type Driver struct {
	engine    Engine
	transport Transport
	loader    ChapterLoader
	cfg       DriverConfig
	logger    *slog.Logger

	// ctx lives until Close and backs work the driver starts on its own, like auto-advance.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	session   Session
	subs      map[string]*Subscription
	gen       uint64 // bumped whenever the loaded track is abandoned
	stopWatch chan struct{}
	closed    bool
}

// NewDriver creates a driver with an empty, idle session.
func NewDriver(engine Engine, transport Transport, loader ChapterLoader, cfg DriverConfig, logger *slog.Logger) *Driver {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	if cfg.Rate <= 0 {
		cfg.Rate = domain.DefaultPlaySpeed
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		engine:    engine,
		transport: transport,
		loader:    loader,
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		session:   newSession(cfg.Rate),
		subs:      make(map[string]*Subscription),
	}
}

func newSession(rate float64) Session {
	return Session{
		ID:    uuid.NewString(),
		Index: -1,
		Rate:  rate,
		State: domain.StateIdle,
	}
}

// SetChapters replaces the chapter queue used by skip and auto-advance.
func (d *Driver) SetChapters(chapters []domain.ChapterSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.session.Chapters = append([]domain.ChapterSummary(nil), chapters...)
	d.session.Index = -1
	if d.session.Current != nil {
		d.session.Index = domain.IndexOfChapter(d.session.Chapters, d.session.Current.ID)
	}
}

// Chapters returns a copy of the chapter queue.
func (d *Driver) Chapters() []domain.ChapterSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.ChapterSummary(nil), d.session.Chapters...)
}

// Snapshot returns a copy of the session.
func (d *Driver) Snapshot() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.clone()
}

// Play loads, synthesizes and starts chapter, abandoning whatever was playing.
// It blocks until audio starts or synthesis fails.
func (d *Driver) Play(ctx context.Context, chapter domain.ChapterSummary) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.Playback("driver is closed")
	}
	if !d.session.State.CanTransition(domain.StateLoading) {
		state := d.session.State
		d.mu.Unlock()
		return errors.Playbackf("cannot start playback while %s", state)
	}

	d.haltLocked()
	gen := d.gen
	prev := d.session.Current
	d.session.Current = &chapter
	d.session.Index = domain.IndexOfChapter(d.session.Chapters, chapter.ID)
	d.setStateLocked(domain.StateLoading)
	if prev == nil || prev.ID != chapter.ID {
		d.emitLocked(d.eventLocked(domain.EventChapterChanged))
	}
	rate := d.session.Rate
	d.mu.Unlock()

	d.logger.Info("loading chapter for playback", "chapter_id", chapter.ID, "rate", rate)

	audio, err := d.synthesize(ctx, chapter.ID, rate)

	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen {
		d.logger.Debug("discarding superseded synthesis", "chapter_id", chapter.ID)
		return nil
	}
	if err != nil {
		return d.failLocked("synthesis failed", err)
	}
	if err := d.transport.Load(ctx, audio); err != nil {
		return d.failLocked("load audio", err)
	}
	if err := d.transport.Play(); err != nil {
		return d.failLocked("start audio", err)
	}

	d.setStateLocked(domain.StatePlaying)
	d.startWatchLocked(gen)
	d.logger.Info("playback started",
		"chapter_id", chapter.ID,
		"engine", d.engine.Name(),
		"duration", audio.Duration(),
	)
	return nil
}

func (d *Driver) synthesize(ctx context.Context, chapterID string, rate float64) (*AudioResult, error) {
	text, err := d.loader.LoadChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	prepared := PrepareText(text)
	if prepared == "" {
		return nil, ErrEmptyText
	}
	return d.engine.Synthesize(ctx, SynthesizeRequest{
		Text:  prepared,
		Voice: d.cfg.Voice,
		Rate:  rate,
	})
}

// Pause pauses a playing chapter.
func (d *Driver) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pauseLocked()
}

// Resume continues a paused chapter.
func (d *Driver) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resumeLocked()
}

// Toggle pauses when playing and resumes when paused.
func (d *Driver) Toggle() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.session.State {
	case domain.StatePlaying:
		return d.pauseLocked()
	case domain.StatePaused:
		return d.resumeLocked()
	default:
		return errors.NotAvailable("nothing to pause or resume")
	}
}

func (d *Driver) pauseLocked() error {
	if d.closed {
		return errors.Playback("driver is closed")
	}
	if !d.session.State.IsActive() || !d.session.State.CanTransition(domain.StatePaused) {
		return errors.Playbackf("cannot pause while %s", d.session.State)
	}
	if err := d.transport.Pause(); err != nil {
		return d.failLocked("pause audio", err)
	}
	d.setStateLocked(domain.StatePaused)
	return nil
}

func (d *Driver) resumeLocked() error {
	if d.closed {
		return errors.Playback("driver is closed")
	}
	if d.session.State != domain.StatePaused {
		return errors.Playbackf("cannot resume while %s", d.session.State)
	}
	if err := d.transport.Play(); err != nil {
		return d.failLocked("resume audio", err)
	}
	d.setStateLocked(domain.StatePlaying)
	return nil
}

// Stop halts playback and clears the current chapter. Stopping an idle or stopped
// session does nothing.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	return nil
}

func (d *Driver) stopLocked() {
	if d.session.State == domain.StateIdle || d.session.State == domain.StateStopped {
		return
	}

	// The stop event carries the final position so observers can persist it.
	evt := d.eventLocked(domain.EventStateChanged)
	d.haltLocked()
	d.session.State = domain.StateStopped
	evt.State = domain.StateStopped
	d.emitLocked(evt)
	// Stopped behaves like idle: nothing is current, so there is nothing to skip from.
	d.session.Current = nil
	d.session.Index = -1

	d.logger.Info("playback stopped", "chapter_id", evt.ChapterID, "position_ms", evt.PositionMs)
}

// SkipNext plays the chapter after the current one.
func (d *Driver) SkipNext(ctx context.Context) error {
	return d.skip(ctx, 1)
}

// SkipPrevious plays the chapter before the current one.
func (d *Driver) SkipPrevious(ctx context.Context) error {
	return d.skip(ctx, -1)
}

func (d *Driver) skip(ctx context.Context, delta int) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.Playback("driver is closed")
	}

	available := d.session.hasNext()
	direction := "next"
	if delta < 0 {
		available = d.session.hasPrevious()
		direction = "previous"
	}
	if !available {
		idx, count := d.session.Index, len(d.session.Chapters)
		d.mu.Unlock()
		d.logger.Info(direction+" chapter not available", "index", idx, "chapters", count)
		return errors.NotAvailable("no " + direction + " chapter")
	}

	target := d.session.Chapters[d.session.Index+delta]
	d.mu.Unlock()

	return d.Play(ctx, target)
}

// Seek moves within the current chapter's audio.
func (d *Driver) Seek(positionMs int64) error {
	if positionMs < 0 {
		return errors.Validation("position must not be negative")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.Playback("driver is closed")
	}
	if !d.session.State.IsActive() {
		return errors.Playbackf("cannot seek while %s", d.session.State)
	}
	if err := d.transport.Seek(positionMs); err != nil {
		return d.failLocked("seek audio", err)
	}
	d.emitLocked(d.eventLocked(domain.EventProgress))
	return nil
}

// SetRate changes the speech rate. It applies from the next synthesized chapter.
func (d *Driver) SetRate(rate float64) error {
	if rate < MinRate || rate > MaxRate {
		return errors.ValidationWithDetails("rate out of range", map[string]float64{"min": MinRate, "max": MaxRate})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.session.Rate = rate
	return nil
}

// ClearQueue stops playback and starts a fresh, empty session.
func (d *Driver) ClearQueue() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.session = newSession(d.session.Rate)
}

// Subscribe registers a new event subscriber.
func (d *Driver) Subscribe() *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub := newSubscription(d)
	if d.closed {
		sub.closeLocked()
		return sub
	}
	d.subs[sub.ID] = sub
	return sub
}

func (d *Driver) unsubscribe(sub *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.subs, sub.ID)
	sub.closeLocked()
}

// Close stops playback, releases the transport and closes every subscription.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	d.stopLocked()
	d.haltLocked()
	d.closed = true
	d.cancel()

	for _, sub := range d.subs {
		sub.closeLocked()
	}
	d.subs = make(map[string]*Subscription)

	d.logger.Info("speech driver closed", "session_id", d.session.ID)
	return d.transport.Close()
}

// haltLocked abandons the loaded track: in-flight synthesis results and the
// progress watcher for it become stale.
func (d *Driver) haltLocked() {
	d.gen++
	if d.stopWatch != nil {
		close(d.stopWatch)
		d.stopWatch = nil
	}
	if err := d.transport.Stop(); err != nil {
		d.logger.Warn("transport stop failed", "error", err)
	}
}

// failLocked reports err on the event stream, stops the session and wraps err as a playback error.
func (d *Driver) failLocked(msg string, err error) error {
	d.logger.Error("playback failed", "stage", msg, "error", err)

	d.haltLocked()
	evt := d.eventLocked(domain.EventError)
	evt.Error = err.Error()
	d.emitLocked(evt)
	d.setStateLocked(domain.StateStopped)

	return errors.Playback(msg).WithCause(err)
}

func (d *Driver) setStateLocked(state domain.PlaybackState) {
	if d.session.State == state {
		return
	}
	d.session.State = state
	d.emitLocked(d.eventLocked(domain.EventStateChanged))
}

func (d *Driver) eventLocked(typ domain.PlaybackEventType) domain.PlaybackEvent {
	pos, dur := d.transport.Position()
	evt := domain.PlaybackEvent{
		Type:       typ,
		SessionID:  d.session.ID,
		State:      d.session.State,
		PositionMs: pos.Milliseconds(),
		DurationMs: dur.Milliseconds(),
		Rate:       d.session.Rate,
		At:         time.Now(),
	}
	if d.session.Current != nil {
		evt.ChapterID = d.session.Current.ID
	}
	return evt
}

// emitLocked fans evt out to subscribers without blocking; full buffers drop the event.
func (d *Driver) emitLocked(evt domain.PlaybackEvent) {
	for _, sub := range d.subs {
		select {
		case sub.events <- evt:
		default:
			d.logger.Warn("subscriber buffer full, dropping event",
				"subscription_id", sub.ID,
				"event", evt.Type,
			)
		}
	}
}

func (d *Driver) startWatchLocked(gen uint64) {
	stop := make(chan struct{})
	d.stopWatch = stop
	go d.watch(gen, d.transport.Done(), stop)
}

// watch emits progress while the track plays and handles its natural end.
func (d *Driver) watch(gen uint64, done <-chan struct{}, stop <-chan struct{}) {
	ticker := time.NewTicker(d.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.mu.Lock()
			if d.gen == gen && d.session.State == domain.StatePlaying {
				d.emitLocked(d.eventLocked(domain.EventProgress))
			}
			d.mu.Unlock()
		case <-done:
			d.trackEnded(gen)
			return
		}
	}
}

// trackEnded advances to the next chapter, or ends the session after the last one.
func (d *Driver) trackEnded(gen uint64) {
	d.mu.Lock()
	if d.gen != gen || d.closed {
		d.mu.Unlock()
		return
	}
	d.stopWatch = nil

	if d.session.hasNext() {
		next := d.session.Chapters[d.session.Index+1]
		d.mu.Unlock()

		d.logger.Info("chapter finished, advancing", "next_chapter_id", next.ID)
		if err := d.Play(d.ctx, next); err != nil {
			d.logger.Error("auto-advance failed", "chapter_id", next.ID, "error", err)
		}
		return
	}
	defer d.mu.Unlock()

	d.emitLocked(d.eventLocked(domain.EventEnded))
	d.haltLocked()
	d.setStateLocked(domain.StateStopped)
	d.session.Current = nil
	d.session.Index = -1
	d.logger.Info("reached the last chapter")
}
