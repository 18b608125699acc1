// Package position persists reading and listening progress into the settings record
// and restores it when a chapter is reopened.
package position

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/ratelimit"
)

const (
	defaultSaveInterval = time.Second
	writeTimeout        = 5 * time.Second
)

// SettingsStore is the persistence the synchronizer writes through.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings *domain.Settings) error
	ResetSettings(ctx context.Context) error
}

// Config controls how often tracked progress reaches the store.
type Config struct {
	// SaveInterval is the minimum spacing between tracked saves for one chapter.
	SaveInterval time.Duration
}

// Reason explains why a position is being flushed. Used for logging.
type Reason string

// Flush reasons.
const (
	ReasonPause    Reason = "pause"
	ReasonStop     Reason = "stop"
	ReasonTeardown Reason = "teardown"
	ReasonShutdown Reason = "shutdown"
)

// Slot names one of the record's position slots. Scroll offsets and audio
// positions use different units and are never stored in each other's slot.
type Slot string

// Position slots.
const (
	SlotReading   Slot = "reading"   // scroll offset
	SlotListening Slot = "listening" // audio milliseconds
)

type pair struct {
	slot      Slot
	chapterID string
	offset    float64
}

func (p pair) savedIn(s *domain.Settings) bool {
	if p.slot == SlotListening {
		return s.HasListeningPosition(p.chapterID, int64(p.offset))
	}
	return s.HasPosition(p.chapterID, p.offset)
}

func (p pair) applyTo(s *domain.Settings) *domain.Settings {
	if p.slot == SlotListening {
		return s.WithListeningPosition(p.chapterID, int64(p.offset))
	}
	return s.WithPosition(p.chapterID, p.offset)
}

// Synchronizer bridges transient progress and the persisted position slots.
// All writes go through one goroutine that always persists the newest pending pair
// per slot, so a superseded offset can never land after a newer one.
type Synchronizer struct {
	store   SettingsStore
	cfg     Config
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger

	// writeMu serializes read-modify-write cycles on the settings record.
	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[Slot]pair
	inflight  map[Slot]pair
	persisted map[Slot]pair
	// trailing holds rate-limited ticks until timers release them.
	trailing map[Slot]pair
	timers   map[Slot]*time.Timer
	// gen is bumped by Reset; batches taken under an older gen are dropped.
	gen     uint64
	idle    chan struct{} // closed while nothing is pending or being written
	isIdle  bool
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

// New creates a synchronizer. Call Start to begin persisting.
func New(store SettingsStore, cfg Config, logger *slog.Logger) *Synchronizer {
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = defaultSaveInterval
	}

	idle := make(chan struct{})
	close(idle)

	return &Synchronizer{
		store:     store,
		cfg:       cfg,
		limiter:   ratelimit.New(1/cfg.SaveInterval.Seconds(), 1),
		logger:    logger,
		pending:   make(map[Slot]pair),
		inflight:  make(map[Slot]pair),
		persisted: make(map[Slot]pair),
		trailing:  make(map[Slot]pair),
		timers:    make(map[Slot]*time.Timer),
		idle:      idle,
		isIdle:    true,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
}

// Start launches the writer. Writes use a context derived from ctx.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	go s.run()
	s.logger.Info("Position synchronizer started", "save_interval", s.cfg.SaveInterval)
}

// Close stops intake, persists whatever is still pending (including ticks held
// back by rate limiting) and stops the writer.
func (s *Synchronizer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	for slot, p := range s.trailing {
		s.pending[slot] = p
		s.markBusyLocked()
	}
	s.clearTrailingLocked()
	s.closed = true
	started := s.started
	s.mu.Unlock()

	defer s.limiter.Stop()

	if !started {
		s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
		defer s.cancel()
		s.drain()
		return nil
	}

	close(s.done)
	select {
	case <-s.exited:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// Restore returns the saved reading offset for chapterID. ok is false when the slot
// holds another chapter. A value not yet written is newer than the store and wins.
func (s *Synchronizer) Restore(ctx context.Context, chapterID string) (offset float64, ok bool, err error) {
	return s.restore(ctx, SlotReading, chapterID)
}

// RestoreListening returns the saved audio position for chapterID in milliseconds.
func (s *Synchronizer) RestoreListening(ctx context.Context, chapterID string) (ms int64, ok bool, err error) {
	offset, ok, err := s.restore(ctx, SlotListening, chapterID)
	return int64(offset), ok, err
}

func (s *Synchronizer) restore(ctx context.Context, slot Slot, chapterID string) (float64, bool, error) {
	if p, found := s.latest(slot); found {
		if p.chapterID == chapterID {
			return p.offset, true, nil
		}
		return 0, false, nil
	}

	settings, err := s.store.LoadSettings(ctx)
	if err != nil {
		return 0, false, err
	}
	if slot == SlotListening {
		ms, ok := settings.SavedListeningPosition(chapterID)
		return float64(ms), ok, nil
	}
	offset, ok := settings.SavedOffset(chapterID)
	return offset, ok, nil
}

// latest returns the newest value for slot that the store may not hold yet.
func (s *Synchronizer) latest(slot Slot) (pair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range []map[Slot]pair{s.trailing, s.pending, s.inflight} {
		if p, ok := m[slot]; ok {
			return p, true
		}
	}
	return pair{}, false
}

// Track records reading progress. Saves are rate limited per chapter; a tick
// inside the interval is held and written once the interval has passed, unless a
// newer value supersedes it first.
func (s *Synchronizer) Track(chapterID string, offset float64) {
	s.track(pair{slot: SlotReading, chapterID: chapterID, offset: offset})
}

// TrackListening records audio progress in milliseconds, rate limited like Track.
func (s *Synchronizer) TrackListening(chapterID string, ms int64) {
	s.track(pair{slot: SlotListening, chapterID: chapterID, offset: float64(ms)})
}

// Flush queues a reading-offset save regardless of rate limiting.
func (s *Synchronizer) Flush(chapterID string, offset float64, reason Reason) {
	s.flush(pair{slot: SlotReading, chapterID: chapterID, offset: offset}, reason)
}

// FlushListening queues an audio-position save regardless of rate limiting.
func (s *Synchronizer) FlushListening(chapterID string, ms int64, reason Reason) {
	s.flush(pair{slot: SlotListening, chapterID: chapterID, offset: float64(ms)}, reason)
}

func (s *Synchronizer) track(p pair) {
	if p.chapterID == "" || p.offset < 0 {
		return
	}
	if s.limiter.Allow(string(p.slot) + ":" + p.chapterID) {
		s.enqueue(p)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.trailing[p.slot] = p
	if s.timers[p.slot] == nil {
		s.timers[p.slot] = time.AfterFunc(s.cfg.SaveInterval, func() { s.releaseTrailing(p.slot) })
	}
}

func (s *Synchronizer) flush(p pair, reason Reason) {
	if p.chapterID == "" || p.offset < 0 {
		return
	}
	s.logger.Debug("flushing position",
		"slot", p.slot, "chapter_id", p.chapterID, "offset", p.offset, "reason", reason)
	s.enqueue(p)
}

// releaseTrailing queues the held tick for slot once its interval has elapsed.
func (s *Synchronizer) releaseTrailing(slot Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.timers, slot)
	if p, ok := s.trailing[slot]; ok {
		delete(s.trailing, slot)
		s.enqueueLocked(p)
	}
}

// Apply runs a read-modify-write on the settings record, serialized with position writes.
// fn receives the current record and returns the record to save.
func (s *Synchronizer) Apply(ctx context.Context, fn func(current *domain.Settings) (*domain.Settings, error)) (*domain.Settings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.store.LoadSettings(ctx)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveSettings(ctx, next); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.rememberLocked(next)
	s.mu.Unlock()

	return next, nil
}

// Reset deletes the settings record. It holds the write lock, so no position write
// that loaded the old record can save it back afterwards, and it discards every
// position not yet written.
func (s *Synchronizer) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.gen++
	clear(s.pending)
	clear(s.inflight)
	clear(s.persisted)
	s.clearTrailingLocked()
	s.mu.Unlock()

	return s.store.ResetSettings(ctx)
}

// WaitIdle blocks until nothing is pending or being written. Ticks held back by
// rate limiting do not count until their interval has passed.
func (s *Synchronizer) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) enqueue(p pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(p)
}

func (s *Synchronizer) enqueueLocked(p pair) {
	if s.closed {
		s.logger.Warn("position dropped after close", "slot", p.slot, "chapter_id", p.chapterID, "offset", p.offset)
		return
	}

	s.pending[p.slot] = p
	// A held tick for this slot is older than p.
	delete(s.trailing, p.slot)
	if t := s.timers[p.slot]; t != nil {
		t.Stop()
		delete(s.timers, p.slot)
	}
	s.markBusyLocked()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) markBusyLocked() {
	if s.isIdle {
		s.isIdle = false
		s.idle = make(chan struct{})
	}
}

func (s *Synchronizer) clearTrailingLocked() {
	for _, t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
	clear(s.trailing)
}

func (s *Synchronizer) rememberLocked(saved *domain.Settings) {
	if saved.CurrentChapterID != nil {
		s.persisted[SlotReading] = pair{slot: SlotReading, chapterID: *saved.CurrentChapterID, offset: saved.CurrentReadingOffset}
	} else {
		delete(s.persisted, SlotReading)
	}
	if saved.CurrentListeningChapterID != nil {
		s.persisted[SlotListening] = pair{
			slot:      SlotListening,
			chapterID: *saved.CurrentListeningChapterID,
			offset:    float64(saved.CurrentListeningPositionMs),
		}
	} else {
		delete(s.persisted, SlotListening)
	}
}

func (s *Synchronizer) run() {
	defer close(s.exited)

	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.done:
			s.drain()
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// drain persists the newest pending pairs until none is left.
func (s *Synchronizer) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			if !s.isIdle {
				s.isIdle = true
				close(s.idle)
			}
			s.mu.Unlock()
			return
		}
		var batch []pair
		for slot, p := range s.pending {
			delete(s.pending, slot)
			if prev, ok := s.persisted[slot]; ok && prev == p {
				continue
			}
			s.inflight[slot] = p
			batch = append(batch, p)
		}
		gen := s.gen
		s.mu.Unlock()

		if len(batch) == 0 {
			continue
		}
		s.persist(gen, batch)

		s.mu.Lock()
		for _, p := range batch {
			if cur, ok := s.inflight[p.slot]; ok && cur == p {
				delete(s.inflight, p.slot)
			}
		}
		s.mu.Unlock()
	}
}

// persist writes batch into the settings record. Failures are logged, never returned:
// a lost position update must not interrupt reading or listening.
func (s *Synchronizer) persist(gen uint64, batch []pair) {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	stale := gen != s.gen
	s.mu.Unlock()
	if stale {
		s.logger.Debug("position discarded after settings reset", "count", len(batch))
		return
	}

	settings, err := s.store.LoadSettings(ctx)
	if err != nil {
		s.logger.Warn("Failed to load settings for position save", "error", err)
		return
	}
	next, changed := settings, false
	for _, p := range batch {
		if !p.savedIn(next) {
			next, changed = p.applyTo(next), true
		}
	}
	if changed {
		if err := s.store.SaveSettings(ctx, next); err != nil {
			s.logger.Warn("Failed to save position", "error", err)
			return
		}
	}

	s.mu.Lock()
	for _, p := range batch {
		s.persisted[p.slot] = p
	}
	s.mu.Unlock()

	for _, p := range batch {
		s.logger.Debug("position saved", "slot", p.slot, "chapter_id", p.chapterID, "offset", p.offset)
	}
}
