// Package reader coordinates chapter listing, the open chapter view, playback and
// position persistence.
package reader

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/id"
	"github.com/listenupapp/listenup-reader/internal/position"
	"github.com/listenupapp/listenup-reader/internal/speech"
	"github.com/listenupapp/listenup-reader/internal/validation"
)

// Positions is the position persistence the coordinator drives.
type Positions interface {
	Restore(ctx context.Context, chapterID string) (float64, bool, error)
	RestoreListening(ctx context.Context, chapterID string) (int64, bool, error)
	Track(chapterID string, offset float64)
	Flush(chapterID string, offset float64, reason position.Reason)
	Apply(ctx context.Context, fn func(*domain.Settings) (*domain.Settings, error)) (*domain.Settings, error)
	Reset(ctx context.Context) error
}

// Player is the playback surface the coordinator drives.
type Player interface {
	SetChapters(chapters []domain.ChapterSummary)
	Play(ctx context.Context, chapter domain.ChapterSummary) error
	Seek(positionMs int64) error
	SetRate(rate float64) error
	Snapshot() speech.Session
}

// Coordinator owns the active chapter view and routes results to it.
type Coordinator struct {
	store     SettingsStore
	fetcher   Fetcher
	player    Player
	positions Positions
	validator *validation.Validator
	logger    *slog.Logger

	// ctx outlives individual requests and backs background chapter loads.
	ctx    context.Context
	cancel context.CancelFunc

	loads sync.WaitGroup

	mu       sync.Mutex
	active   *View
	chapters []domain.ChapterSummary
	closed   bool
}

// New creates a coordinator.
func New(
	store SettingsStore,
	fetcher Fetcher,
	player Player,
	positions Positions,
	validator *validation.Validator,
	logger *slog.Logger,
) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:     store,
		fetcher:   fetcher,
		player:    player,
		positions: positions,
		validator: validator,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Settings returns the current settings record.
func (c *Coordinator) Settings(ctx context.Context) (*domain.Settings, error) {
	return c.store.LoadSettings(ctx)
}

// UpdateSettings validates and saves settings. When next carries no position,
// the stored position slots are kept.
func (c *Coordinator) UpdateSettings(ctx context.Context, next *domain.Settings) (*domain.Settings, error) {
	if next == nil {
		return nil, errors.Validation("settings are required")
	}
	if err := c.validator.Validate(next); err != nil {
		return nil, err
	}

	saved, err := c.positions.Apply(ctx, func(cur *domain.Settings) (*domain.Settings, error) {
		out := next.Clone()
		if out.CurrentChapterID == nil && cur.CurrentChapterID != nil {
			out = out.WithPosition(*cur.CurrentChapterID, cur.CurrentReadingOffset)
		}
		if out.CurrentListeningChapterID == nil && cur.CurrentListeningChapterID != nil {
			out = out.WithListeningPosition(*cur.CurrentListeningChapterID, cur.CurrentListeningPositionMs)
		}
		return out, nil
	})
	if err != nil {
		c.logger.Error("Failed to save settings", "error", err)
		return nil, err
	}

	if err := c.player.SetRate(saved.PlaySpeed); err != nil {
		c.logger.Warn("Play speed not applied", "play_speed", saved.PlaySpeed, "error", err)
	}

	c.logger.Info("Settings updated", "theme", saved.Theme, "play_speed", saved.PlaySpeed)
	return saved, nil
}

// ResetSettings deletes the stored settings; the next load returns defaults.
// The reset runs through the synchronizer so an in-flight position write cannot
// resurrect the old record.
func (c *Coordinator) ResetSettings(ctx context.Context) error {
	if err := c.positions.Reset(ctx); err != nil {
		c.logger.Error("Failed to reset settings", "error", err)
		return err
	}
	c.logger.Info("Settings reset to defaults")
	return nil
}

// ListChapters lists the configured content path and hands the list to the player.
// Missing configuration fails before any network call.
func (c *Coordinator) ListChapters(ctx context.Context) ([]domain.ChapterSummary, error) {
	src, err := configuredSource(ctx, c.store)
	if err != nil {
		if errors.Is(err, errors.ErrConfigurationMissing) {
			c.logger.Info("Chapter listing needs configuration", "error", err)
		}
		return nil, err
	}

	chapters, err := c.fetcher.ListChapters(ctx, src)
	if err != nil {
		c.logger.Error("Failed to list chapters", "error", err)
		return nil, err
	}

	c.mu.Lock()
	c.chapters = append([]domain.ChapterSummary(nil), chapters...)
	c.mu.Unlock()
	c.player.SetChapters(chapters)

	return chapters, nil
}

// Open makes chapterID the active view. The previous view is torn down and its
// position flushed. Content and the saved position load in the background.
func (c *Coordinator) Open(chapterID string) (*View, error) {
	if chapterID == "" {
		return nil, errors.Validation("chapter id is required")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.NotAvailable("reader is closed")
	}
	prev := c.active
	ctx, cancel := context.WithCancel(c.ctx)
	v := &View{
		id:        id.MustGenerate(id.PrefixView),
		chapterID: chapterID,
		coord:     c,
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
	}
	c.active = v
	c.mu.Unlock()

	if prev != nil {
		c.teardown(prev, position.ReasonTeardown)
	}

	c.logger.Debug("opening chapter", "chapter_id", chapterID, "view_id", v.id)
	c.loads.Go(func() { c.load(v) })
	return v, nil
}

// Active returns the active view, or nil.
func (c *Coordinator) Active() *View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Play speaks the active chapter, resuming from the saved listening position
// when it belongs to this chapter.
func (c *Coordinator) Play(ctx context.Context) error {
	v := c.Active()
	if v == nil {
		return errors.NotAvailable("no chapter is open")
	}

	// Read before playing: the first progress tick would otherwise replace it.
	resumeMs, resume, err := c.positions.RestoreListening(ctx, v.chapterID)
	if err != nil {
		c.logger.Warn("Failed to restore listening position", "chapter_id", v.chapterID, "error", err)
		resume = false
	}

	if err := c.player.Play(ctx, c.summary(v.chapterID)); err != nil {
		return err
	}
	if resume && resumeMs > 0 {
		if err := c.player.Seek(resumeMs); err != nil {
			c.logger.Warn("Failed to resume listening position",
				"chapter_id", v.chapterID, "position_ms", resumeMs, "error", err)
		}
	}
	return nil
}

// Close tears down the active view and waits for background loads to finish.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	v := c.active
	c.mu.Unlock()

	if v != nil {
		c.closeView(v, position.ReasonShutdown)
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.loads.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) summary(chapterID string) domain.ChapterSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := domain.IndexOfChapter(c.chapters, chapterID); i >= 0 {
		return c.chapters[i]
	}
	return domain.ChapterSummary{ID: chapterID, Title: chapterID}
}

// load fetches content and the saved position concurrently, then applies them
// only if v is still the active view.
func (c *Coordinator) load(v *View) {
	src, err := configuredSource(v.ctx, c.store)
	if err != nil {
		c.logger.Warn("Cannot load chapter", "chapter_id", v.chapterID, "error", err)
		v.fail(err)
		return
	}

	var (
		content  string
		offset   float64
		hasSaved bool
	)
	g, ctx := errgroup.WithContext(v.ctx)
	g.Go(func() error {
		text, err := c.fetcher.FetchChapter(ctx, src, v.chapterID)
		content = text
		return err
	})
	g.Go(func() error {
		o, ok, err := c.positions.Restore(ctx, v.chapterID)
		if err != nil {
			// A missing position is not worth failing the chapter over.
			c.logger.Warn("Failed to restore position", "chapter_id", v.chapterID, "error", err)
			return nil
		}
		offset, hasSaved = o, ok
		return nil
	})
	err = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != v {
		c.logger.Info("Discarding result for a chapter that is no longer open",
			"chapter_id", v.chapterID,
			"view_id", v.id,
		)
		v.fail(errors.NotAvailable("chapter is no longer open"))
		return
	}
	if err != nil {
		c.logger.Error("Failed to load chapter", "chapter_id", v.chapterID, "error", err)
		v.fail(err)
		return
	}
	if !v.complete(content, offset, hasSaved) {
		c.logger.Info("Discarding result for a closed view", "chapter_id", v.chapterID, "view_id", v.id)
	}
}

// closeView tears v down and clears it as the active view.
func (c *Coordinator) closeView(v *View, reason position.Reason) {
	c.mu.Lock()
	if c.active == v {
		c.active = nil
	}
	c.mu.Unlock()

	c.teardown(v, reason)
}

func (c *Coordinator) teardown(v *View, reason position.Reason) {
	if offset, flush := v.teardown(); flush {
		c.positions.Flush(v.chapterID, offset, reason)
	}
}
