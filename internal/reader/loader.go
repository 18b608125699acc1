package reader

import (
	"context"

	"github.com/listenupapp/listenup-reader/internal/domain"
)

// SettingsStore is the settings persistence the reader needs.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings *domain.Settings) error
}

// Fetcher lists and fetches chapters from the content source.
type Fetcher interface {
	ListChapters(ctx context.Context, src domain.Source) ([]domain.ChapterSummary, error)
	FetchChapter(ctx context.Context, src domain.Source, chapterID string) (string, error)
}

// SourceLoader fetches chapter text using the source configured in the current settings.
// It satisfies speech.ChapterLoader.
type SourceLoader struct {
	store   SettingsStore
	fetcher Fetcher
}

// NewSourceLoader creates a loader over store and fetcher.
func NewSourceLoader(store SettingsStore, fetcher Fetcher) *SourceLoader {
	return &SourceLoader{store: store, fetcher: fetcher}
}

// LoadChapter checks the configuration, then fetches the chapter text.
func (l *SourceLoader) LoadChapter(ctx context.Context, chapterID string) (string, error) {
	src, err := configuredSource(ctx, l.store)
	if err != nil {
		return "", err
	}
	return l.fetcher.FetchChapter(ctx, src, chapterID)
}

// configuredSource loads the settings and returns their source once it passes validation.
func configuredSource(ctx context.Context, store SettingsStore) (domain.Source, error) {
	settings, err := store.LoadSettings(ctx)
	if err != nil {
		return domain.Source{}, err
	}
	src := settings.Source()
	if err := src.Validate(); err != nil {
		return domain.Source{}, err
	}
	return src, nil
}
