package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/errors"
)

// setupTestStore creates an in-memory store closed at test cleanup.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestLoadSettings_MissingKeyReturnsDefaults(t *testing.T) {
	s := setupTestStore(t)

	got, err := s.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.NewSettings(), got)
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	want := domain.NewSettings().WithPosition("chapters/intro.md", 812.5)
	want.GitHubToken = "ghp_secret"
	want.GitHubRepoURL = "https://github.com/acme/book"
	want.GitHubRepoBranch = "main"
	want.ContentFolderPath = "chapters"
	want.FontSize = 20
	want.PlaySpeed = 1.5
	want.Theme = domain.ThemeDark

	require.NoError(t, s.SaveSettings(ctx, want))

	got, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveSettings_AllDefaultsRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSettings(ctx, domain.NewSettings()))

	got, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.NewSettings(), got)
}

func TestLoadSettings_BackfillsMissingFields(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// A record written before display preferences existed.
	old := []byte(`{"githubToken":"t","githubRepoUrl":"https://github.com/o/r","githubRepoBranch":"main","currentChapterId":"a.md","currentReadingOffset":40}`)
	require.NoError(t, s.setRaw([]byte(SettingsKey), old))

	got, err := s.LoadSettings(ctx)
	require.NoError(t, err)

	assert.Equal(t, "t", got.GitHubToken)
	assert.Equal(t, domain.DefaultDisplayFont, got.DisplayFont)
	assert.Equal(t, float64(domain.DefaultFontSize), got.FontSize)
	assert.Equal(t, domain.DefaultPlaySpeed, got.PlaySpeed)
	assert.Equal(t, domain.DefaultTheme, got.Theme)

	offset, ok := got.SavedOffset("a.md")
	assert.True(t, ok)
	assert.Equal(t, 40.0, offset)
}

func TestLoadSettings_CorruptBlobIsPersistenceError(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.setRaw([]byte(SettingsKey), []byte(`{"githubToken":`)))

	got, err := s.LoadSettings(context.Background())
	assert.Nil(t, got)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPersistence)
}

func TestSaveSettings_IdenticalSavesAreStable(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	settings := domain.NewSettings().WithPosition("a.md", 12)

	require.NoError(t, s.SaveSettings(ctx, settings))
	first, err := s.RawSettings(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SaveSettings(ctx, settings))
	second, err := s.RawSettings(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResetSettings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSettings(ctx, domain.NewSettings().WithPosition("a.md", 3)))
	require.NoError(t, s.ResetSettings(ctx))

	raw, err := s.RawSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, raw)

	got, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.NewSettings(), got)
}

func TestStore_CanceledContext(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.LoadSettings(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.SaveSettings(ctx, domain.NewSettings()), context.Canceled)
}

func TestNew_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveSettings(ctx, domain.NewSettings().WithPosition("x.md", 9)))
	require.NoError(t, s.Close())

	reopened, err := New(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadSettings(ctx)
	require.NoError(t, err)
	assert.True(t, got.HasPosition("x.md", 9))
}
