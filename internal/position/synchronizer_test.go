package position

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/logger"
	"github.com/listenupapp/listenup-reader/internal/store"
)

type memStore struct {
	mu       sync.Mutex
	settings *domain.Settings
	saves    []pair
	saveErr  error
	gate     chan struct{} // when set, SaveSettings blocks until it is closed
	started  chan struct{} // receives once per save that begins
}

func newMemStore(initial *domain.Settings) *memStore {
	if initial == nil {
		initial = domain.NewSettings()
	}
	return &memStore{settings: initial, started: make(chan struct{}, 16)}
}

func (m *memStore) LoadSettings(context.Context) (*domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Clone(), nil
}

func (m *memStore) SaveSettings(_ context.Context, s *domain.Settings) error {
	m.started <- struct{}{}

	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.settings = s.Clone()
	p := pair{offset: s.CurrentReadingOffset}
	if s.CurrentChapterID != nil {
		p.chapterID = *s.CurrentChapterID
	}
	m.saves = append(m.saves, p)
	return nil
}

func (m *memStore) ResetSettings(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = domain.NewSettings()
	return nil
}

func (m *memStore) current() *domain.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Clone()
}

func (m *memStore) savedPairs() []pair {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pair(nil), m.saves...)
}

func newTestSynchronizer(t *testing.T, st SettingsStore, interval time.Duration) *Synchronizer {
	t.Helper()
	s := New(st, Config{SaveInterval: interval}, logger.Discard())
	s.Start(context.Background())
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func waitIdle(t *testing.T, s *Synchronizer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIdle(ctx))
}

func TestRestore_KeyedToChapterIdentity(t *testing.T) {
	st := newMemStore(domain.NewSettings().WithPosition("intro.md", 500))
	s := newTestSynchronizer(t, st, time.Second)
	ctx := context.Background()

	offset, ok, err := s.Restore(ctx, "ch1.md")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, offset)

	offset, ok, err = s.Restore(ctx, "intro.md")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 500.0, offset)
}

func TestRestore_NothingSaved(t *testing.T) {
	s := newTestSynchronizer(t, newMemStore(nil), time.Second)

	_, ok, err := s.Restore(context.Background(), "intro.md")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlush_IdempotentBytes(t *testing.T) {
	st, err := store.NewInMemory(nil)
	require.NoError(t, err)
	defer st.Close()

	s := newTestSynchronizer(t, st, time.Second)
	ctx := context.Background()

	s.Flush("ch1.md", 42, ReasonPause)
	waitIdle(t, s)
	first, err := st.RawSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	for range 3 {
		s.Flush("ch1.md", 42, ReasonPause)
		waitIdle(t, s)
	}

	after, err := st.RawSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, after)
}

func TestFlush_RepeatedPairSavedOnce(t *testing.T) {
	st := newMemStore(nil)
	s := newTestSynchronizer(t, st, time.Second)

	for range 5 {
		s.Flush("ch1.md", 7, ReasonStop)
		waitIdle(t, s)
	}

	assert.Equal(t, []pair{{chapterID: "ch1.md", offset: 7}}, st.savedPairs())
}

func TestFlush_NewestOffsetWins(t *testing.T) {
	st := newMemStore(nil)
	st.gate = make(chan struct{})
	s := newTestSynchronizer(t, st, time.Second)

	s.Flush("ch1.md", 100, ReasonPause)
	<-st.started // the first write is now in flight and blocked

	s.Flush("ch1.md", 200, ReasonPause)
	s.Flush("ch1.md", 300, ReasonPause)

	// While the first write is stuck, restore already sees the newest value.
	offset, ok, err := s.Restore(context.Background(), "ch1.md")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 300.0, offset)

	st.mu.Lock()
	close(st.gate)
	st.mu.Unlock()
	waitIdle(t, s)

	assert.Equal(t, []pair{
		{chapterID: "ch1.md", offset: 100},
		{chapterID: "ch1.md", offset: 300},
	}, st.savedPairs())

	saved, _ := st.LoadSettings(context.Background())
	assert.True(t, saved.HasPosition("ch1.md", 300))
}

func TestFlush_FailuresAreLoggedNotFatal(t *testing.T) {
	st := newMemStore(nil)
	st.saveErr = stderrors.New("disk full")
	s := newTestSynchronizer(t, st, time.Second)

	s.Flush("ch1.md", 10, ReasonPause)
	waitIdle(t, s)
	assert.Empty(t, st.savedPairs())

	st.mu.Lock()
	st.saveErr = nil
	st.mu.Unlock()

	s.Flush("ch1.md", 10, ReasonPause)
	waitIdle(t, s)
	assert.Equal(t, []pair{{chapterID: "ch1.md", offset: 10}}, st.savedPairs())
}

func TestTrack_RateLimitedPerChapter(t *testing.T) {
	st := newMemStore(nil)
	s := newTestSynchronizer(t, st, time.Hour)

	s.Track("ch1.md", 1)
	waitIdle(t, s)
	s.Track("ch1.md", 2) // inside the interval, held
	waitIdle(t, s)
	s.Track("ch2.md", 5) // other chapter has its own budget and supersedes the held tick
	waitIdle(t, s)
	s.Flush("ch1.md", 3, ReasonTeardown)
	waitIdle(t, s)

	assert.Equal(t, []pair{
		{chapterID: "ch1.md", offset: 1},
		{chapterID: "ch2.md", offset: 5},
		{chapterID: "ch1.md", offset: 3},
	}, st.savedPairs())
}

func TestTrack_TrailingWriteAfterInterval(t *testing.T) {
	st := newMemStore(nil)
	s := newTestSynchronizer(t, st, 100*time.Millisecond)

	s.Track("a.md", 100)
	s.Track("a.md", 150)
	s.Track("a.md", 200) // scrolling stops here

	// A held tick is already the newest value for restore.
	offset, ok, err := s.Restore(context.Background(), "a.md")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 200.0, offset)

	require.Eventually(t, func() bool {
		return st.current().HasPosition("a.md", 200)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []pair{
		{chapterID: "a.md", offset: 100},
		{chapterID: "a.md", offset: 200},
	}, st.savedPairs())
}

func TestTrack_HeldTickPersistedOnClose(t *testing.T) {
	st := newMemStore(nil)
	s := New(st, Config{SaveInterval: time.Hour}, logger.Discard())
	s.Start(context.Background())

	s.Track("a.md", 1)
	s.Track("a.md", 2)
	require.NoError(t, s.Close(context.Background()))

	assert.True(t, st.current().HasPosition("a.md", 2))
}

func TestTrack_ListeningSlotHasItsOwnBudget(t *testing.T) {
	st := newMemStore(nil)
	s := newTestSynchronizer(t, st, time.Hour)

	s.Track("a.md", 40)
	waitIdle(t, s)
	s.TrackListening("a.md", 3000)
	waitIdle(t, s)

	saved := st.current()
	assert.True(t, saved.HasPosition("a.md", 40))
	assert.True(t, saved.HasListeningPosition("a.md", 3000))
}

func TestTrack_IgnoresInvalidInput(t *testing.T) {
	st := newMemStore(nil)
	s := newTestSynchronizer(t, st, time.Millisecond)

	s.Track("", 10)
	s.Track("ch1.md", -1)
	s.Flush("", 10, ReasonStop)
	waitIdle(t, s)

	assert.Empty(t, st.savedPairs())
}

func TestClose_PersistsPending(t *testing.T) {
	st := newMemStore(nil)
	s := New(st, Config{}, logger.Discard())

	s.Flush("ch2.md", 64, ReasonShutdown)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, []pair{{chapterID: "ch2.md", offset: 64}}, st.savedPairs())

	s.Flush("ch2.md", 65, ReasonShutdown)
	assert.Len(t, st.savedPairs(), 1, "flush after close is dropped")
}

func TestApply_PreservesPositionAndSkipsDuplicate(t *testing.T) {
	st := newMemStore(domain.NewSettings().WithPosition("ch1.md", 9))
	s := newTestSynchronizer(t, st, time.Second)

	updated, err := s.Apply(context.Background(), func(cur *domain.Settings) (*domain.Settings, error) {
		cur.Theme = domain.ThemeDark
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeDark, updated.Theme)
	assert.True(t, updated.HasPosition("ch1.md", 9))

	// The record already holds this pair, so the flush writes nothing new.
	s.Flush("ch1.md", 9, ReasonPause)
	waitIdle(t, s)
	assert.Len(t, st.savedPairs(), 1)
}

func TestReset_InFlightWriteCannotResurrectRecord(t *testing.T) {
	initial := domain.NewSettings()
	initial.GitHubToken = "ghp_secret"
	st := newMemStore(initial)
	st.gate = make(chan struct{})
	s := newTestSynchronizer(t, st, time.Second)
	ctx := context.Background()

	s.Flush("ch1.md", 42, ReasonPause)
	<-st.started // loaded the old record, save is blocked

	resetDone := make(chan error, 1)
	go func() { resetDone <- s.Reset(ctx) }()
	time.Sleep(20 * time.Millisecond) // let Reset reach the write lock

	st.mu.Lock()
	close(st.gate)
	st.mu.Unlock()
	require.NoError(t, <-resetDone)
	waitIdle(t, s)

	saved := st.current()
	assert.Empty(t, saved.GitHubToken)
	assert.Nil(t, saved.CurrentChapterID)

	_, ok, err := s.Restore(ctx, "ch1.md")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset_DropsHeldAndPendingPositions(t *testing.T) {
	st := newMemStore(nil)
	s := New(st, Config{SaveInterval: time.Hour}, logger.Discard())
	ctx := context.Background()

	// Not started: nothing is written until Close drains.
	s.Flush("ch1.md", 10, ReasonPause)
	s.Track("ch2.md", 1)
	s.Track("ch2.md", 2)
	require.NoError(t, s.Reset(ctx))
	require.NoError(t, s.Close(ctx))

	assert.Empty(t, st.savedPairs())
	assert.Equal(t, domain.NewSettings(), st.current())
}

func TestApply_ErrorAbortsSave(t *testing.T) {
	st := newMemStore(nil)
	s := newTestSynchronizer(t, st, time.Second)

	_, err := s.Apply(context.Background(), func(*domain.Settings) (*domain.Settings, error) {
		return nil, stderrors.New("rejected")
	})
	require.Error(t, err)
	assert.Empty(t, st.savedPairs())
}
