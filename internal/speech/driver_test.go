package speech

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/logger"
)

// silentAudio builds a silent Piper-format clip of the given sample count.
func silentAudio(samples int) *AudioResult {
	pcm := make([]byte, samples*PiperChannels*PiperBitsPerSample/8)
	return &AudioResult{
		Data:          WrapRawPCM(pcm, PiperSampleRate, PiperChannels, PiperBitsPerSample),
		Format:        "wav",
		SampleRate:    PiperSampleRate,
		Channels:      PiperChannels,
		BitsPerSample: PiperBitsPerSample,
	}
}

type fakeEngine struct {
	mu       sync.Mutex
	requests []SynthesizeRequest
	err      error
	block    chan struct{} // when set, Synthesize waits for it to close
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Synthesize(ctx context.Context, req SynthesizeRequest) (*AudioResult, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	err, block := e.err, e.block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return silentAudio(PiperSampleRate), nil // one second
}

func (e *fakeEngine) lastRequest() SynthesizeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[len(e.requests)-1]
}

type fakeTransport struct {
	mu      sync.Mutex
	loaded  *AudioResult
	playing bool
	pos     time.Duration
	done    chan struct{}
	closed  bool
	calls   []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{done: make(chan struct{})}
}

func (t *fakeTransport) record(call string) {
	t.calls = append(t.calls, call)
}

func (t *fakeTransport) Load(_ context.Context, audio *AudioResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("load")
	t.loaded = audio
	t.pos = 0
	t.done = make(chan struct{})
	return nil
}

func (t *fakeTransport) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("play")
	t.playing = true
	return nil
}

func (t *fakeTransport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("pause")
	t.playing = false
	return nil
}

func (t *fakeTransport) Seek(ms int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("seek")
	t.pos = time.Duration(ms) * time.Millisecond
	return nil
}

func (t *fakeTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("stop")
	t.playing = false
	t.pos = 0
	return nil
}

func (t *fakeTransport) Position() (time.Duration, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var dur time.Duration
	if t.loaded != nil {
		dur = t.loaded.Duration()
	}
	return t.pos, dur
}

func (t *fakeTransport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// finish simulates the loaded clip playing to its end.
func (t *fakeTransport) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
	if t.loaded != nil {
		t.pos = t.loaded.Duration()
	}
	close(t.done)
}

var testChapters = []domain.ChapterSummary{
	{ID: "intro.md", Title: "intro"},
	{ID: "ch1.md", Title: "ch1"},
	{ID: "ch2.md", Title: "ch2"},
}

func staticLoader() ChapterLoader {
	return ChapterLoaderFunc(func(_ context.Context, chapterID string) (string, error) {
		return "# " + chapterID + "\n\nSome *text* to read.", nil
	})
}

func newTestDriver(t *testing.T) (*Driver, *fakeEngine, *fakeTransport) {
	t.Helper()
	engine := &fakeEngine{}
	transport := newFakeTransport()
	d := NewDriver(engine, transport, staticLoader(), DriverConfig{ProgressInterval: 10 * time.Millisecond}, logger.Discard())
	t.Cleanup(func() { _ = d.Close() })
	return d, engine, transport
}

// waitFor drains sub until an event matching match arrives.
func waitFor(t *testing.T, sub *Subscription, match func(domain.PlaybackEvent) bool) domain.PlaybackEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-sub.Events():
			require.True(t, ok, "subscription closed while waiting")
			if match(evt) {
				return evt
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func stateIs(state domain.PlaybackState) func(domain.PlaybackEvent) bool {
	return func(e domain.PlaybackEvent) bool {
		return e.Type == domain.EventStateChanged && e.State == state
	}
}

func TestDriver_PlayPauseResumeStop(t *testing.T) {
	d, engine, transport := newTestDriver(t)
	sub := d.Subscribe()
	ctx := context.Background()

	assert.Equal(t, domain.StateIdle, d.Snapshot().State)

	require.NoError(t, d.Play(ctx, testChapters[0]))
	waitFor(t, sub, stateIs(domain.StateLoading))
	waitFor(t, sub, stateIs(domain.StatePlaying))
	assert.Equal(t, domain.StatePlaying, d.Snapshot().State)
	assert.Equal(t, "intro.md\n\nSome text to read.", engine.lastRequest().Text)

	require.NoError(t, d.Pause())
	assert.Equal(t, domain.StatePaused, d.Snapshot().State)

	require.NoError(t, d.Resume())
	assert.Equal(t, domain.StatePlaying, d.Snapshot().State)

	require.NoError(t, d.Stop())
	evt := waitFor(t, sub, stateIs(domain.StateStopped))
	assert.Equal(t, "intro.md", evt.ChapterID)

	snap := d.Snapshot()
	assert.Equal(t, domain.StateStopped, snap.State)
	assert.Nil(t, snap.Current)

	transport.mu.Lock()
	assert.Contains(t, transport.calls, "pause")
	assert.False(t, transport.playing)
	transport.mu.Unlock()
}

func TestDriver_InvalidTransitions(t *testing.T) {
	d, _, _ := newTestDriver(t)

	assert.ErrorIs(t, d.Pause(), errors.ErrPlayback)
	assert.ErrorIs(t, d.Resume(), errors.ErrPlayback)
	assert.ErrorIs(t, d.Seek(100), errors.ErrPlayback)

	require.NoError(t, d.Play(context.Background(), testChapters[0]))
	assert.ErrorIs(t, d.Resume(), errors.ErrPlayback, "resume while playing")
	assert.ErrorIs(t, d.Seek(-1), errors.ErrValidation)
}

func TestDriver_SkipAfterStopIsNotAvailable(t *testing.T) {
	d, _, _ := newTestDriver(t)
	d.SetChapters(testChapters)
	ctx := context.Background()

	require.NoError(t, d.Play(ctx, testChapters[0]))
	require.NoError(t, d.Stop())
	assert.Equal(t, -1, d.Snapshot().Index)

	assert.ErrorIs(t, d.SkipNext(ctx), errors.ErrNotAvailable)
	assert.ErrorIs(t, d.SkipPrevious(ctx), errors.ErrNotAvailable)
	assert.Equal(t, domain.StateStopped, d.Snapshot().State)

	// A fresh play starts from the requested chapter.
	require.NoError(t, d.Play(ctx, testChapters[1]))
	assert.Equal(t, 1, d.Snapshot().Index)
}

func TestDriver_StopWhenIdleIsNoop(t *testing.T) {
	d, _, _ := newTestDriver(t)
	sub := d.Subscribe()

	require.NoError(t, d.Stop())
	assert.Equal(t, domain.StateIdle, d.Snapshot().State)
	assert.Empty(t, sub.Events())
}

func TestDriver_Toggle(t *testing.T) {
	d, _, _ := newTestDriver(t)

	assert.ErrorIs(t, d.Toggle(), errors.ErrNotAvailable)

	require.NoError(t, d.Play(context.Background(), testChapters[0]))
	require.NoError(t, d.Toggle())
	assert.Equal(t, domain.StatePaused, d.Snapshot().State)
	require.NoError(t, d.Toggle())
	assert.Equal(t, domain.StatePlaying, d.Snapshot().State)
}

func TestDriver_SkipBoundaries(t *testing.T) {
	ctx := context.Background()

	t.Run("empty list", func(t *testing.T) {
		d, _, _ := newTestDriver(t)
		assert.ErrorIs(t, d.SkipNext(ctx), errors.ErrNotAvailable)
		assert.ErrorIs(t, d.SkipPrevious(ctx), errors.ErrNotAvailable)
		assert.Equal(t, domain.StateIdle, d.Snapshot().State)
	})

	t.Run("first chapter has no previous", func(t *testing.T) {
		d, _, _ := newTestDriver(t)
		d.SetChapters(testChapters)
		require.NoError(t, d.Play(ctx, testChapters[0]))

		before := d.Snapshot()
		assert.ErrorIs(t, d.SkipPrevious(ctx), errors.ErrNotAvailable)
		after := d.Snapshot()

		assert.Equal(t, before.State, after.State)
		assert.Equal(t, before.Index, after.Index)
		assert.Equal(t, "intro.md", after.Current.ID)
	})

	t.Run("last chapter has no next", func(t *testing.T) {
		d, _, _ := newTestDriver(t)
		d.SetChapters(testChapters)
		require.NoError(t, d.Play(ctx, testChapters[2]))
		require.NoError(t, d.Pause())

		assert.ErrorIs(t, d.SkipNext(ctx), errors.ErrNotAvailable)
		snap := d.Snapshot()
		assert.Equal(t, domain.StatePaused, snap.State)
		assert.Equal(t, 2, snap.Index)
	})

	t.Run("chapter outside the list", func(t *testing.T) {
		d, _, _ := newTestDriver(t)
		d.SetChapters(testChapters)
		require.NoError(t, d.Play(ctx, domain.ChapterSummary{ID: "appendix.md"}))

		assert.ErrorIs(t, d.SkipNext(ctx), errors.ErrNotAvailable)
		assert.Equal(t, -1, d.Snapshot().Index)
	})
}

func TestDriver_SkipNextAndPrevious(t *testing.T) {
	d, _, _ := newTestDriver(t)
	ctx := context.Background()
	d.SetChapters(testChapters)

	require.NoError(t, d.Play(ctx, testChapters[0]))
	require.NoError(t, d.SkipNext(ctx))
	snap := d.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, "ch1.md", snap.Current.ID)
	assert.Equal(t, domain.StatePlaying, snap.State)

	require.NoError(t, d.SkipPrevious(ctx))
	assert.Equal(t, "intro.md", d.Snapshot().Current.ID)
}

func TestDriver_AutoAdvanceAndEnded(t *testing.T) {
	d, _, transport := newTestDriver(t)
	sub := d.Subscribe()
	ctx := context.Background()
	d.SetChapters(testChapters[1:])

	require.NoError(t, d.Play(ctx, testChapters[1]))
	waitFor(t, sub, stateIs(domain.StatePlaying))

	transport.finish()
	evt := waitFor(t, sub, func(e domain.PlaybackEvent) bool { return e.Type == domain.EventChapterChanged })
	assert.Equal(t, "ch2.md", evt.ChapterID)
	waitFor(t, sub, stateIs(domain.StatePlaying))

	transport.finish()
	ended := waitFor(t, sub, func(e domain.PlaybackEvent) bool { return e.Type == domain.EventEnded })
	assert.Equal(t, "ch2.md", ended.ChapterID)
	waitFor(t, sub, stateIs(domain.StateStopped))
}

func TestDriver_ProgressEvents(t *testing.T) {
	d, _, transport := newTestDriver(t)
	sub := d.Subscribe()

	require.NoError(t, d.Play(context.Background(), testChapters[0]))
	require.NoError(t, transport.Seek(250))

	evt := waitFor(t, sub, func(e domain.PlaybackEvent) bool {
		return e.Type == domain.EventProgress && e.PositionMs == 250
	})
	assert.Equal(t, "intro.md", evt.ChapterID)
	assert.Equal(t, int64(1000), evt.DurationMs)
}

func TestDriver_EngineFailure(t *testing.T) {
	d, engine, _ := newTestDriver(t)
	sub := d.Subscribe()
	engine.err = stderrors.New("model crashed")

	err := d.Play(context.Background(), testChapters[0])
	require.ErrorIs(t, err, errors.ErrPlayback)

	evt := waitFor(t, sub, func(e domain.PlaybackEvent) bool { return e.Type == domain.EventError })
	assert.Contains(t, evt.Error, "model crashed")
	assert.Equal(t, domain.StateStopped, d.Snapshot().State)
}

func TestDriver_LoaderFailureKeepsCause(t *testing.T) {
	engine := &fakeEngine{}
	loader := ChapterLoaderFunc(func(context.Context, string) (string, error) {
		return "", errors.Fetch(errors.FetchNotFound, "chapter not found")
	})
	d := NewDriver(engine, newFakeTransport(), loader, DriverConfig{}, logger.Discard())
	defer d.Close()

	err := d.Play(context.Background(), testChapters[0])
	assert.ErrorIs(t, err, errors.ErrPlayback)
	assert.ErrorIs(t, err, errors.ErrFetch)
}

func TestDriver_StopDuringSynthesisDiscardsResult(t *testing.T) {
	d, engine, transport := newTestDriver(t)
	engine.block = make(chan struct{})

	result := make(chan error, 1)
	go func() { result <- d.Play(context.Background(), testChapters[0]) }()

	require.Eventually(t, func() bool {
		return d.Snapshot().State == domain.StateLoading
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Stop())
	close(engine.block)
	require.NoError(t, <-result)

	assert.Equal(t, domain.StateStopped, d.Snapshot().State)
	transport.mu.Lock()
	assert.Nil(t, transport.loaded)
	transport.mu.Unlock()
}

func TestDriver_SetRate(t *testing.T) {
	d, engine, _ := newTestDriver(t)

	assert.ErrorIs(t, d.SetRate(0.1), errors.ErrValidation)
	assert.ErrorIs(t, d.SetRate(5), errors.ErrValidation)

	require.NoError(t, d.SetRate(1.5))
	require.NoError(t, d.Play(context.Background(), testChapters[0]))
	assert.Equal(t, 1.5, engine.lastRequest().Rate)
	assert.Equal(t, 1.5, d.Snapshot().Rate)
}

func TestDriver_ClearQueue(t *testing.T) {
	d, _, _ := newTestDriver(t)
	d.SetChapters(testChapters)
	require.NoError(t, d.Play(context.Background(), testChapters[1]))
	before := d.Snapshot()

	d.ClearQueue()

	after := d.Snapshot()
	assert.NotEqual(t, before.ID, after.ID)
	assert.Empty(t, after.Chapters)
	assert.Equal(t, -1, after.Index)
	assert.Equal(t, domain.StateIdle, after.State)
}

func TestDriver_UnsubscribeClosesChannel(t *testing.T) {
	d, _, _ := newTestDriver(t)
	sub := d.Subscribe()

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	require.NoError(t, d.Play(context.Background(), testChapters[0]))
}

func TestDriver_CloseReleasesEverything(t *testing.T) {
	engine := &fakeEngine{}
	transport := newFakeTransport()
	d := NewDriver(engine, transport, staticLoader(), DriverConfig{}, logger.Discard())
	first, second := d.Subscribe(), d.Subscribe()

	require.NoError(t, d.Play(context.Background(), testChapters[0]))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	for _, sub := range []*Subscription{first, second} {
		for range sub.Events() {
			// drain buffered events until the channel closes
		}
	}

	transport.mu.Lock()
	assert.True(t, transport.closed)
	transport.mu.Unlock()
	assert.Equal(t, domain.StateStopped, d.Snapshot().State)
	assert.ErrorIs(t, d.Play(context.Background(), testChapters[0]), errors.ErrPlayback)

	late := d.Subscribe()
	_, ok := <-late.Events()
	assert.False(t, ok)
}
