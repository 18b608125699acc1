package speech

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-reader/internal/logger"
)

func newExecTransport(t *testing.T, player string, args ...string) *ExecTransport {
	t.Helper()
	if _, err := exec.LookPath(player); err != nil {
		t.Skipf("%s not available", player)
	}
	tr, err := NewExecTransport(ExecConfig{PlayerPath: player, PlayerArgs: args}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestExecTransport_PlaysToEnd(t *testing.T) {
	// cat swallows the stream and exits, standing in for a player that finished the clip.
	tr := newExecTransport(t, "cat")
	audio := silentAudio(PiperSampleRate / 10)

	require.NoError(t, tr.Load(context.Background(), audio))
	done := tr.Done()
	require.NoError(t, tr.Play())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("player never finished")
	}

	pos, dur := tr.Position()
	assert.Equal(t, audio.Duration(), dur)
	assert.Equal(t, dur, pos)
}

func TestExecTransport_PauseDoesNotSignalDone(t *testing.T) {
	tr := newExecTransport(t, "sleep", "30")
	tr.now = func() time.Time { return time.Unix(100, 0) }

	require.NoError(t, tr.Load(context.Background(), silentAudio(PiperSampleRate*5)))
	require.NoError(t, tr.Play())

	tr.now = func() time.Time { return time.Unix(102, 0) }
	require.NoError(t, tr.Pause())

	pos, dur := tr.Position()
	assert.Equal(t, 2*time.Second, pos)
	assert.Equal(t, 5*time.Second, dur)

	select {
	case <-tr.Done():
		t.Fatal("pause must not signal the end of the clip")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestExecTransport_SeekAndStop(t *testing.T) {
	tr := newExecTransport(t, "sleep", "30")
	require.NoError(t, tr.Load(context.Background(), silentAudio(PiperSampleRate*5)))

	require.NoError(t, tr.Seek(3000))
	pos, _ := tr.Position()
	assert.Equal(t, 3*time.Second, pos)

	require.NoError(t, tr.Seek(60_000))
	pos, dur := tr.Position()
	assert.Equal(t, dur, pos, "seek clamps to the clip length")

	require.NoError(t, tr.Stop())
	pos, _ = tr.Position()
	assert.Zero(t, pos)
}

func TestExecTransport_NothingLoaded(t *testing.T) {
	tr := newExecTransport(t, "cat")

	assert.ErrorIs(t, tr.Play(), ErrNothingLoaded)
	assert.ErrorIs(t, tr.Pause(), ErrNothingLoaded)
	assert.ErrorIs(t, tr.Seek(10), ErrNothingLoaded)
}
