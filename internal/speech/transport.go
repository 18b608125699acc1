package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// ErrNothingLoaded is returned by transport operations that need audio before any is loaded.
var ErrNothingLoaded = errors.New("no audio loaded")

// Transport plays one loaded clip at a time.
type Transport interface {
	// Load replaces the current clip and rewinds to the start. Playback is not started.
	Load(ctx context.Context, audio *AudioResult) error
	// Play starts or resumes from the current position.
	Play() error
	// Pause halts playback, keeping the position.
	Pause() error
	// Seek moves the position; playback continues if it was playing.
	Seek(ms int64) error
	// Stop halts playback and rewinds.
	Stop() error
	// Position returns the current position and total duration of the loaded clip.
	Position() (pos, dur time.Duration)
	// Done is closed when the loaded clip plays to its end. Load returns a fresh channel.
	Done() <-chan struct{}
	// Close releases the clip and any player process.
	Close() error
}

// ExecConfig configures the external player used by ExecTransport.
type ExecConfig struct {
	// PlayerPath is the player executable; it must read a WAV stream on stdin.
	PlayerPath string
	// PlayerArgs are passed before the stream is piped in.
	PlayerArgs []string
}

// ExecTransport plays audio by piping WAV data into an external player process.
// Pausing kills the process; resuming restarts it from the saved offset.
type ExecTransport struct {
	cfg    ExecConfig
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	audio     *AudioResult
	duration  time.Duration
	offset    time.Duration // position when not playing
	startedAt time.Time     // wall time the current process started
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	done      chan struct{}
	doneOnce  *sync.Once
}

// NewExecTransport creates a transport using the configured player.
func NewExecTransport(cfg ExecConfig, logger *slog.Logger) (*ExecTransport, error) {
	if cfg.PlayerPath == "" {
		cfg.PlayerPath = "aplay"
	}
	if cfg.PlayerArgs == nil {
		cfg.PlayerArgs = []string{"-q", "-"}
	}
	if _, err := exec.LookPath(cfg.PlayerPath); err != nil {
		return nil, fmt.Errorf("audio player not found: %s: %w", cfg.PlayerPath, err)
	}

	return &ExecTransport{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		done:     make(chan struct{}),
		doneOnce: &sync.Once{},
	}, nil
}

// Load implements Transport.
func (t *ExecTransport) Load(ctx context.Context, audio *AudioResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.killLocked()
	t.audio = audio
	t.duration = audio.Duration()
	t.offset = 0
	t.done = make(chan struct{})
	t.doneOnce = &sync.Once{}
	return nil
}

// Play implements Transport.
func (t *ExecTransport) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.audio == nil {
		return ErrNothingLoaded
	}
	if t.cmd != nil {
		return nil
	}
	return t.startLocked()
}

// Pause implements Transport.
func (t *ExecTransport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.audio == nil {
		return ErrNothingLoaded
	}
	if t.cmd != nil {
		t.offset = t.positionLocked()
		t.killLocked()
	}
	return nil
}

// Seek implements Transport.
func (t *ExecTransport) Seek(ms int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.audio == nil {
		return ErrNothingLoaded
	}

	playing := t.cmd != nil
	t.killLocked()
	t.offset = min(max(time.Duration(ms)*time.Millisecond, 0), t.duration)
	if playing {
		return t.startLocked()
	}
	return nil
}

// Stop implements Transport.
func (t *ExecTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.killLocked()
	t.offset = 0
	return nil
}

// Position implements Transport.
func (t *ExecTransport) Position() (pos, dur time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionLocked(), t.duration
}

// Done implements Transport.
func (t *ExecTransport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Close implements Transport.
func (t *ExecTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.killLocked()
	t.audio = nil
	t.duration = 0
	t.offset = 0
	return nil
}

func (t *ExecTransport) positionLocked() time.Duration {
	if t.cmd == nil {
		return t.offset
	}
	return min(t.offset+t.now().Sub(t.startedAt), t.duration)
}

// startLocked launches the player fed from the current offset.
func (t *ExecTransport) startLocked() error {
	pcm := t.audio.PCM()
	block := t.audio.Channels * t.audio.BitsPerSample / 8
	start := int(t.offset.Seconds() * float64(t.audio.ByteRate()))
	if block > 0 {
		start -= start % block
	}
	start = min(start, len(pcm))

	wav := WrapRawPCM(pcm[start:], t.audio.SampleRate, t.audio.Channels, t.audio.BitsPerSample)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, t.cfg.PlayerPath, t.cfg.PlayerArgs...)
	cmd.Stdin = bytes.NewReader(wav)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start player: %w", err)
	}

	t.cmd = cmd
	t.cancel = cancel
	t.startedAt = t.now()

	done, once := t.done, t.doneOnce
	go t.wait(cmd, done, once, &stderr)
	return nil
}

// wait reaps the player. A process that exits while still current reached the end of the clip.
func (t *ExecTransport) wait(cmd *exec.Cmd, done chan struct{}, once *sync.Once, stderr *bytes.Buffer) {
	err := cmd.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd != cmd {
		return // paused, seeked or stopped
	}
	t.cmd = nil
	t.cancel()
	t.cancel = nil

	if err != nil {
		t.logger.Warn("audio player exited with error", "error", err, "stderr", stderr.String())
	}
	t.offset = t.duration
	once.Do(func() { close(done) })
}

// killLocked stops the running player without signalling Done.
func (t *ExecTransport) killLocked() {
	if t.cmd == nil {
		return
	}
	t.cmd = nil
	t.cancel()
	t.cancel = nil
}
