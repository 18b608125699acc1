package speech

import (
	"context"
	"time"

	"github.com/listenupapp/listenup-reader/internal/errors"
)

// UnavailableEngine stands in when no speech engine could be set up. Every
// synthesis fails with a playback error carrying the setup failure.
type UnavailableEngine struct {
	Reason error
}

// Name returns the engine identifier.
func (UnavailableEngine) Name() string {
	return "unavailable"
}

// Synthesize implements Engine.
func (e UnavailableEngine) Synthesize(context.Context, SynthesizeRequest) (*AudioResult, error) {
	return nil, errors.Playback("speech engine is not available").WithCause(e.Reason)
}

// NopTransport discards audio. It pairs with UnavailableEngine so the driver
// always has a transport to release.
type NopTransport struct{}

func (NopTransport) Load(context.Context, *AudioResult) error { return nil }
func (NopTransport) Play() error                              { return nil }
func (NopTransport) Pause() error                             { return nil }
func (NopTransport) Seek(int64) error                         { return nil }
func (NopTransport) Stop() error                              { return nil }
func (NopTransport) Close() error                             { return nil }
func (NopTransport) Done() <-chan struct{}                    { return nil }
func (NopTransport) Position() (time.Duration, time.Duration) { return 0, 0 }
