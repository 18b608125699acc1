package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-reader/internal/logger"
	"github.com/listenupapp/listenup-reader/internal/reader"
	"github.com/listenupapp/listenup-reader/internal/speech"
	"github.com/listenupapp/listenup-reader/internal/validation"
)

// ReaderHandle wraps the coordinator together with the driver subscriptions it wires.
type ReaderHandle struct {
	*reader.Coordinator
	driver    *speech.Driver
	observer  *speech.Subscription
	observed  <-chan struct{}
	relay     *speech.Subscription
	relayDone <-chan struct{}
}

// Shutdown implements do.Shutdownable. Playback is stopped first so its final
// position reaches the synchronizer before the open view is flushed.
func (h *ReaderHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	_ = h.driver.Stop()

	h.observer.Unsubscribe()
	h.relay.Unsubscribe()
	select {
	case <-h.observed:
	case <-ctx.Done():
	}
	select {
	case <-h.relayDone:
	case <-ctx.Done():
	}

	return h.Close(ctx)
}

// ProvideReader provides the reader coordinator and connects the driver's
// events to position persistence and the SSE stream.
func ProvideReader(i do.Injector) (*ReaderHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	contentHandle := do.MustInvoke[*ContentClientHandle](i)
	driverHandle := do.MustInvoke[*SpeechDriverHandle](i)
	positionsHandle := do.MustInvoke[*PositionSynchronizerHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)

	coord := reader.New(
		storeHandle.Store,
		contentHandle.Client,
		driverHandle.Driver,
		positionsHandle.Synchronizer,
		validator,
		log.Component("reader"),
	)

	observer := driverHandle.Subscribe()
	observed := positionsHandle.Observe(observer)

	relay := driverHandle.Subscribe()
	relayDone := sseHandle.Relay(relay)

	log.Info("Reader ready")

	return &ReaderHandle{
		Coordinator: coord,
		driver:      driverHandle.Driver,
		observer:    observer,
		observed:    observed,
		relay:       relay,
		relayDone:   relayDone,
	}, nil
}
