package providers

import (
	"context"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-reader/internal/config"
	"github.com/listenupapp/listenup-reader/internal/logger"
	"github.com/listenupapp/listenup-reader/internal/reader"
	"github.com/listenupapp/listenup-reader/internal/speech"
)

// SpeechDriverHandle wraps the speech driver with shutdown capability.
type SpeechDriverHandle struct {
	*speech.Driver
	EngineName string
}

// Shutdown implements do.Shutdownable.
func (h *SpeechDriverHandle) Shutdown() error {
	return h.Close()
}

// ProvideSpeechDriver provides the playback driver. Without a piper model or an
// audio player the driver still runs, but every play fails with a playback error.
func ProvideSpeechDriver(i do.Injector) (*SpeechDriverHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	contentHandle := do.MustInvoke[*ContentClientHandle](i)

	speechLog := log.Component("speech")
	engine, transport := newSpeechBackend(cfg, speechLog)

	settings, err := storeHandle.LoadSettings(context.Background())
	rate := 0.0
	if err != nil {
		log.Warn("Could not read play speed from settings, using default", "error", err)
	} else {
		rate = settings.PlaySpeed
	}

	driver := speech.NewDriver(engine, transport,
		reader.NewSourceLoader(storeHandle.Store, contentHandle.Client),
		speech.DriverConfig{
			Voice:            cfg.Speech.Voice,
			Rate:             rate,
			ProgressInterval: cfg.Speech.ProgressInterval,
		},
		speechLog,
	)

	log.Info("Speech driver ready", "engine", engine.Name())

	return &SpeechDriverHandle{Driver: driver, EngineName: engine.Name()}, nil
}

func newSpeechBackend(cfg *config.Config, log *slog.Logger) (speech.Engine, speech.Transport) {
	if !cfg.SpeechEnabled() {
		log.Warn("No piper model configured, speech is disabled")
		return speech.UnavailableEngine{Reason: speech.ErrNoModelSpecified}, speech.NopTransport{}
	}

	engine, err := speech.NewPiperEngine(speech.PiperConfig{
		BinaryPath:   cfg.Speech.PiperPath,
		ModelPath:    cfg.Speech.PiperModel,
		DefaultVoice: cfg.Speech.Voice,
	}, log)
	if err != nil {
		log.Warn("Piper is not available, speech is disabled", "error", err)
		return speech.UnavailableEngine{Reason: err}, speech.NopTransport{}
	}

	transport, err := speech.NewExecTransport(speech.ExecConfig{
		PlayerPath: cfg.Speech.PlayerPath,
		PlayerArgs: cfg.Speech.PlayerArgs,
	}, log)
	if err != nil {
		log.Warn("Audio player is not available, speech is disabled", "error", err)
		return speech.UnavailableEngine{Reason: err}, speech.NopTransport{}
	}

	return engine, transport
}
