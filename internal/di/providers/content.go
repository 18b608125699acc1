package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-reader/internal/config"
	"github.com/listenupapp/listenup-reader/internal/content"
	"github.com/listenupapp/listenup-reader/internal/logger"
)

// ContentClientHandle wraps the content client with shutdown capability.
type ContentClientHandle struct {
	*content.Client
}

// Shutdown implements do.Shutdownable.
func (h *ContentClientHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideContentClient provides the chapter listing and fetch client.
func ProvideContentClient(i do.Injector) (*ContentClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := content.New(content.Config{
		APIHost:           cfg.Source.APIHost,
		RawHost:           cfg.Source.RawHost,
		Extension:         cfg.Source.Extension,
		Timeout:           cfg.Source.RequestTimeout,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		Burst:             cfg.Source.Burst,
	}, log.Component("content"))

	log.Info("Content client ready",
		"api_host", cfg.Source.APIHost,
		"raw_host", cfg.Source.RawHost,
		"extension", cfg.Source.Extension,
	)

	return &ContentClientHandle{Client: client}, nil
}
