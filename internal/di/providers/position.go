package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-reader/internal/config"
	"github.com/listenupapp/listenup-reader/internal/logger"
	"github.com/listenupapp/listenup-reader/internal/position"
)

// PositionSynchronizerHandle wraps the synchronizer with shutdown capability.
type PositionSynchronizerHandle struct {
	*position.Synchronizer
}

// Shutdown implements do.Shutdownable. Pending positions are written before it returns.
func (h *PositionSynchronizerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Close(ctx)
}

// ProvidePositionSynchronizer provides the reading position synchronizer.
func ProvidePositionSynchronizer(i do.Injector) (*PositionSynchronizerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	synchronizer := position.New(storeHandle.Store, position.Config{
		SaveInterval: cfg.Position.SaveInterval,
	}, log.Component("position"))
	synchronizer.Start(context.Background())

	return &PositionSynchronizerHandle{Synchronizer: synchronizer}, nil
}
