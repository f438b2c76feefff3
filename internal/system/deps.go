package system

import (
	"context"

	"github.com/KevinKickass/OpenPendantBridge/internal/cncjs"
	"github.com/KevinKickass/OpenPendantBridge/internal/config"
	"go.uber.org/zap"
)

// PendantDevice is the HID side of the bridge.
type PendantDevice interface {
	SendFeatureReport(packet []byte) (int, error)
	ReadLoop(ctx context.Context, handle func([]byte)) error
	Close() error
}

// ControllerClient is the CNCjs side of the bridge.
type ControllerClient interface {
	WriteLine(ctx context.Context, line string) error
	Run(ctx context.Context) error
	Connected() bool
	Port() string
	Close() error
}

// Dependencies opens the external collaborators. Tests replace them.
type Dependencies struct {
	OpenPendant func(cfg config.PendantConfig, logger *zap.Logger) (PendantDevice, error)
	DialCNCjs   func(ctx context.Context, cfg cncjs.Config, handler cncjs.Handler, logger *zap.Logger) (ControllerClient, error)
}
